package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/store"
)

// Store is the subset of *store.Store the engine needs, narrowed so tests
// can substitute a fake.
type Store interface {
	ListActiveAlertsByMachine(ctx context.Context, machineID string) ([]store.ActiveAlert, error)
	UpsertActiveAlert(ctx context.Context, a store.ActiveAlert) (created bool, err error)
	ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error
}

// Dispatch hands a freshly-created alert off to the notification layer.
// The engine calls it once per new alert, after the row is durably
// persisted, and does not block on or retry its outcome — per-channel send
// state is the notifier's concern.
type Dispatch func(ctx context.Context, a store.ActiveAlert)

// Engine reconciles derived candidate sets against stored active alerts.
type Engine struct {
	store     Store
	namespace uuid.UUID
	dispatch  Dispatch
	logger    *zap.Logger
	clock     func() time.Time
}

// NewEngine builds an Engine. namespace is the organisation's UUID,
// used as the UUIDv5 namespace for alert fingerprinting so alert ids never
// collide across organisations even if two candidates happen to encode
// identically.
func NewEngine(s Store, namespace uuid.UUID, dispatch Dispatch, logger *zap.Logger) *Engine {
	return &Engine{store: s, namespace: namespace, dispatch: dispatch, logger: logger, clock: time.Now}
}

// Reconcile derives the candidate set across every given observation,
// loads the machine's existing active alerts once, and moves the store to
// match: new candidates are inserted and dispatched, vanished ones are
// resolved to history. Re-running with unchanged observations is a no-op
// because every candidate's alert_id is unchanged and already present.
//
// Callers MUST pass an observation for every node on the machine, not just
// the one whose event triggered reconciliation — active alerts are stored
// per machine, not per node, so omitting a sibling node's observation would
// make its candidates vanish from the derived set and resolve its alerts
// to history even though nothing about that node changed.
func (e *Engine) Reconcile(ctx context.Context, machineID string, observations []Observation) (Decision, error) {
	now := e.clock()
	var candidates []Candidate
	for _, obs := range observations {
		candidates = append(candidates, Derive(obs, now)...)
	}
	return e.reconcileCandidates(ctx, machineID, candidates)
}

// ReconcileHeartbeatMiss runs the same machine-wide reconciliation, adding
// a synthetic NodeNotResponding candidate for the node whose heartbeat TTL
// lapsed. observations must cover every node on the machine (see Reconcile)
// so sibling nodes' alerts survive a single node's heartbeat miss.
func (e *Engine) ReconcileHeartbeatMiss(ctx context.Context, machineID, nodeName string, observations []Observation) (Decision, error) {
	now := e.clock()
	var candidates []Candidate
	for _, obs := range observations {
		candidates = append(candidates, Derive(obs, now)...)
	}
	candidates = append(candidates, HeartbeatMissCandidate(machineID, nodeName))
	return e.reconcileCandidates(ctx, machineID, candidates)
}

func (e *Engine) reconcileCandidates(ctx context.Context, machineID string, candidates []Candidate) (Decision, error) {
	existing, err := e.store.ListActiveAlertsByMachine(ctx, machineID)
	if err != nil {
		return Decision{}, fmt.Errorf("alert: reconcile: load existing: %w", err)
	}

	derivedIDs := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		derivedIDs[Fingerprint(e.namespace, c).String()] = c
	}

	existingIDs := make(map[string]store.ActiveAlert, len(existing))
	for _, a := range existing {
		existingIDs[a.AlertID] = a
	}

	var decision Decision
	now := e.clock()

	for id, c := range derivedIDs {
		if _, ok := existingIDs[id]; ok {
			continue
		}
		detail, err := json.Marshal(c.Detail)
		if err != nil {
			return Decision{}, fmt.Errorf("alert: reconcile: encode detail: %w", err)
		}
		row := store.ActiveAlert{
			AlertID:     id,
			MachineID:   c.MachineID,
			NodeName:    c.NodeName,
			Kind:        string(c.Kind),
			Detail:      string(detail),
			EmailState:  store.SendStateNoSend,
			ChatState:   store.SendStateNoSend,
			PagingState: store.SendStateNoSend,
			CreatedAt:   now,
		}
		created, err := e.store.UpsertActiveAlert(ctx, row)
		if err != nil {
			return Decision{}, fmt.Errorf("alert: reconcile: upsert: %w", err)
		}
		if !created {
			// Another concurrent derivation won the race on this alert_id;
			// the uniqueness constraint is the source of truth here.
			continue
		}
		decision.New = append(decision.New, row)
		if e.dispatch != nil {
			e.dispatch(ctx, row)
		}
	}

	for id, a := range existingIDs {
		if _, ok := derivedIDs[id]; ok {
			continue
		}
		if err := e.store.ResolveAlert(ctx, id, now); err != nil {
			return Decision{}, fmt.Errorf("alert: reconcile: resolve %s: %w", id, err)
		}
		decision.Resolved = append(decision.Resolved, a)
	}

	if e.logger != nil && (len(decision.New) > 0 || len(decision.Resolved) > 0) {
		e.logger.Info("alert reconciliation",
			zap.String("machine_id", machineID),
			zap.Int("new", len(decision.New)),
			zap.Int("resolved", len(decision.Resolved)),
		)
	}

	return decision, nil
}
