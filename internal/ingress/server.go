package ingress

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/alert"
	"github.com/ivy-net/Ivynet-sub000/internal/heartbeat"
	"github.com/ivy-net/Ivynet-sub000/internal/nodetype"
	"github.com/ivy-net/Ivynet-sub000/internal/notify"
	"github.com/ivy-net/Ivynet-sub000/internal/store"
)

// AccountResolver maps register credentials to the organisation a new
// machine should belong to. Credential verification itself is out of
// scope here; a production resolver backs this with whatever account
// system owns emails/passwords. DefaultAccountResolver below is the
// single-tenant stand-in.
type AccountResolver interface {
	ResolveOrganisation(ctx context.Context, email, password string) (organisationID int64, err error)
}

// DefaultAccountResolver assigns every registering machine to a single
// fixed organisation, for single-tenant deployments that never configured
// a real account system.
type DefaultAccountResolver struct {
	OrganisationID int64
}

func (r DefaultAccountResolver) ResolveOrganisation(ctx context.Context, email, password string) (int64, error) {
	return r.OrganisationID, nil
}

// Deps bundles everything a Server needs to handle RPCs.
type Deps struct {
	Store      *store.Store
	Versions   *store.VersionCache
	Heartbeats *heartbeat.Tracker
	Notifier   *notify.Dispatcher
	Accounts   AccountResolver
	Logger     *zap.Logger
}

// Server is the agent-facing HTTP+JSON RPC surface.
type Server struct {
	deps Deps

	enginesMu sync.Mutex
	engines   map[int64]*alert.Engine
}

// NewServer builds a Server.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps, engines: make(map[int64]*alert.Engine)}
}

// engineFor returns the alert-derivation engine for an organisation,
// building one on first use. One engine per organisation keeps
// fingerprinting namespaced so the same candidate never collides across
// tenants, while letting every machine under that organisation share the
// same engine instance and dispatch wiring.
func (s *Server) engineFor(orgID int64) *alert.Engine {
	s.enginesMu.Lock()
	defer s.enginesMu.Unlock()

	if e, ok := s.engines[orgID]; ok {
		return e
	}

	namespace := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("organisation:%d", orgID)))
	e := alert.NewEngine(s.deps.Store, namespace, s.dispatchAlert, s.deps.Logger)
	s.engines[orgID] = e
	return e
}

// dispatchAlert hands a freshly-persisted alert to the notification
// dispatcher. Dispatch failures (e.g. every channel's queue full and ctx
// cancelled mid-enqueue) are logged rather than surfaced, since a failed
// handoff here must never fail the RPC that triggered it.
func (s *Server) dispatchAlert(ctx context.Context, a store.ActiveAlert) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Dispatch(ctx, a); err != nil && s.deps.Logger != nil {
		s.deps.Logger.Warn("failed to dispatch alert notification",
			zap.String("alert_id", a.AlertID), zap.Error(err))
	}
}

// Router builds the chi router exposing every RPC method plus a health
// check, mirroring the middleware stack (logger, recoverer, request id,
// real ip, CORS) the rest of the stack uses for its HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"POST", "GET"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/rpc", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/metrics", s.handleMetrics)
		r.Post("/logs", s.handleLogs)
		r.Post("/node_data_v2", s.handleNodeData)
		r.Post("/machine_data", s.handleMachineData)
		r.Post("/name_change", s.handleNameChange)
		r.Post("/node_type_queries", s.handleNodeTypeQueries)
		r.Post("/heartbeat_client", s.handleHeartbeat(heartbeat.KindClient))
		r.Post("/heartbeat_machine", s.handleHeartbeat(heartbeat.KindMachine))
		r.Post("/heartbeat_node", s.handleHeartbeat(heartbeat.KindNode))
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully within 10s.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// HandleHeartbeatMiss reconciles a single heartbeat sweep miss. Only
// node-level misses feed the alert engine, since NodeNotResponding is a
// per-node condition; client/machine misses are recorded for operational
// visibility only. Call this from the sweep leader only — every instance
// running it independently would derive and dispatch duplicate alerts.
func (s *Server) HandleHeartbeatMiss(ctx context.Context, miss heartbeat.Miss) {
	if miss.Kind != heartbeat.KindNode {
		if s.deps.Logger != nil {
			s.deps.Logger.Info("heartbeat miss", zap.String("id", miss.ID))
		}
		return
	}

	machineID, nodeName, ok := splitHeartbeatKey(miss.ID)
	if !ok {
		return
	}

	machine, err := s.deps.Store.GetMachine(ctx, machineID)
	if err != nil {
		return
	}

	nodes, err := s.deps.Store.ListNodesForMachine(ctx, machineID)
	if err != nil {
		return
	}
	observations := make([]alert.Observation, 0, len(nodes))
	for _, node := range nodes {
		observations = append(observations, s.buildObservation(ctx, node))
	}

	engine := s.engineFor(machine.OrganisationID)
	if _, err := engine.ReconcileHeartbeatMiss(ctx, machineID, nodeName, observations); err != nil && s.deps.Logger != nil {
		s.deps.Logger.Warn("failed to reconcile heartbeat miss",
			zap.String("machine_id", machineID), zap.String("node_name", nodeName), zap.Error(err))
	}
}

// splitHeartbeatKey reverses heartbeatKey's machineID/id composition.
func splitHeartbeatKey(key string) (machineID, nodeName string, ok bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

// resolveUpdateStatus computes the update-status string used by the alert
// derivation's NodeNeedsUpdate rule, given the node's canonical type and
// observed tag/digest.
func (s *Server) resolveUpdateStatus(ctx context.Context, canonical nodetype.NodeType, chain, observedTag, observedDigest string) string {
	table, err := s.deps.Versions.GetVersionTable(ctx)
	if err != nil {
		return "Unknown"
	}
	entry := table[canonical.Canonical()+"/"+chain]
	return updateStatusLabel(nodetype.ComputeUpdateStatus(canonical, entry, observedTag, observedDigest))
}

// updateStatusLabel renders a nodetype.UpdateStatus in the casing the alert
// derivation rules match against, rather than nodetype's own
// hyphenated-lowercase String() form (meant for logs/display).
func updateStatusLabel(status nodetype.UpdateStatus) string {
	switch status {
	case nodetype.StatusUpToDate:
		return "UpToDate"
	case nodetype.StatusUpdateable:
		return "Updateable"
	case nodetype.StatusOutdated:
		return "Outdated"
	default:
		return "Unknown"
	}
}
