package alert

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ivy-net/Ivynet-sub000/internal/store"
)

type fakeStore struct {
	active map[string]store.ActiveAlert
	history []store.ActiveAlert
}

func newFakeStore() *fakeStore {
	return &fakeStore{active: make(map[string]store.ActiveAlert)}
}

func (f *fakeStore) ListActiveAlertsByMachine(ctx context.Context, machineID string) ([]store.ActiveAlert, error) {
	var out []store.ActiveAlert
	for _, a := range f.active {
		if a.MachineID == machineID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertActiveAlert(ctx context.Context, a store.ActiveAlert) (bool, error) {
	if _, ok := f.active[a.AlertID]; ok {
		return false, nil
	}
	f.active[a.AlertID] = a
	return true, nil
}

func (f *fakeStore) ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error {
	a, ok := f.active[alertID]
	if !ok {
		return store.ErrNotFound
	}
	delete(f.active, alertID)
	f.history = append(f.history, a)
	return nil
}

var testNamespace = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func healthyObservation(machineID, nodeName string, now time.Time) Observation {
	return Observation{
		MachineID:       machineID,
		NodeName:        nodeName,
		UpdatedAt:       now,
		ActiveSet:       true,
		OperatorAddress: "0xabc",
		MetricsAlive:    true,
		NodeRunning:     true,
		Chain:           "mainnet",
		UpdateStatus:    "UpToDate",
	}
}

func TestReconcile_HealthyObservationProducesNoAlerts(t *testing.T) {
	s := newFakeStore()
	e := NewEngine(s, testNamespace, nil, nil)

	decision, err := e.Reconcile(context.Background(), "m1", []Observation{healthyObservation("m1", "n1", time.Now())})
	require.NoError(t, err)
	require.Empty(t, decision.New)
	require.Empty(t, decision.Resolved)
}

func TestReconcile_NotRespondingProducesAlert(t *testing.T) {
	s := newFakeStore()
	e := NewEngine(s, testNamespace, nil, nil)

	obs := healthyObservation("m1", "n1", time.Now().Add(-20*time.Minute))
	decision, err := e.Reconcile(context.Background(), "m1", []Observation{obs})
	require.NoError(t, err)

	var kinds []Kind
	for _, a := range decision.New {
		kinds = append(kinds, Kind(a.Kind))
	}
	require.Contains(t, kinds, KindNodeNotResponding)
	require.Contains(t, kinds, KindActiveSetNoDeployment, "active_set + operator set should also fire the deployment alert")
}

func TestReconcile_IdempotentOnUnchangedObservation(t *testing.T) {
	s := newFakeStore()
	e := NewEngine(s, testNamespace, nil, nil)
	ctx := context.Background()
	obs := healthyObservation("m1", "n1", time.Now().Add(-20*time.Minute))

	first, err := e.Reconcile(ctx, "m1", []Observation{obs})
	require.NoError(t, err)
	require.NotEmpty(t, first.New)

	second, err := e.Reconcile(ctx, "m1", []Observation{obs})
	require.NoError(t, err)
	require.Empty(t, second.New, "re-deriving the same observation must not create duplicate alerts")
	require.Empty(t, second.Resolved)
}

func TestReconcile_ResolvesVanishedAlert(t *testing.T) {
	s := newFakeStore()
	e := NewEngine(s, testNamespace, nil, nil)
	ctx := context.Background()

	stale := healthyObservation("m1", "n1", time.Now().Add(-20*time.Minute))
	_, err := e.Reconcile(ctx, "m1", []Observation{stale})
	require.NoError(t, err)
	require.Len(t, s.active, 2)

	fresh := healthyObservation("m1", "n1", time.Now())
	decision, err := e.Reconcile(ctx, "m1", []Observation{fresh})
	require.NoError(t, err)
	require.Empty(t, decision.New)
	require.Len(t, decision.Resolved, 2)
	require.Empty(t, s.active)
	require.Len(t, s.history, 2)
}

func TestReconcile_DispatchesOnlyNewAlerts(t *testing.T) {
	s := newFakeStore()
	var dispatched []store.ActiveAlert
	e := NewEngine(s, testNamespace, func(ctx context.Context, a store.ActiveAlert) {
		dispatched = append(dispatched, a)
	}, nil)

	obs := healthyObservation("m1", "n1", time.Now().Add(-20*time.Minute))
	_, err := e.Reconcile(context.Background(), "m1", []Observation{obs})
	require.NoError(t, err)
	require.Len(t, dispatched, 2)

	_, err = e.Reconcile(context.Background(), "m1", []Observation{obs})
	require.NoError(t, err)
	require.Len(t, dispatched, 2, "second identical pass must not re-dispatch")
}

func TestReconcile_MultiNodeMachine_DoesNotWipeSiblingAlerts(t *testing.T) {
	s := newFakeStore()
	e := NewEngine(s, testNamespace, nil, nil)
	ctx := context.Background()

	staleN1 := healthyObservation("m1", "n1", time.Now().Add(-20*time.Minute))
	staleN2 := healthyObservation("m1", "n2", time.Now().Add(-20*time.Minute))
	decision, err := e.Reconcile(ctx, "m1", []Observation{staleN1, staleN2})
	require.NoError(t, err)
	require.Len(t, decision.New, 4, "NodeNotResponding + ActiveSetNoDeployment for each of n1 and n2")
	require.Len(t, s.active, 4)

	// n1 recovers. n2's observation is re-derived alongside it in the same
	// call (as a caller reconciling the whole machine must), so n2's alerts
	// must be preserved rather than resolved just because n1's event fired.
	freshN1 := healthyObservation("m1", "n1", time.Now())
	decision, err = e.Reconcile(ctx, "m1", []Observation{freshN1, staleN2})
	require.NoError(t, err)
	require.Len(t, decision.Resolved, 2, "only n1's two alerts should resolve")
	require.Len(t, s.active, 2, "n2's alerts must remain active")
	for _, a := range s.active {
		require.Equal(t, "n2", a.NodeName, "only n2's alerts should remain")
	}
}

func TestReconcileHeartbeatMiss_UsesSameFingerprintAsNodeData(t *testing.T) {
	s := newFakeStore()
	e := NewEngine(s, testNamespace, nil, nil)
	ctx := context.Background()

	_, err := e.ReconcileHeartbeatMiss(ctx, "m1", "n1", nil)
	require.NoError(t, err)
	require.Len(t, s.active, 1)

	obs := healthyObservation("m1", "n1", time.Now().Add(-20*time.Minute))
	decision, err := e.Reconcile(ctx, "m1", []Observation{obs})
	require.NoError(t, err)

	var gotNotResponding bool
	for _, a := range decision.New {
		if a.Kind == string(KindNodeNotResponding) {
			gotNotResponding = true
		}
	}
	require.False(t, gotNotResponding, "NodeNotResponding from the heartbeat sweep should already satisfy the node-data derivation")
}

func TestReconcileHeartbeatMiss_MultiNodeMachine_DoesNotWipeSiblingAlerts(t *testing.T) {
	s := newFakeStore()
	e := NewEngine(s, testNamespace, nil, nil)
	ctx := context.Background()

	staleN2 := healthyObservation("m1", "n2", time.Now().Add(-20*time.Minute))
	_, err := e.Reconcile(ctx, "m1", []Observation{staleN2})
	require.NoError(t, err)
	require.Len(t, s.active, 2)

	// n1 misses its heartbeat; n2's existing alerts must survive as long as
	// n2's observation is passed alongside the miss, as the ingress caller
	// reconciling a whole machine always does.
	_, err = e.ReconcileHeartbeatMiss(ctx, "m1", "n1", []Observation{staleN2})
	require.NoError(t, err)
	require.Len(t, s.active, 3)
}

func TestFingerprint_StableAcrossCallsSameInput(t *testing.T) {
	c := Candidate{MachineID: "m1", NodeName: "n1", Kind: KindNoMetrics}
	a := Fingerprint(testNamespace, c)
	b := Fingerprint(testNamespace, c)
	require.Equal(t, a, b)
}

func TestFingerprint_DiffersByDetail(t *testing.T) {
	base := Candidate{MachineID: "m1", NodeName: "n1", Kind: KindNodeNeedsUpdate, Detail: map[string]string{"current": "v1", "recommended": "v2"}}
	other := Candidate{MachineID: "m1", NodeName: "n1", Kind: KindNodeNeedsUpdate, Detail: map[string]string{"current": "v1", "recommended": "v3"}}
	require.NotEqual(t, Fingerprint(testNamespace, base), Fingerprint(testNamespace, other))
}

func TestEnabledAndFlag_RoundTrip(t *testing.T) {
	flags := Flag(KindNoMetrics) | Flag(KindNodeNotRunning)
	require.True(t, Enabled(flags, KindNoMetrics))
	require.True(t, Enabled(flags, KindNodeNotRunning))
	require.False(t, Enabled(flags, KindNoChainInfo))
}
