package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/heartbeat"
	"github.com/ivy-net/Ivynet-sub000/internal/identity"
	"github.com/ivy-net/Ivynet-sub000/internal/store"
	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite://file:"+t.Name()+"?mode=memory&cache=shared&_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	srv := NewServer(Deps{
		Store:      s,
		Versions:   store.NewVersionCache(s),
		Heartbeats: heartbeat.NewTracker(heartbeat.DefaultTTL),
		Accounts:   DefaultAccountResolver{OrganisationID: 1},
		Logger:     zap.NewNop(),
	})
	return srv, s
}

func seedOrgAndMachine(t *testing.T, s *store.Store, machineID string, addr identity.Address) {
	t.Helper()
	require.NoError(t, s.CreateOrganisation(context.Background(), 1, "acme"))
	require.NoError(t, s.CreateMachine(context.Background(), store.Machine{
		ID:              machineID,
		OrganisationID:  1,
		OperatorAddress: addr.String(),
		Hostname:        "host-1",
		CreatedAt:       time.Now(),
	}))
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleRegister_CreatesMachineWithPublicKeyAsOperatorAddress(t *testing.T) {
	srv, s := newTestServer(t)
	require.NoError(t, s.CreateOrganisation(context.Background(), 1, "acme"))

	machineID := uuid.New()
	signer, err := identity.GenerateSigner(machineID)
	require.NoError(t, err)
	addr := signer.Address()

	payload := wire.RegisterPayload{
		Email:     "ops@example.com",
		Password:  "hunter2",
		PublicKey: [20]byte(addr),
		MachineID: machineID,
		Hostname:  "host-1",
	}

	rec := postJSON(t, srv.Router(), "/rpc/register", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	m, err := s.GetMachine(context.Background(), machineID.String())
	require.NoError(t, err)
	require.Equal(t, addr.String(), m.OperatorAddress)
	require.Equal(t, int64(1), m.OrganisationID)
}

func TestHandleMetrics_UnknownMachineRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	machineID := uuid.New()
	signer, err := identity.GenerateSigner(machineID)
	require.NoError(t, err)

	name := "node1"
	signed := signer.SignMetrics(wire.MetricsPayload{AVSName: &name})
	rec := postJSON(t, srv.Router(), "/rpc/metrics", signed)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(StatusUnknownMachine), body["status"])
}

func TestHandleMetrics_WrongSignerRejected(t *testing.T) {
	srv, s := newTestServer(t)
	machineID := uuid.New()
	registered, err := identity.GenerateSigner(machineID)
	require.NoError(t, err)
	seedOrgAndMachine(t, s, machineID.String(), registered.Address())

	impostor, err := identity.GenerateSigner(machineID)
	require.NoError(t, err)

	name := "node1"
	signed := impostor.SignMetrics(wire.MetricsPayload{AVSName: &name})
	rec := postJSON(t, srv.Router(), "/rpc/metrics", signed)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleNodeData_CreatesNodeRow(t *testing.T) {
	srv, s := newTestServer(t)
	machineID := uuid.New()
	signer, err := identity.GenerateSigner(machineID)
	require.NoError(t, err)
	seedOrgAndMachine(t, s, machineID.String(), signer.Address())

	nodeType := "eigen-da"
	alive := true
	running := true
	signed := signer.SignNodeData(wire.NodeDataPayload{
		Name:         "node1",
		NodeType:     &nodeType,
		MetricsAlive: &alive,
		NodeRunning:  &running,
	})

	rec := postJSON(t, srv.Router(), "/rpc/node_data_v2", signed)
	require.Equal(t, http.StatusOK, rec.Code)

	node, err := s.GetNode(context.Background(), machineID.String(), "node1")
	require.NoError(t, err)
	require.Equal(t, "eigen-da", node.NodeType)
	require.True(t, node.MetricsAlive)
	require.True(t, node.NodeRunning)
}

func TestHandleNodeData_NotRunningDerivesAlert(t *testing.T) {
	srv, s := newTestServer(t)
	machineID := uuid.New()
	signer, err := identity.GenerateSigner(machineID)
	require.NoError(t, err)
	seedOrgAndMachine(t, s, machineID.String(), signer.Address())

	nodeType := "eigen-da"
	alive := true
	notRunning := false
	signed := signer.SignNodeData(wire.NodeDataPayload{
		Name:         "node1",
		NodeType:     &nodeType,
		MetricsAlive: &alive,
		NodeRunning:  &notRunning,
	})
	rec := postJSON(t, srv.Router(), "/rpc/node_data_v2", signed)
	require.Equal(t, http.StatusOK, rec.Code)

	alerts, err := s.ListActiveAlertsByMachine(context.Background(), machineID.String())
	require.NoError(t, err)

	var kinds []string
	for _, a := range alerts {
		kinds = append(kinds, a.Kind)
	}
	require.Contains(t, kinds, "NodeNotRunning")
}

func TestHandleNodeData_DoesNotResolveSiblingNodeAlertsOnMachine(t *testing.T) {
	srv, s := newTestServer(t)
	machineID := uuid.New()
	signer, err := identity.GenerateSigner(machineID)
	require.NoError(t, err)
	seedOrgAndMachine(t, s, machineID.String(), signer.Address())

	nodeType := "eigen-da"
	notRunning := false
	running := true
	alive := true

	// node1 starts out not running, deriving NodeNotRunning.
	signed1 := signer.SignNodeData(wire.NodeDataPayload{Name: "node1", NodeType: &nodeType, MetricsAlive: &alive, NodeRunning: &notRunning})
	rec := postJSON(t, srv.Router(), "/rpc/node_data_v2", signed1)
	require.Equal(t, http.StatusOK, rec.Code)

	alerts, err := s.ListActiveAlertsByMachine(context.Background(), machineID.String())
	require.NoError(t, err)
	require.NotEmpty(t, alerts)

	// node2 reports healthy; this must not resolve node1's still-open alert.
	signed2 := signer.SignNodeData(wire.NodeDataPayload{Name: "node2", NodeType: &nodeType, MetricsAlive: &alive, NodeRunning: &running})
	rec = postJSON(t, srv.Router(), "/rpc/node_data_v2", signed2)
	require.Equal(t, http.StatusOK, rec.Code)

	alerts, err = s.ListActiveAlertsByMachine(context.Background(), machineID.String())
	require.NoError(t, err)

	var node1StillHasNotRunning bool
	for _, a := range alerts {
		if a.NodeName == "node1" && a.Kind == "NodeNotRunning" {
			node1StillHasNotRunning = true
		}
	}
	require.True(t, node1StillHasNotRunning, "reconciling node2's event must not resolve node1's unrelated alert")
}

func TestHandleHeartbeatNode_RecordsLastSeen(t *testing.T) {
	srv, s := newTestServer(t)
	machineID := uuid.New()
	signer, err := identity.GenerateSigner(machineID)
	require.NoError(t, err)
	seedOrgAndMachine(t, s, machineID.String(), signer.Address())

	signed := signer.SignHeartbeat(wire.HeartbeatKind("node"), "node1")
	rec := postJSON(t, srv.Router(), "/rpc/heartbeat_node", signed)
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := srv.deps.Heartbeats.Get(heartbeat.KindNode, machineID.String()+"/node1")
	require.True(t, ok)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
