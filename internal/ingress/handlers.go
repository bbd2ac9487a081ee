package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ivy-net/Ivynet-sub000/internal/alert"
	"github.com/ivy-net/Ivynet-sub000/internal/containerlog"
	"github.com/ivy-net/Ivynet-sub000/internal/heartbeat"
	"github.com/ivy-net/Ivynet-sub000/internal/identity"
	"github.com/ivy-net/Ivynet-sub000/internal/nodetype"
	"github.com/ivy-net/Ivynet-sub000/internal/store"
	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

// decodeJSON reads and decodes a request body, rejecting unknown fields so
// a malformed agent payload fails loudly rather than silently dropping
// data.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON writes v as the response body with a 200 status.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error to its RPC status and writes the JSON error
// body; errors that aren't an *RPCError are treated as internal.
func writeError(w http.ResponseWriter, err error) {
	rpcErr, ok := err.(*RPCError)
	if !ok {
		rpcErr = internalError(err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rpcErr.httpStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  string(rpcErr.Status),
		"message": rpcErr.Message,
	})
}

// authenticate looks up the machine a signed payload claims to be from and
// checks the recovered signer against its registered operator address.
func (s *Server) authenticate(r *http.Request, machineID string, canonical []byte, sig wire.Signature) (store.Machine, *RPCError) {
	machine, err := s.deps.Store.GetMachine(r.Context(), machineID)
	if err != nil {
		return store.Machine{}, unknownMachine("machine " + machineID + " is not registered")
	}

	recovered, err := identity.Recover(canonical, sig)
	if err != nil {
		return store.Machine{}, invalidSignature("could not recover signer: " + err.Error())
	}
	if recovered.String() != machine.OperatorAddress {
		return store.Machine{}, invalidSignature("recovered signer does not match the machine's registered operator")
	}
	return machine, nil
}

// handleRegister creates a machine row. Credential verification is out of
// scope: ResolveOrganisation is trusted to have already checked email and
// password, and PublicKey is the agent's self-declared operator address —
// there is no existing registered key to verify a signature against yet.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var p wire.RegisterPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, invalidArgument("malformed register payload: "+err.Error()))
		return
	}
	if p.MachineID == uuid.Nil || p.Hostname == "" {
		writeError(w, invalidArgument("machine_id and hostname are required"))
		return
	}

	orgID, err := s.deps.Accounts.ResolveOrganisation(r.Context(), p.Email, p.Password)
	if err != nil {
		writeError(w, invalidArgument("could not resolve account: "+err.Error()))
		return
	}

	var addr identity.Address
	copy(addr[:], p.PublicKey[:])

	machine := store.Machine{
		ID:              p.MachineID.String(),
		OrganisationID:  orgID,
		OperatorAddress: addr.String(),
		Hostname:        p.Hostname,
		CreatedAt:       time.Now(),
	}
	if err := s.deps.Store.CreateMachine(r.Context(), machine); err != nil {
		writeError(w, internalError(err.Error()))
		return
	}

	writeJSON(w, map[string]string{})
}

// handleMetrics persists a batch of metric samples and updates the node's
// metrics_alive flag.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var signed wire.SignedMetrics
	if err := decodeJSON(r, &signed); err != nil {
		writeError(w, invalidArgument("malformed metrics payload: "+err.Error()))
		return
	}

	machineID := signed.MachineID.String()
	machine, rpcErr := s.authenticate(r, machineID, wire.EncodeMetrics(signed.Payload), signed.Sig)
	if rpcErr != nil {
		writeError(w, rpcErr)
		return
	}

	avsName := ""
	if signed.Payload.AVSName != nil {
		avsName = *signed.Payload.AVSName
	}

	rows := make([]store.MetricRow, 0, len(signed.Payload.Samples))
	now := time.Now()
	for _, sample := range signed.Payload.Samples {
		rows = append(rows, store.MetricRow{
			MachineID:  machineID,
			AVSName:    avsName,
			Name:       sample.Name,
			Value:      sample.Value,
			Attributes: sample.Attributes,
			CreatedAt:  now,
		})
	}
	if err := s.deps.Store.RecordMetrics(r.Context(), rows); err != nil {
		writeError(w, internalError(err.Error()))
		return
	}

	if avsName != "" {
		alive := true
		if err := s.deps.Store.UpdateNodeFlags(r.Context(), machineID, avsName, &alive, nil); err != nil {
			writeError(w, internalError(err.Error()))
			return
		}
		s.reconcileNode(r.Context(), machine)
	}

	writeJSON(w, map[string]string{})
}

// handleLogs persists one log line.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var signed wire.SignedLog
	if err := decodeJSON(r, &signed); err != nil {
		writeError(w, invalidArgument("malformed log payload: "+err.Error()))
		return
	}

	machineID := signed.MachineID.String()
	if _, rpcErr := s.authenticate(r, machineID, wire.EncodeLog(signed.Payload), signed.Sig); rpcErr != nil {
		writeError(w, rpcErr)
		return
	}

	clean := containerlog.Sanitize(signed.Payload.LogText)
	row := store.LogRow{
		MachineID: machineID,
		AVSName:   signed.Payload.AVSName,
		Level:     containerlog.InferLevel(clean).String(),
		Text:      clean,
		CreatedAt: time.Now(),
	}
	if err := s.deps.Store.RecordLog(r.Context(), row); err != nil {
		writeError(w, internalError(err.Error()))
		return
	}
	writeJSON(w, map[string]string{})
}

// handleNodeData records node configuration/status changes and triggers
// alert reconciliation, since this is the RPC through which node_type,
// node_running, and metrics_alive all change.
func (s *Server) handleNodeData(w http.ResponseWriter, r *http.Request) {
	var signed wire.SignedNodeData
	if err := decodeJSON(r, &signed); err != nil {
		writeError(w, invalidArgument("malformed node data payload: "+err.Error()))
		return
	}
	if signed.Payload.Name == "" {
		writeError(w, invalidArgument("node name is required"))
		return
	}

	machineID := signed.MachineID.String()
	machine, rpcErr := s.authenticate(r, machineID, wire.EncodeNodeData(signed.Payload), signed.Sig)
	if rpcErr != nil {
		writeError(w, rpcErr)
		return
	}

	node := store.Node{MachineID: machineID, Name: signed.Payload.Name}
	if signed.Payload.NodeType != nil {
		node.NodeType = *signed.Payload.NodeType
	}
	if signed.Payload.ImageDigest != nil {
		node.ImageDigest = *signed.Payload.ImageDigest
	}
	if err := s.deps.Store.UpsertNode(r.Context(), node); err != nil {
		writeError(w, internalError(err.Error()))
		return
	}
	if signed.Payload.MetricsAlive != nil || signed.Payload.NodeRunning != nil {
		if err := s.deps.Store.UpdateNodeFlags(r.Context(), machineID, signed.Payload.Name,
			signed.Payload.MetricsAlive, signed.Payload.NodeRunning); err != nil {
			writeError(w, internalError(err.Error()))
			return
		}
	}

	s.reconcileNode(r.Context(), machine)
	writeJSON(w, map[string]string{})
}

// handleMachineData records host telemetry; it carries no alert
// implications of its own.
func (s *Server) handleMachineData(w http.ResponseWriter, r *http.Request) {
	var signed wire.SignedMachineData
	if err := decodeJSON(r, &signed); err != nil {
		writeError(w, invalidArgument("malformed machine data payload: "+err.Error()))
		return
	}

	machineID := signed.MachineID.String()
	if _, rpcErr := s.authenticate(r, machineID, wire.EncodeMachineData(signed.Payload), signed.Sig); rpcErr != nil {
		writeError(w, rpcErr)
		return
	}

	writeJSON(w, map[string]string{})
}

// handleNameChange renames a node and cascades to its stored metrics.
func (s *Server) handleNameChange(w http.ResponseWriter, r *http.Request) {
	var signed wire.SignedNameChange
	if err := decodeJSON(r, &signed); err != nil {
		writeError(w, invalidArgument("malformed name change payload: "+err.Error()))
		return
	}
	if signed.Payload.OldName == "" || signed.Payload.NewName == "" {
		writeError(w, invalidArgument("old_name and new_name are required"))
		return
	}

	machineID := signed.MachineID.String()
	if _, rpcErr := s.authenticate(r, machineID, wire.EncodeNameChange(signed.Payload), signed.Sig); rpcErr != nil {
		writeError(w, rpcErr)
		return
	}

	if err := s.deps.Store.RenameNode(r.Context(), machineID, signed.Payload.OldName, signed.Payload.NewName); err != nil {
		writeError(w, internalError(err.Error()))
		return
	}
	writeJSON(w, map[string]string{})
}

// handleNodeTypeQueries resolves a batch of container observations to
// canonical node types, consulting the digest cache before falling back to
// the static registry.
func (s *Server) handleNodeTypeQueries(w http.ResponseWriter, r *http.Request) {
	var queries []wire.NodeTypeQuery
	if err := decodeJSON(r, &queries); err != nil {
		writeError(w, invalidArgument("malformed node type query: "+err.Error()))
		return
	}

	results := make([]wire.NodeTypeQueryResult, 0, len(queries))
	for _, q := range queries {
		resolved := nodetype.Unknown()
		if q.ImageDigest != "" {
			if cached, err := s.deps.Store.ResolveNodeTypeFromDigest(r.Context(), q.ImageDigest); err == nil {
				if parsed, err := nodetype.Parse(cached); err == nil {
					resolved = parsed
				}
			}
		}
		if resolved.IsUnknown() {
			resolved = nodetype.ResolveNodeType(q.ImageDigest, q.ImageName, q.ContainerName, nil)
			if !resolved.IsUnknown() && q.ImageDigest != "" {
				_ = s.deps.Store.PutDigestMapping(r.Context(), q.ImageDigest, resolved.Canonical())
			}
		}
		results = append(results, wire.NodeTypeQueryResult{
			ContainerName: q.ContainerName,
			ResolvedType:  resolved.Canonical(),
		})
	}

	writeJSON(w, results)
}

// handleHeartbeat returns a handler bound to one heartbeat kind, recording
// the liveness ping and, for node-level heartbeats, reconciling alerts
// immediately rather than waiting for the sweep.
func (s *Server) handleHeartbeat(kind heartbeat.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var signed wire.SignedHeartbeat
		if err := decodeJSON(r, &signed); err != nil {
			writeError(w, invalidArgument("malformed heartbeat payload: "+err.Error()))
			return
		}

		machineID := signed.MachineID.String()
		machine, rpcErr := s.authenticate(r, machineID, wire.EncodeHeartbeat(signed.Payload), signed.Sig)
		if rpcErr != nil {
			writeError(w, rpcErr)
			return
		}

		s.deps.Heartbeats.Post(kind, heartbeatKey(machineID, signed.Payload.ID))

		if kind == heartbeat.KindNode && signed.Payload.ID != "" {
			s.reconcileNode(r.Context(), machine)
		}

		writeJSON(w, map[string]string{})
	}
}

// heartbeatKey scopes a heartbeat id to its owning machine, since node
// names are only unique within a machine.
func heartbeatKey(machineID, id string) string {
	return machineID + "/" + id
}

// reconcileNode re-derives alert state for every node on a machine,
// triggered by an event on one of them. Active alerts are stored per
// machine rather than per node, so reconciling only the node that changed
// would make the engine treat every sibling node's alerts as vanished and
// resolve them to history; listing and re-deriving the whole machine keeps
// them in the derived set. Lookup or reconciliation failures are
// swallowed, since alert derivation must never fail the RPC that
// triggered it.
func (s *Server) reconcileNode(ctx context.Context, machine store.Machine) {
	nodes, err := s.deps.Store.ListNodesForMachine(ctx, machine.ID)
	if err != nil {
		return
	}

	observations := make([]alert.Observation, 0, len(nodes))
	for _, node := range nodes {
		observations = append(observations, s.buildObservation(ctx, node))
	}

	engine := s.engineFor(machine.OrganisationID)
	_, _ = engine.Reconcile(ctx, machine.ID, observations)
}

// buildObservation converts a stored node row into the alert derivation
// input, resolving its update status against the version table.
func (s *Server) buildObservation(ctx context.Context, node store.Node) alert.Observation {
	canonical, err := nodetype.Parse(node.NodeType)
	if err != nil {
		canonical = nodetype.Unknown()
	}
	updateStatus := "Unknown"
	if !canonical.IsUnknown() {
		updateStatus = s.resolveUpdateStatus(ctx, canonical, node.Chain, node.ImageTag, node.ImageDigest)
	}

	return alert.Observation{
		MachineID:       node.MachineID,
		NodeName:        node.Name,
		UpdatedAt:       node.UpdatedAt,
		ActiveSet:       node.ActiveSet,
		OperatorAddress: node.OperatorAddress,
		MetricsAlive:    node.MetricsAlive,
		NodeRunning:     node.NodeRunning,
		Chain:           node.Chain,
		UpdateStatus:    updateStatus,
		ObservedTag:     node.ImageTag,
	}
}

