// Package wire defines the payload types exchanged between agent and
// ingress, and their canonical byte encoding for signing.
package wire

import (
	"github.com/google/uuid"
)

// Sample is one Prometheus-style metric observation.
type Sample struct {
	Name       string
	Value      float64
	Attributes map[string]string
}

// MetricsPayload is the body of a `metrics` RPC.
type MetricsPayload struct {
	MachineID uuid.UUID
	AVSName   *string
	Samples   []Sample
}

// NodeDataPayload is the body of a `node_data_v2` RPC.
// Fields are pointers so the zero value distinguishes "unchanged" from
// "set to empty/false".
type NodeDataPayload struct {
	MachineID    uuid.UUID
	Name         string
	NodeType     *string
	ImageDigest  *string
	MetricsAlive *bool
	NodeRunning  *bool
}

// LogPayload is the body of a `logs` RPC.
type LogPayload struct {
	MachineID uuid.UUID
	AVSName   string
	LogText   string
}

// NameChangePayload is the body of a `name_change` RPC.
type NameChangePayload struct {
	MachineID uuid.UUID
	OldName   string
	NewName   string
}

// MachineDataPayload is the body of a `machine_data` RPC (host telemetry).
type MachineDataPayload struct {
	MachineID   uuid.UUID
	AgentVer    string
	CPUPercent  float64
	RAMUsed     uint64
	RAMFree     uint64
	DiskUsed    uint64
	DiskFree    uint64
	CoreCount   int
	UptimeSecs  uint64
}

// RegisterPayload is the body of the `register` RPC — the sole RPC that
// creates rather than authenticates against a machine row.
type RegisterPayload struct {
	Email      string
	Password   string
	PublicKey  [20]byte
	MachineID  uuid.UUID
	Hostname   string
}

// NodeTypeQuery is one element of a `node_type_queries` request.
type NodeTypeQuery struct {
	ImageDigest   string
	ImageName     string
	ContainerName string
}

// NodeTypeQueryResult is one element of a `node_type_queries` response.
type NodeTypeQueryResult struct {
	ContainerName string
	ResolvedType  string
}

// HeartbeatKind distinguishes the three heartbeat maps the ingress tracks.
type HeartbeatKind string

const (
	HeartbeatClient  HeartbeatKind = "client"
	HeartbeatMachine HeartbeatKind = "machine"
	HeartbeatNode    HeartbeatKind = "node"
)

// HeartbeatPayload is the body of a `heartbeat_{client,machine,node}` RPC.
type HeartbeatPayload struct {
	MachineID uuid.UUID
	Kind      HeartbeatKind
	ID        string
}

// Signature is the 65-byte recoverable ECDSA signature (r‖s‖v) that covers
// the canonical encoding of a payload.
type Signature [65]byte

// SignedMetrics is the signed form of MetricsPayload sent over the wire.
type SignedMetrics struct {
	MachineID uuid.UUID
	Payload   MetricsPayload
	Sig       Signature
}

// SignedNodeData is the signed form of NodeDataPayload.
type SignedNodeData struct {
	MachineID uuid.UUID
	Payload   NodeDataPayload
	Sig       Signature
}

// SignedNameChange is the signed form of NameChangePayload.
type SignedNameChange struct {
	MachineID uuid.UUID
	Payload   NameChangePayload
	Sig       Signature
}

// SignedLog is the signed form of LogPayload.
type SignedLog struct {
	MachineID uuid.UUID
	Payload   LogPayload
	Sig       Signature
}

// SignedMachineData is the signed form of MachineDataPayload.
type SignedMachineData struct {
	MachineID uuid.UUID
	Payload   MachineDataPayload
	Sig       Signature
}

// SignedHeartbeat is the signed form of HeartbeatPayload.
type SignedHeartbeat struct {
	MachineID uuid.UUID
	Payload   HeartbeatPayload
	Sig       Signature
}
