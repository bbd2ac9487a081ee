// Package alert derives the currently-active alert set from observed node
// state, assigns each alert a deterministic identity so re-derivation is
// idempotent, and reconciles that set against what is already stored.
package alert

import (
	"time"

	"github.com/ivy-net/Ivynet-sub000/internal/store"
)

// Kind names a derivable alert condition. Bit position within an
// organisation's alert-flags bitmask.
type Kind string

const (
	KindNodeNotResponding         Kind = "NodeNotResponding"
	KindActiveSetNoDeployment     Kind = "ActiveSetNoDeployment"
	KindNoMetrics                 Kind = "NoMetrics"
	KindNodeNotRunning            Kind = "NodeNotRunning"
	KindNoChainInfo               Kind = "NoChainInfo"
	KindNodeNeedsUpdate           Kind = "NodeNeedsUpdate"
	KindNoOperatorID              Kind = "NoOperatorId"
	KindUnregisteredFromActiveSet Kind = "UnregisteredFromActiveSet"
)

// kindBit maps a Kind to its position in the organisation alert-flags
// bitmask (§ organisation.alert_flags). Bit order is assignment order, not
// semantic grouping, so adding a kind never reshuffles existing bits.
var kindBit = map[Kind]uint{
	KindNodeNotResponding:         0,
	KindActiveSetNoDeployment:     1,
	KindNoMetrics:                 2,
	KindNodeNotRunning:            3,
	KindNoChainInfo:               4,
	KindNodeNeedsUpdate:           5,
	KindNoOperatorID:              6,
	KindUnregisteredFromActiveSet: 7,
}

// Enabled reports whether flags has the bit for kind set.
func Enabled(flags uint64, kind Kind) bool {
	bit, ok := kindBit[kind]
	if !ok {
		return false
	}
	return flags&(1<<bit) != 0
}

// Flag returns the bitmask value for a single kind, for callers building an
// alert-flags value (e.g. admin tooling enabling a set of kinds at once).
func Flag(kind Kind) uint64 {
	bit, ok := kindBit[kind]
	if !ok {
		return 0
	}
	return 1 << bit
}

// Candidate is one alert condition derived from a single observation pass,
// before it has been assigned a deterministic id or compared against
// existing state.
type Candidate struct {
	MachineID string
	NodeName  string
	Kind      Kind
	Detail    map[string]string
}

// Observation is the node state a derivation pass runs over. It mirrors the
// subset of a store.Node row the derivation rules read, plus the computed
// update status needed for NodeNeedsUpdate.
type Observation struct {
	MachineID       string
	NodeName        string
	UpdatedAt       time.Time
	ActiveSet       bool
	OperatorAddress string
	MetricsAlive    bool
	NodeRunning     bool
	Chain           string
	UpdateStatus    string // one of "UpToDate", "Updateable", "Outdated", "Unknown" (ingress's updateStatusLabel, not nodetype.UpdateStatus.String())
	ObservedTag     string
	RecommendedTag  string
}

// Decision is the outcome of reconciling a derived candidate set against
// stored active alerts for one machine.
type Decision struct {
	New      []store.ActiveAlert
	Resolved []store.ActiveAlert
}
