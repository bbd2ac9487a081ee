// Package nodedata tracks the agent's last-reported state per configured
// node and emits only the fields that changed since the previous scrape
// cycle (metrics_alive is the one exception: it always reflects the
// current cycle).
package nodedata

import (
	"sync"

	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

// Observation is the reporter's current-cycle view of one node.
type Observation struct {
	Name         string
	NodeType     string
	ImageDigest  string
	MetricsAlive bool
	NodeRunning  bool
}

type lastState struct {
	nodeType    string
	imageDigest string
	nodeRunning bool
}

// Reporter diffs each cycle's Observation against the previous one and
// produces a wire.NodeDataPayload carrying only the changed fields.
type Reporter struct {
	mu    sync.Mutex
	state map[string]lastState // keyed by node name
}

// NewReporter builds an empty Reporter; the first observation for any
// node is always reported in full (nothing to diff against yet).
func NewReporter() *Reporter {
	return &Reporter{state: make(map[string]lastState)}
}

// Report computes the payload for one node's current-cycle observation
// and updates the reporter's memory of that node's last-known state.
func (r *Reporter) Report(obs Observation) wire.NodeDataPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.state[obs.Name]
	payload := wire.NodeDataPayload{
		Name:         obs.Name,
		MetricsAlive: &obs.MetricsAlive,
	}

	if !seen || prev.nodeType != obs.NodeType {
		nt := obs.NodeType
		payload.NodeType = &nt
	}
	if !seen || prev.imageDigest != obs.ImageDigest {
		digest := obs.ImageDigest
		payload.ImageDigest = &digest
	}
	if !seen || prev.nodeRunning != obs.NodeRunning {
		running := obs.NodeRunning
		payload.NodeRunning = &running
	}

	r.state[obs.Name] = lastState{
		nodeType:    obs.NodeType,
		imageDigest: obs.ImageDigest,
		nodeRunning: obs.NodeRunning,
	}

	return payload
}

// Forget drops a node's remembered state, used when a node is
// unregistered so a later re-registration reports in full again.
func (r *Reporter) Forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, name)
}
