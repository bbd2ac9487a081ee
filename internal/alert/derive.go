package alert

import (
	"time"
)

// NotRespondingThreshold is how long a node can go without a node-data
// update before it is considered unresponsive.
const NotRespondingThreshold = 15 * time.Minute

// Derive runs the node-data derivation rules over one observation and
// returns every candidate alert that currently holds. Order is
// insignificant; callers diff this set against stored state by kind+detail
// identity, not by position.
func Derive(obs Observation, now time.Time) []Candidate {
	var out []Candidate

	notResponding := now.Sub(obs.UpdatedAt) > NotRespondingThreshold
	if notResponding {
		out = append(out, Candidate{MachineID: obs.MachineID, NodeName: obs.NodeName, Kind: KindNodeNotResponding})

		if obs.ActiveSet && obs.OperatorAddress != "" {
			out = append(out, Candidate{MachineID: obs.MachineID, NodeName: obs.NodeName, Kind: KindActiveSetNoDeployment})
		}
	}

	if !obs.MetricsAlive {
		out = append(out, Candidate{MachineID: obs.MachineID, NodeName: obs.NodeName, Kind: KindNoMetrics})
	}
	if !obs.NodeRunning {
		out = append(out, Candidate{MachineID: obs.MachineID, NodeName: obs.NodeName, Kind: KindNodeNotRunning})
	}
	if obs.Chain == "" {
		out = append(out, Candidate{MachineID: obs.MachineID, NodeName: obs.NodeName, Kind: KindNoChainInfo})
	}
	if obs.UpdateStatus == "Updateable" || obs.UpdateStatus == "Outdated" {
		out = append(out, Candidate{
			MachineID: obs.MachineID,
			NodeName:  obs.NodeName,
			Kind:      KindNodeNeedsUpdate,
			Detail:    map[string]string{"current": obs.ObservedTag, "recommended": obs.RecommendedTag},
		})
	}
	if obs.OperatorAddress == "" {
		out = append(out, Candidate{MachineID: obs.MachineID, NodeName: obs.NodeName, Kind: KindNoOperatorID})
	}
	if !obs.ActiveSet {
		out = append(out, Candidate{MachineID: obs.MachineID, NodeName: obs.NodeName, Kind: KindUnregisteredFromActiveSet})
	}

	return out
}

// HeartbeatMissCandidate builds the synthetic NodeNotResponding candidate
// the heartbeat sweep injects for a node whose TTL lapsed, so it flows
// through the same reconciliation path as a node-data derived one.
func HeartbeatMissCandidate(machineID, nodeName string) Candidate {
	return Candidate{MachineID: machineID, NodeName: nodeName, Kind: KindNodeNotResponding}
}

