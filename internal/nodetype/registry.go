package nodetype

import "fmt"

// placeholderValue marks registry rows that are seeded but not yet filled
// in; these must be rejected outright rather than silently treated as
// Unknown.
const placeholderValue = "TBD"

// repoRegistry maps well-known image repositories to their canonical node
// type, mirroring `ivynet-node-type`'s hardcoded repo table.
var repoRegistry = map[string]NodeType{
	"layr-labs/eigenda":             {Outer: OuterEigenDA},
	"alt-research/mach-operator":    {Outer: OuterAltlayerMach, Inner: string(AltlayerGeneric)},
	"altlayer-labs/xterio-operator": {Outer: OuterAltlayerMach, Inner: string(AltlayerXterio)},
	"hyperlane-xyz/hyperlane-agent": {Outer: OuterHyperlane, Inner: string(HyperlaneActiveSet)},
	"lagrange-labs/worker":          {Outer: OuterLagrange},
	"chainbase-labs/chainbase-node": {Outer: OuterChainbase},
	"omni-network/halo":             {Outer: OuterOmni},
	"automata-network/multi-prover": {Outer: OuterAutomata},
}

// defaultNameRegistry maps well-known container default names to a
// canonical node type, the last-resort match before Unknown.
var defaultNameRegistry = map[string]NodeType{
	"eigenda-native-node": {Outer: OuterEigenDA},
	"mach-operator":       {Outer: OuterAltlayerMach, Inner: string(AltlayerGeneric)},
	"hyperlane-agent":     {Outer: OuterHyperlane, Inner: string(HyperlaneActiveSet)},
	"lagrange-worker":     {Outer: OuterLagrange},
}

// ResolveNodeType walks the priority chain: digest hit, then repo match,
// then container-name match, then Unknown.
func ResolveNodeType(digest, repo, containerName string, digestTable map[string]NodeType) NodeType {
	if digest != "" {
		if nt, ok := digestTable[digest]; ok {
			return nt
		}
	}
	if repo != "" {
		if nt, ok := repoRegistry[normalizeSeparators(repo)]; ok {
			return nt
		}
	}
	if containerName != "" {
		if nt, ok := defaultNameRegistry[normalizeSeparators(containerName)]; ok {
			return nt
		}
	}
	return Unknown()
}

// VersionTableEntry is a (node_type, chain) version-data row.
type VersionTableEntry struct {
	LatestTag            string
	LatestDigest         string
	BreakingChangeTag    string // empty if unset
	HasBreakingChangeTag bool
}

// UpdateStatus classifies an observed node's image against its version
// table entry.
type UpdateStatus int

const (
	StatusUpToDate UpdateStatus = iota
	StatusUpdateable
	StatusOutdated
	StatusUnknown
)

func (s UpdateStatus) String() string {
	switch s {
	case StatusUpToDate:
		return "up-to-date"
	case StatusUpdateable:
		return "updateable"
	case StatusOutdated:
		return "outdated"
	default:
		return "unknown"
	}
}

// ValidateRegistryEntry rejects placeholder registry values rather than
// silently matching Unknown.
func ValidateRegistryEntry(value string) error {
	if value == placeholderValue {
		return fmt.Errorf("nodetype: registry entry is a placeholder and must not be matched")
	}
	return nil
}
