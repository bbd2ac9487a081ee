package nodetype

import (
	"github.com/Masterminds/semver"
)

// ComputeUpdateStatus classifies an observed tag/digest against the known
// version table for a node type:
//
//	SemVer types:  parse observed_tag and latest_tag as semver.
//	               observed < breaking_change_tag (if set)        -> Outdated
//	               observed >= latest                              -> UpToDate
//	               otherwise                                        -> Updateable
//	               unparseable                                      -> Unknown
//	Fixed/Hybrid:  observed digest == latest_digest                -> UpToDate
//	               otherwise                                        -> Updateable
//	LocalOnly/OptInOnly: always Unknown.
func ComputeUpdateStatus(t NodeType, entry VersionTableEntry, observedTag, observedDigest string) UpdateStatus {
	switch t.Scheme() {
	case LocalOnly, OptInOnly:
		return StatusUnknown

	case Fixed, Hybrid:
		if entry.LatestDigest != "" && observedDigest == entry.LatestDigest {
			return StatusUpToDate
		}
		return StatusUpdateable

	case SemVer:
		observed, err := semver.NewVersion(observedTag)
		if err != nil {
			return StatusUnknown
		}
		latest, err := semver.NewVersion(entry.LatestTag)
		if err != nil {
			return StatusUnknown
		}

		if entry.HasBreakingChangeTag {
			breaking, err := semver.NewVersion(entry.BreakingChangeTag)
			if err == nil && observed.LessThan(breaking) {
				return StatusOutdated
			}
		}

		if observed.Equal(latest) || observed.GreaterThan(latest) {
			return StatusUpToDate
		}
		return StatusUpdateable

	default:
		return StatusUnknown
	}
}
