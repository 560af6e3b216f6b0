package indexer

// HNSWUpdate is the index update chosen at the end of a session
type HNSWUpdate string

const (
	HNSWIncremental HNSWUpdate = "incremental"
	HNSWFullRebuild HNSWUpdate = "full_rebuild"
	HNSWSkipped     HNSWUpdate = "skipped"
)

// IncrementalThreshold is the change ratio at which a full rebuild wins
const IncrementalThreshold = 0.30

// ChangeRatio returns changed / max(1, current)
func ChangeRatio(changed, current int) float64 {
	return float64(changed) / float64(max(1, current))
}

// Decide picks the update strategy. current is the live vector count
// before the changes were applied.
func Decide(changed, current int, indexExists bool) HNSWUpdate {
	switch {
	case changed == 0:
		return HNSWSkipped
	case !indexExists || current == 0:
		return HNSWFullRebuild
	case ChangeRatio(changed, current) < IncrementalThreshold:
		return HNSWIncremental
	default:
		return HNSWFullRebuild
	}
}
