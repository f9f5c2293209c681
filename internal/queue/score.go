package queue

// Pending-queue scores encode the priority tier in the high-order digits and
// a reversed schedule time in the low-order digits, so a single ZPOPMAX
// returns the highest tier first and, within a tier, the earliest-scheduled
// job first.
//
// tierSpan must exceed any epoch-millisecond timestamp the service will see
// (1e13 ms ~ year 2286) while keeping tier*tierSpan + remainder exactly
// representable in a float64 (< 2^53).
const tierSpan = 1e13

// queueScore computes the sorted-set score for a pending job.
func queueScore(p Priority, scheduledAtMs int64) float64 {
	return float64(p.Tier())*tierSpan + (tierSpan - float64(scheduledAtMs))
}
