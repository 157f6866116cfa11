package vectorizer

import "math"

// BacklogCap is the largest backlog the bounded probe counts exactly.
const BacklogCap int64 = 10000

// BacklogSentinel is returned by the bounded probe when the backlog exceeds
// BacklogCap.
const BacklogSentinel int64 = math.MaxInt64

// FanOut returns how many executor calls one run issues:
// min(ceil(backlog / batchSize), concurrency). It is zero for an empty backlog.
func FanOut(backlog int64, batchSize, concurrency int) int {
	if backlog <= 0 || batchSize <= 0 || concurrency <= 0 {
		return 0
	}
	b := int64(batchSize)
	batches := backlog / b
	if backlog%b != 0 {
		batches++
	}
	if batches > int64(concurrency) {
		return concurrency
	}
	return int(batches)
}
