package transfer

import "math"

// ProgressFunc receives a whole percentage in [0, 100].
type ProgressFunc func(percent int)

// Percent returns round(done/total*100). An empty total counts as complete.
func Percent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// ChunkCount returns how many chunks a file of size bytes is split into.
func ChunkCount(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return (size + ChunkSize - 1) / ChunkSize
}
