package storage

import "sync/atomic"

// Stats tallies storage traffic since startup.
type Stats struct {
	Gets         uint64
	Puts         uint64
	BytesRead    uint64
	BytesWritten uint64
}

var stats Stats

// NotifyRead records a read of n value bytes.
func NotifyRead(n int) {
	atomic.AddUint64(&stats.Gets, 1)
	atomic.AddUint64(&stats.BytesRead, uint64(n))
}

// NotifyWrite records a write of n key and value bytes.
func NotifyWrite(n int) {
	atomic.AddUint64(&stats.Puts, 1)
	atomic.AddUint64(&stats.BytesWritten, uint64(n))
}

// GetStats returns a snapshot of storage traffic.
func GetStats() Stats {
	return Stats{
		Gets:         atomic.LoadUint64(&stats.Gets),
		Puts:         atomic.LoadUint64(&stats.Puts),
		BytesRead:    atomic.LoadUint64(&stats.BytesRead),
		BytesWritten: atomic.LoadUint64(&stats.BytesWritten),
	}
}
