package security

import "sync/atomic"

// Counter tallies occurrences of each EventType with a lock-free atomic
// add, matching spec §4.10's "increment is lock-free" requirement.
// Resetting is intentionally not exposed: the spec treats the tally as
// monotonically non-decreasing for the lifetime of the process.
type Counter struct {
	counts map[EventType]*atomic.Uint64
}

// NewCounter builds a Counter pre-seeded with every known EventType at
// zero, so Snapshot always reports the full taxonomy.
func NewCounter() *Counter {
	c := &Counter{counts: make(map[EventType]*atomic.Uint64, len(AllEventTypes))}
	for _, et := range AllEventTypes {
		c.counts[et] = &atomic.Uint64{}
	}
	return c
}

// Increment bumps the count for et by one. Safe for concurrent use from
// any number of goroutines, and unordered with respect to increments of
// other EventTypes (spec §5).
func (c *Counter) Increment(et EventType) {
	counter, ok := c.counts[et]
	if !ok {
		// Defensive: an EventType outside AllEventTypes should never
		// reach here, but don't let it panic the hot path.
		return
	}
	counter.Add(1)
}

// Snapshot returns a point-in-time copy of every EventType's count,
// suitable for exposing to a host's own observability layer (telemetry
// export itself is out of scope, spec §1).
func (c *Counter) Snapshot() map[EventType]uint64 {
	out := make(map[EventType]uint64, len(c.counts))
	for et, counter := range c.counts {
		out[et] = counter.Load()
	}
	return out
}
