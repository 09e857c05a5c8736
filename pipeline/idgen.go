package pipeline

import "sync/atomic"

// Counter hands out ids above a persisted maximum. Safe for concurrent use.
type Counter struct {
	last atomic.Int64
}

// NewCounter creates a counter whose first id is seed+1
func NewCounter(seed int64) *Counter {
	c := &Counter{}
	c.last.Store(seed)
	return c
}

// Next returns a fresh id
func (c *Counter) Next() int64 { return c.last.Add(1) }

// Last returns the most recently issued id (the seed if none)
func (c *Counter) Last() int64 { return c.last.Load() }
