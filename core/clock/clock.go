// Package clock tracks the current block height shared by the native
// modules.
package clock

import "sync/atomic"

// Clock is a monotonically advancing block height.
type Clock struct {
	height atomic.Uint64
}

// New returns a clock positioned at height.
func New(height uint64) *Clock {
	c := &Clock{}
	c.height.Store(height)
	return c
}

// Height returns the current block height.
func (c *Clock) Height() uint64 {
	return c.height.Load()
}

// Set moves the clock to height. Heights never move backwards.
func (c *Clock) Set(height uint64) {
	for {
		current := c.height.Load()
		if height <= current {
			return
		}
		if c.height.CompareAndSwap(current, height) {
			return
		}
	}
}

// Advance mines n blocks and returns the new height.
func (c *Clock) Advance(n uint64) uint64 {
	return c.height.Add(n)
}
