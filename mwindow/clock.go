package mwindow

import "time"

// Clock assigns strictly increasing timestamps to produced blocks.
//
// Wall-clock time can stall or regress relative to block production
// (sub-second intervals, NTP skew); the clock never lets a block's
// timestamp regress to or below its predecessor's.
type Clock struct {
	last uint64
}

// NewClock returns a clock whose last committed timestamp is now.
func NewClock(now time.Time) *Clock {
	return &Clock{last: uint64(now.Unix())}
}

// Next returns the timestamp for the next block:
// the wall clock, or one past the last committed timestamp,
// whichever is later.
//
// Next does not advance the clock; the caller commits the value
// only after the block is fully accepted.
func (c *Clock) Next(now time.Time) uint64 {
	return max(c.last+1, uint64(now.Unix()))
}

// Commit records the timestamp of a successfully produced block.
func (c *Clock) Commit(ts uint64) {
	c.last = ts
}

// Last returns the most recently committed timestamp.
func (c *Clock) Last() uint64 {
	return c.last
}
