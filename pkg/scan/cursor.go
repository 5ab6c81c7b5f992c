package scan

import (
	"sync"

	"github.com/ajitpratap0/runscan/pkg/rowrange"
)

// RangeCursor hands out batches of rows drawn from a pruned range list. Each
// row of the list is assigned to exactly one batch, batches never span two
// ranges, and batch starts are non-decreasing. Safe for concurrent use.
type RangeCursor struct {
	mu       *sync.Mutex
	ranges   rowrange.List
	position int64
	// index of the first range that may still have unassigned rows
	next int
}

// NewRangeCursor creates a cursor over ranges.
func NewRangeCursor(ranges rowrange.List) *RangeCursor {
	return newRangeCursor(ranges, &sync.Mutex{})
}

func newRangeCursor(ranges rowrange.List, mu *sync.Mutex) *RangeCursor {
	return &RangeCursor{mu: mu, ranges: ranges}
}

// Next assigns the next batch of at most maxRows rows. ok is false once the
// ranges are exhausted.
func (c *RangeCursor) Next(maxRows int64) (batch rowrange.RowRange, ok bool) {
	if maxRows <= 0 {
		return rowrange.RowRange{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for c.next < len(c.ranges) && c.ranges[c.next].End <= c.position {
		c.next++
	}
	if c.next == len(c.ranges) {
		return rowrange.RowRange{}, false
	}

	r := c.ranges[c.next]
	start := max(c.position, r.Start)
	length := min(maxRows, r.End-start)
	c.position = start + length
	return rowrange.RowRange{Start: start, End: start + length}, true
}

// Position returns the first row not yet assigned.
func (c *RangeCursor) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}
