package scan

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/runscan/pkg/rowrange"
)

func TestCompletionTrackerOutOfOrder(t *testing.T) {
	tr := NewCompletionTracker(rowrange.Full(100), 100)
	assert.Equal(t, int64(0), tr.Done())

	tr.Complete(20, 30)
	assert.Equal(t, int64(0), tr.Done())
	assert.Equal(t, 1, tr.Pending())

	tr.Complete(0, 10)
	assert.Equal(t, int64(10), tr.Done())

	tr.Complete(10, 20)
	assert.Equal(t, int64(30), tr.Done())
	assert.Equal(t, 0, tr.Pending())
}

func TestCompletionTrackerSkipsPrunedRows(t *testing.T) {
	ranges := rowrange.List{{Start: 30, End: 40}, {Start: 60, End: 70}}
	tr := NewCompletionTracker(ranges, 100)
	assert.Equal(t, int64(30), tr.Done())

	tr.Complete(60, 70)
	assert.Equal(t, int64(30), tr.Done())

	tr.Complete(30, 40)
	assert.Equal(t, int64(100), tr.Done())
}

func TestCompletionTrackerNothingSelected(t *testing.T) {
	tr := NewCompletionTracker(rowrange.List{}, 50)
	assert.Equal(t, int64(50), tr.Done())
}

func TestCompletionTrackerNotifiesOnAdvance(t *testing.T) {
	var advances atomic.Int64
	tr := newCompletionTracker(rowrange.Full(30), 30, &sync.Mutex{}, func() { advances.Add(1) })

	tr.Complete(10, 20)
	assert.Equal(t, int64(0), advances.Load())
	tr.Complete(0, 10)
	assert.Equal(t, int64(1), advances.Load())
	assert.Equal(t, int64(20), tr.Done())
}

func TestCompletionTrackerConcurrent(t *testing.T) {
	ranges := rowrange.List{{Start: 0, End: 500}, {Start: 700, End: 1000}}
	c := NewRangeCursor(ranges)
	var batches []rowrange.RowRange
	for {
		b, ok := c.Next(13)
		if !ok {
			break
		}
		batches = append(batches, b)
	}
	rand.New(rand.NewSource(7)).Shuffle(len(batches), func(i, j int) {
		batches[i], batches[j] = batches[j], batches[i]
	})

	tr := NewCompletionTracker(ranges, 1000)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(batches); i += 4 {
				tr.Complete(batches[i].Start, batches[i].End)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(1000), tr.Done())
	assert.Equal(t, 0, tr.Pending())
}
