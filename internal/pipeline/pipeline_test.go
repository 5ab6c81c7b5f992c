package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/runscan/pkg/config"
	"github.com/ajitpratap0/runscan/pkg/pushdown"
	"github.com/ajitpratap0/runscan/pkg/scan"
	"github.com/ajitpratap0/runscan/pkg/store/memstore"
)

type memorySink struct {
	mu   sync.Mutex
	rows [][]any
	err  error
}

func (s *memorySink) WriteRows(rows [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func openSession(t *testing.T, columns ...string) *scan.Session {
	t.Helper()
	ids := make([]int64, 500)
	flags := make([]int32, 500)
	for i := range ids {
		ids[i] = int64(i)
		flags[i] = int32(i % 2)
	}
	st := memstore.New().
		MustPut("id", ids, 1).
		MustPut("flag", flags, 1).
		MustPut("zone.starts", []int64{0, 100}, 1).
		MustPut("zone.values", []string{"north", "south"}, 1)
	cat := &scan.Catalog{Columns: []scan.ColumnSpec{
		scan.Regular{Name: "id", Store: st, Ref: "id"},
		scan.Regular{Name: "flag", Store: st, Ref: "flag"},
		scan.RunEncoded{Name: "zone", Store: st, StartsRef: "zone.starts", ValuesRef: "zone.values"},
	}}

	cfg := config.NewDefault("pipeline-test")
	cfg.Performance.BatchSize = 32
	sess, err := scan.New(cat, cfg, zaptest.NewLogger(t)).OpenScan(context.Background(), columns, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func ids(rows [][]any) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r[0].(int64)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestRunEmitsEveryRow(t *testing.T) {
	sink := &memorySink{}
	p := New(openSession(t, "id", "zone"), sink, &Config{Workers: 4}, zaptest.NewLogger(t))
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(500), stats.Scanned)
	assert.Equal(t, int64(500), stats.Written)
	require.Len(t, sink.rows, 500)
	got := ids(sink.rows)
	for i, id := range got {
		assert.Equal(t, int64(i), id)
	}
	for _, r := range sink.rows {
		zone := "north"
		if r[0].(int64) >= 100 {
			zone = "south"
		}
		assert.Equal(t, zone, r[1])
	}
}

func TestRunAppliesFilters(t *testing.T) {
	expr, err := pushdown.ParsePredicate("flag = 1 AND id < 50")
	require.NoError(t, err)

	sink := &memorySink{}
	p := New(openSession(t, "id", "flag"), sink, &Config{Workers: 3, Output: []string{"id"}}, zaptest.NewLogger(t))
	p.AddFilter(func(row pushdown.Row) (bool, error) {
		return pushdown.Evaluate(expr, row)
	})
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(500), stats.Scanned)
	assert.Equal(t, int64(25), stats.Written)
	for _, r := range sink.rows {
		require.Len(t, r, 1)
		assert.Equal(t, int64(1), r[0].(int64)%2)
	}
}

func TestRunStopsAtLimit(t *testing.T) {
	sink := &memorySink{}
	p := New(openSession(t, "id"), sink, &Config{Workers: 2, Limit: 70}, zaptest.NewLogger(t))
	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(70), stats.Written)
	assert.Len(t, sink.rows, 70)
}

func TestRunErrors(t *testing.T) {
	t.Run("unknown output column", func(t *testing.T) {
		p := New(openSession(t, "id"), &memorySink{}, &Config{Output: []string{"flag"}}, nil)
		_, err := p.Run(context.Background())
		assert.ErrorContains(t, err, `"flag"`)
	})

	t.Run("sink failure", func(t *testing.T) {
		p := New(openSession(t, "id"), &memorySink{err: fmt.Errorf("disk full")}, nil, nil)
		_, err := p.Run(context.Background())
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("filter failure", func(t *testing.T) {
		p := New(openSession(t, "id"), &memorySink{}, nil, nil)
		p.AddFilter(func(pushdown.Row) (bool, error) { return false, fmt.Errorf("bad operand") })
		_, err := p.Run(context.Background())
		assert.ErrorContains(t, err, "bad operand")
	})
}
