package pushdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/runscan/pkg/rowrange"
	"github.com/ajitpratap0/runscan/pkg/runenc"
)

func fiveRuns(t *testing.T) *runenc.Column {
	t.Helper()
	col, err := runenc.Load("level", []int64{0, 200, 400, 600, 800}, []int64{10, 20, 30, 40, 50}, 1000)
	require.NoError(t, err)
	return col
}

func TestPruneRange(t *testing.T) {
	cols := map[string]*runenc.Column{"level": fiveRuns(t)}
	got := Prune(cols, []Filter{
		{Column: "level", Op: GreaterOrEqual, Value: 20},
		{Column: "level", Op: LessOrEqual, Value: 30},
	}, 1000, nil)
	assert.Equal(t, rowrange.List{{Start: 200, End: 600}}, got)
}

func TestPruneNoFilters(t *testing.T) {
	assert.Equal(t, rowrange.List{{Start: 0, End: 1000}}, Prune(nil, nil, 1000, nil))
	assert.Empty(t, Prune(nil, nil, 0, nil))
}

func TestPruneComparators(t *testing.T) {
	cols := map[string]*runenc.Column{"level": fiveRuns(t)}
	tests := []struct {
		op   Comparator
		v    any
		want rowrange.List
	}{
		{Equal, 30, rowrange.List{{Start: 400, End: 600}}},
		{Greater, 30, rowrange.List{{Start: 600, End: 1000}}},
		{GreaterOrEqual, 30, rowrange.List{{Start: 400, End: 1000}}},
		{Less, 30, rowrange.List{{Start: 0, End: 400}}},
		{LessOrEqual, 30, rowrange.List{{Start: 0, End: 600}}},
		{Equal, 35, nil},
		{Less, 25.5, rowrange.List{{Start: 0, End: 400}}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got := Prune(cols, []Filter{{Column: "level", Op: tt.op, Value: tt.v}}, 1000, nil)
			assert.Equal(t, len(tt.want), len(got))
			if len(tt.want) > 0 {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPruneLargeIntegersAgainstFloat(t *testing.T) {
	col, err := runenc.Load("big", []int64{0, 10, 20},
		[]int64{1<<53 - 1, 1 << 53, 1<<53 + 1}, 30)
	require.NoError(t, err)
	cols := map[string]*runenc.Column{"big": col}

	got := Prune(cols, []Filter{{Column: "big", Op: Greater, Value: float64(1 << 53)}}, 30, nil)
	assert.Equal(t, rowrange.List{{Start: 20, End: 30}}, got)

	got = Prune(cols, []Filter{{Column: "big", Op: Equal, Value: float64(1 << 53)}}, 30, nil)
	assert.Equal(t, rowrange.List{{Start: 10, End: 20}}, got)
}

func TestPruneUnsortedRuns(t *testing.T) {
	col, err := runenc.Load("v", []int64{0, 10, 20, 30, 40}, []int32{5, 1, 5, 5, 2}, 50)
	require.NoError(t, err)
	got := Prune(map[string]*runenc.Column{"v": col}, []Filter{{Column: "v", Op: Equal, Value: 5}}, 50, nil)
	assert.Equal(t, rowrange.List{{Start: 0, End: 10}, {Start: 20, End: 40}}, got)
}

func TestPruneIntersectsColumns(t *testing.T) {
	a, err := runenc.Load("a", []int64{0, 100, 300}, []string{"x", "y", "x"}, 500)
	require.NoError(t, err)
	b, err := runenc.Load("b", []int64{0, 50, 350}, []int32{0, 1, 0}, 500)
	require.NoError(t, err)

	got := Prune(map[string]*runenc.Column{"a": a, "b": b}, []Filter{
		{Column: "a", Op: Equal, Value: "x"},
		{Column: "b", Op: Equal, Value: 1},
	}, 500, nil)
	assert.Equal(t, rowrange.List{{Start: 50, End: 100}, {Start: 300, End: 350}}, got)
}

func TestPruneSkipsUnusableFilters(t *testing.T) {
	cols := map[string]*runenc.Column{"level": fiveRuns(t)}
	got := Prune(cols, []Filter{
		{Column: "level", Op: Equal, Value: "text"},
		{Column: "other", Op: Equal, Value: 1},
	}, 1000, nil)
	assert.Equal(t, rowrange.Full(1000), got)
}

func TestPrunePanicsOnUnclaimableComparator(t *testing.T) {
	cols := map[string]*runenc.Column{"level": fiveRuns(t)}
	assert.Panics(t, func() {
		Prune(cols, []Filter{{Column: "level", Op: NotEqual, Value: 10}}, 1000, nil)
	})
}

func TestComparator(t *testing.T) {
	assert.Equal(t, Less, Greater.Flip())
	assert.Equal(t, GreaterOrEqual, LessOrEqual.Flip())
	assert.Equal(t, Equal, Equal.Flip())
	assert.False(t, NotEqual.Claimable())
	assert.True(t, LessOrEqual.Claimable())
	assert.False(t, Equal.Holds(0, false))
	assert.True(t, NotEqual.Holds(1, true))
	assert.Equal(t, []Filter{{"c", GreaterOrEqual, 1}, {"c", LessOrEqual, 9}}, Between("c", 1, 9))
}
