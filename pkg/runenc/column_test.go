package runenc

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/store/memstore"
)

func threeRuns(t *testing.T) *Column {
	t.Helper()
	col, err := Load("run", []int64{0, 3, 7}, []int32{100, 200, 300}, 10)
	require.NoError(t, err)
	return col
}

func TestValueAt(t *testing.T) {
	col := threeRuns(t)
	want := []int32{100, 100, 100, 200, 200, 200, 200, 300, 300, 300}
	for row, v := range want {
		assert.Equal(t, v, col.ValueAt(int64(row)), "row %d", row)
	}
	assert.Equal(t, 3, col.NumRuns())
	assert.Equal(t, int64(10), col.RunEnd(2))
	assert.Equal(t, columnar.TypeInt32, col.Type())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name   string
		starts []int64
		values any
		total  int64
	}{
		{"empty", []int64{}, []int32{}, 10},
		{"length mismatch", []int64{0, 5}, []int32{1}, 10},
		{"not increasing", []int64{0, 5, 5}, []int32{1, 2, 3}, 10},
		{"decreasing", []int64{0, 6, 4}, []int32{1, 2, 3}, 10},
		{"out of bounds", []int64{0, 10}, []int32{1, 2}, 10},
		{"leading gap", []int64{2, 5}, []int32{1, 2}, 10},
		{"bad type", []int64{0}, []bool{true}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("c", tt.starts, tt.values, tt.total)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}

	col, err := Load("empty", nil, []int64{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, col.NumRuns())
}

func TestEmitBatchSingleRunIsConstant(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)
	col := threeRuns(t)

	arr, err := col.EmitBatch(mem, 3, 4)
	require.NoError(t, err)
	defer arr.Release()

	ree, ok := arr.(*array.RunEndEncoded)
	require.True(t, ok, "expected a constant block, got %T", arr)
	assert.Equal(t, 4, ree.Len())
	assert.Equal(t, int32(200), columnar.ValueAt(arr, 3))
}

func TestEmitBatchAcrossRuns(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)
	col := threeRuns(t)

	arr, err := col.EmitBatch(mem, 1, 8)
	require.NoError(t, err)
	defer arr.Release()

	ree, ok := arr.(*array.RunEndEncoded)
	require.True(t, ok, "expected run-end encoding, got %T", arr)
	assert.Equal(t, 8, ree.Len())
	assert.Equal(t, []int32{100, 200, 300}, ree.Values().(*array.Int32).Int32Values())
	assert.Equal(t, []int32{2, 6, 8}, ree.RunEndsArr().(*array.Int32).Int32Values())
	assert.True(t, arrow.TypeEqual(col.ArrowType(), arr.DataType()))

	_, err = col.EmitBatch(mem, 8, 5)
	assert.Error(t, err)
	_, err = col.EmitBatch(mem, 0, 0)
	assert.Error(t, err)
}

func TestEmitBatchMatchesValueAt(t *testing.T) {
	col, err := Load("s", []int64{0, 1, 2, 50, 51, 90}, []string{"a", "b", "c", "d", "e", "f"}, 100)
	require.NoError(t, err)

	for _, size := range []int64{1, 7, 33, 100} {
		for start := int64(0); start < 100; start += size {
			n := min(size, 100-start)
			arr, err := col.EmitBatch(memory.DefaultAllocator, start, n)
			require.NoError(t, err)
			for i := int64(0); i < n; i++ {
				assert.Equal(t, col.ValueAt(start+i), columnar.ValueAt(arr, int(i)))
			}
			arr.Release()
		}
	}
}

func TestLoadFromStore(t *testing.T) {
	s := memstore.New().
		MustPut("starts", []uint32{0, 250, 500, 750}, 1).
		MustPut("values", []int64{1, 2, 3, 4}, 1).
		MustPut("wide", []int64{1, 2, 3, 4}, 2)

	col, err := LoadFromStore(context.Background(), s, "v", "starts", "values", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(3), col.ValueAt(600))

	_, err = LoadFromStore(context.Background(), s, "v", "missing", "values", 1000)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))

	_, err = LoadFromStore(context.Background(), s, "v", "starts", "wide", 1000)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
