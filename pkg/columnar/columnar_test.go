package columnar

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	for typ, name := range typeNames {
		got, err := ParseType(name)
		require.NoError(t, err)
		assert.Equal(t, typ, got)
		assert.Equal(t, name, typ.String())
	}
	got, err := ParseType("Double")
	require.NoError(t, err)
	assert.Equal(t, TypeFloat64, got)

	_, err = ParseType("decimal")
	assert.Error(t, err)
}

func TestTypeMapping(t *testing.T) {
	for typ := TypeInt8; typ <= TypeString; typ++ {
		back, ok := FromArrow(typ.ArrowType())
		require.True(t, ok, typ.String())
		assert.Equal(t, typ, back)

		s := MakeSlice(typ, 3)
		assert.Equal(t, 3, Len(s))
		of, ok := TypeOf(s)
		require.True(t, ok)
		assert.Equal(t, typ, of)
	}
	assert.Equal(t, 8, TypeFloat64.Size())
	assert.False(t, TypeString.IsFixedWidth())
	assert.True(t, TypeUint16.IsInteger())
	assert.False(t, TypeFloat32.IsInteger())
	assert.Equal(t, arrow.FIXED_SIZE_LIST, ColumnArrowType(TypeFloat32, 3).ID())
}

func TestSliceHelpers(t *testing.T) {
	dst := make([]int32, 5)
	n, err := Copy(dst, 2, []int32{7, 8, 9, 10})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int32{0, 0, 7, 8, 9}, dst)

	_, err = Copy(dst, 0, []int64{1})
	assert.Error(t, err)

	assert.Equal(t, []int32{8, 9}, Slice(dst, 3, 5))
	assert.Equal(t, int32(7), Index(dst, 2))

	wide, err := ToInt64s([]uint16{0, 3, 7})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 3, 7}, wide)
	_, err = ToInt64s([]uint64{math.MaxUint64})
	assert.Error(t, err)
	_, err = ToInt64s([]float64{1})
	assert.Error(t, err)
}

func TestConstantBlock(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	arr, err := ConstantArray(mem, TypeInt64, int64(42), 1000)
	require.NoError(t, err)
	defer arr.Release()

	ree, ok := arr.(*array.RunEndEncoded)
	require.True(t, ok)
	assert.Equal(t, 1000, ree.Len())
	assert.Equal(t, 1, ree.Values().Len())
	assert.Equal(t, int64(42), ValueAt(arr, 0))
	assert.Equal(t, int64(42), ValueAt(arr, 999))

	sliced := array.NewSlice(arr, 10, 20)
	defer sliced.Release()
	assert.Equal(t, int64(42), ValueAt(sliced, 5))
}

func TestRunBuilder(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	arr, err := NewRunBuilder(mem, TypeString).
		AppendRun("a", 3).
		AppendRun("b", 1).
		AppendRun("c", 2).
		Finish()
	require.NoError(t, err)
	defer arr.Release()

	ree := arr.(*array.RunEndEncoded)
	assert.Equal(t, 6, ree.Len())
	assert.Equal(t, 3, ree.Values().Len())
	assert.True(t, arrow.TypeEqual(RunArrowType(TypeString), arr.DataType()))
	got := make([]any, 6)
	for i := range got {
		got[i] = ValueAt(arr, i)
	}
	assert.Equal(t, []any{"a", "a", "a", "b", "c", "c"}, got)

	_, err = NewRunBuilder(mem, TypeInt64).AppendRun(int64(1), 0).Finish()
	assert.Error(t, err)
	_, err = NewRunBuilder(mem, TypeInt64).AppendRun("x", 1).Finish()
	assert.Error(t, err)
	_, err = ConstantArray(mem, TypeInt8, int8(1), math.MaxInt32+1)
	assert.Error(t, err)
}

func TestAppend(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	b := NewBuilder(mem, TypeString, 1)
	defer b.Release()
	require.NoError(t, Append(b, []string{"a", "b"}))
	require.NoError(t, AppendRepeat(b, "c", 2))
	assert.Error(t, Append(b, []int32{1}))
	arr := b.NewArray()
	defer arr.Release()
	assert.Equal(t, []any{"a", "b", "c", "c"}, []any{ValueAt(arr, 0), ValueAt(arr, 1), ValueAt(arr, 2), ValueAt(arr, 3)})

	got, err := Values(arr)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "c"}, got)
}

func TestFixedSizeList(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	b := NewBuilder(mem, TypeFloat32, 3)
	defer b.Release()
	require.NoError(t, Append(b, []float32{1, 2, 3, 4, 5, 6}))
	assert.Error(t, Append(b, []float32{1, 2}))
	arr := b.NewArray()
	defer arr.Release()

	require.Equal(t, 2, arr.Len())
	assert.Equal(t, []any{float32(4), float32(5), float32(6)}, ValueAt(arr, 1))

	tail := array.NewSlice(arr, 1, 2)
	defer tail.Release()
	flat, err := Values(tail)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, flat)
}

func TestConstantCompare(t *testing.T) {
	tests := []struct {
		name  string
		value any
		c     any
		want  int
		ok    bool
	}{
		{"int vs int", int32(5), 5, 0, true},
		{"int below", int8(-3), int64(2), -1, true},
		{"uint vs negative", uint32(0), -1, 1, true},
		{"int vs uint", int64(-1), uint64(3), -1, true},
		{"int vs float", int16(2), 2.5, -1, true},
		{"float vs int", 3.5, 3, 1, true},
		{"float32 vs float", float32(0.5), 0.5, 0, true},
		{"string", "b", "a", 1, true},
		{"nan", math.NaN(), 1.0, 0, false},
		{"json number", int64(10), json.Number("10"), 0, true},
		{"int above 2^53 vs float", int64(1<<53 + 1), float64(1 << 53), 1, true},
		{"float vs int above 2^53", float64(1 << 53), int64(1<<53 + 1), -1, true},
		{"uint above 2^53 vs float", uint64(1<<53 + 1), float64(1 << 53), 1, true},
		{"max int vs 2^63", int64(math.MaxInt64), 0x1p63, -1, true},
		{"min int vs -2^63", int64(math.MinInt64), -0x1p63, 0, true},
		{"max uint vs 2^64", uint64(math.MaxUint64), 0x1p64, -1, true},
		{"negative fraction above", int64(-1), -1.5, 1, true},
		{"negative fraction below", int64(-2), -1.5, -1, true},
		{"int vs -inf", int64(math.MinInt64), math.Inf(-1), 1, true},
		{"uint vs nan", uint8(1), math.NaN(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConstant(tt.c)
			require.NoError(t, err)
			got, ok := c.Compare(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	_, err := NewConstant([]int{1})
	assert.Error(t, err)

	c, err := NewConstant("x")
	require.NoError(t, err)
	assert.True(t, c.ComparableWith(TypeString))
	assert.False(t, c.ComparableWith(TypeInt32))
	assert.Equal(t, `"x"`, c.String())
}

func TestFixedEncoding(t *testing.T) {
	data, err := EncodeFixed([]int32{1, -2, 300})
	require.NoError(t, err)
	assert.Len(t, data, 12)
	assert.Equal(t, []byte{1, 0, 0, 0}, data[:4])

	out, err := DecodeFixed(TypeInt32, data)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -2, 300}, out)

	_, err = DecodeFixed(TypeInt32, data[:5])
	assert.Error(t, err)

	_, err = EncodeFixed([]string{"a"})
	assert.Error(t, err)
	_, err = DecodeFixed(TypeString, nil)
	assert.Error(t, err)

	empty, err := DecodeFixed(TypeFloat64, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{}, empty)
}
