package columnar

import (
	"fmt"
	"math"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

type sliceAppender[T any] interface {
	AppendValues([]T, []bool)
}

type valueAppender[T any] interface {
	Append(T)
}

// NewBuilder returns a builder for a column of type t with width elements per
// row.
func NewBuilder(mem memory.Allocator, t Type, width int) array.Builder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return array.NewBuilder(mem, ColumnArrowType(t, width))
}

// Append appends a typed slice to b. For fixed-size list builders values holds
// the flattened elements of whole rows.
func Append(b array.Builder, values any) error {
	if fb, ok := b.(*array.FixedSizeListBuilder); ok {
		width := int(fb.Type().(*arrow.FixedSizeListType).Len())
		n := Len(values)
		if n%width != 0 {
			return fmt.Errorf("%d elements do not fill rows of width %d", n, width)
		}
		fb.Reserve(n / width)
		for i := 0; i < n/width; i++ {
			fb.Append(true)
		}
		return Append(fb.ValueBuilder(), values)
	}

	switch values.(type) {
	case []int8:
		return appendSlice[int8](b, values)
	case []int16:
		return appendSlice[int16](b, values)
	case []int32:
		return appendSlice[int32](b, values)
	case []int64:
		return appendSlice[int64](b, values)
	case []uint8:
		return appendSlice[uint8](b, values)
	case []uint16:
		return appendSlice[uint16](b, values)
	case []uint32:
		return appendSlice[uint32](b, values)
	case []uint64:
		return appendSlice[uint64](b, values)
	case []float32:
		return appendSlice[float32](b, values)
	case []float64:
		return appendSlice[float64](b, values)
	case []string:
		return appendSlice[string](b, values)
	default:
		return fmt.Errorf("unsupported value slice %T", values)
	}
}

func appendSlice[T any](b array.Builder, values any) error {
	ab, ok := b.(sliceAppender[T])
	if !ok {
		return fmt.Errorf("builder %T cannot take %T", b, values)
	}
	ab.AppendValues(values.([]T), nil)
	return nil
}

// AppendRepeat appends the scalar v to b n times.
func AppendRepeat(b array.Builder, v any, n int) error {
	switch v.(type) {
	case int8:
		return appendRepeat[int8](b, v, n)
	case int16:
		return appendRepeat[int16](b, v, n)
	case int32:
		return appendRepeat[int32](b, v, n)
	case int64:
		return appendRepeat[int64](b, v, n)
	case uint8:
		return appendRepeat[uint8](b, v, n)
	case uint16:
		return appendRepeat[uint16](b, v, n)
	case uint32:
		return appendRepeat[uint32](b, v, n)
	case uint64:
		return appendRepeat[uint64](b, v, n)
	case float32:
		return appendRepeat[float32](b, v, n)
	case float64:
		return appendRepeat[float64](b, v, n)
	case string:
		return appendRepeat[string](b, v, n)
	default:
		return fmt.Errorf("unsupported scalar %T", v)
	}
}

func appendRepeat[T any](b array.Builder, v any, n int) error {
	ab, ok := b.(valueAppender[T])
	if !ok {
		return fmt.Errorf("builder %T cannot take %T", b, v)
	}
	x := v.(T)
	b.Reserve(n)
	for i := 0; i < n; i++ {
		ab.Append(x)
	}
	return nil
}

// ConstantArray returns an array of n rows that all hold v, encoded as a
// single run so that its size does not depend on n.
func ConstantArray(mem memory.Allocator, t Type, v any, n int) (arrow.Array, error) {
	return NewRunBuilder(mem, t).AppendRun(v, n).Finish()
}

// RunBuilder assembles a run-end encoded array one run at a time. Run ends
// use int32, so an array holds at most math.MaxInt32 rows.
type RunBuilder struct {
	values array.Builder
	ends   *array.Int32Builder
	rows   int64
	err    error
}

// NewRunBuilder returns a RunBuilder for runs of scalar values of type t.
func NewRunBuilder(mem memory.Allocator, t Type) *RunBuilder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &RunBuilder{
		values: NewBuilder(mem, t, 1),
		ends:   array.NewInt32Builder(mem),
	}
}

// AppendRun adds a run of n rows holding v. Errors are deferred to Finish.
func (b *RunBuilder) AppendRun(v any, n int) *RunBuilder {
	if b.err != nil {
		return b
	}
	if n <= 0 {
		b.err = fmt.Errorf("run of %d rows", n)
		return b
	}
	if b.rows+int64(n) > math.MaxInt32 {
		b.err = fmt.Errorf("run-end encoded block of %d rows exceeds run end range", b.rows+int64(n))
		return b
	}
	if err := AppendRepeat(b.values, v, 1); err != nil {
		b.err = err
		return b
	}
	b.rows += int64(n)
	b.ends.Append(int32(b.rows))
	return b
}

// Finish returns the array and releases the builder.
func (b *RunBuilder) Finish() (arrow.Array, error) {
	defer b.values.Release()
	defer b.ends.Release()
	if b.err != nil {
		return nil, b.err
	}
	values := b.values.NewArray()
	defer values.Release()
	ends := b.ends.NewArray()
	defer ends.Release()
	return array.NewRunEndEncodedArray(ends, values, int(b.rows), 0), nil
}

// ValueAt returns row i of arr as a Go value. Null rows return nil and
// fixed-size list rows return []any.
func ValueAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.RunEndEncoded:
		return ValueAt(a.Values(), physicalIndex(a, i))
	case *array.FixedSizeList:
		start, end := a.ValueOffsets(i)
		child := a.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, ValueAt(child, int(j)))
		}
		return out
	case *array.Int8:
		return a.Value(i)
	case *array.Int16:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return a.Value(i)
	case *array.Uint16:
		return a.Value(i)
	case *array.Uint32:
		return a.Value(i)
	case *array.Uint64:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	default:
		return arr.GetOneForMarshal(i)
	}
}

// physicalIndex finds the run holding logical row i of a run-end encoded
// array.
func physicalIndex(a *array.RunEndEncoded, i int) int {
	ends := a.RunEndsArr()
	target := int64(i + a.Data().Offset())
	return sort.Search(ends.Len(), func(j int) bool {
		return runEnd(ends, j) > target
	})
}

func runEnd(ends arrow.Array, j int) int64 {
	switch e := ends.(type) {
	case *array.Int16:
		return int64(e.Value(j))
	case *array.Int32:
		return int64(e.Value(j))
	default:
		return ends.(*array.Int64).Value(j)
	}
}

// Values copies the contents of a flat or fixed-size list array into a typed
// slice. Fixed-size lists are flattened. Nulls become zero values.
func Values(arr arrow.Array) (any, error) {
	switch a := arr.(type) {
	case *array.Int8:
		return clone(a.Int8Values()), nil
	case *array.Int16:
		return clone(a.Int16Values()), nil
	case *array.Int32:
		return clone(a.Int32Values()), nil
	case *array.Int64:
		return clone(a.Int64Values()), nil
	case *array.Uint8:
		return clone(a.Uint8Values()), nil
	case *array.Uint16:
		return clone(a.Uint16Values()), nil
	case *array.Uint32:
		return clone(a.Uint32Values()), nil
	case *array.Uint64:
		return clone(a.Uint64Values()), nil
	case *array.Float32:
		return clone(a.Float32Values()), nil
	case *array.Float64:
		return clone(a.Float64Values()), nil
	case *array.String:
		out := make([]string, a.Len())
		for i := range out {
			out[i] = a.Value(i)
		}
		return out, nil
	case *array.FixedSizeList:
		t, ok := FromArrow(a.DataType().(*arrow.FixedSizeListType).Elem())
		if !ok {
			return nil, fmt.Errorf("unsupported list element %s", a.DataType())
		}
		if a.Len() == 0 {
			return MakeSlice(t, 0), nil
		}
		start, _ := a.ValueOffsets(0)
		_, end := a.ValueOffsets(a.Len() - 1)
		child := array.NewSlice(a.ListValues(), start, end)
		defer child.Release()
		return Values(child)
	default:
		return nil, fmt.Errorf("unsupported array type %s", arr.DataType())
	}
}

func clone[T any](v []T) []T {
	out := make([]T, len(v))
	copy(out, v)
	return out
}
