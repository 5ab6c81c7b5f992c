package columnar

import (
	"fmt"
	"reflect"
)

// MakeSlice allocates a typed slice of n elements of type t.
func MakeSlice(t Type, n int) any {
	switch t {
	case TypeInt8:
		return make([]int8, n)
	case TypeInt16:
		return make([]int16, n)
	case TypeInt32:
		return make([]int32, n)
	case TypeInt64:
		return make([]int64, n)
	case TypeUint8:
		return make([]uint8, n)
	case TypeUint16:
		return make([]uint16, n)
	case TypeUint32:
		return make([]uint32, n)
	case TypeUint64:
		return make([]uint64, n)
	case TypeFloat32:
		return make([]float32, n)
	case TypeFloat64:
		return make([]float64, n)
	case TypeString:
		return make([]string, n)
	default:
		return nil
	}
}

// Len returns the length of a typed slice.
func Len(values any) int {
	if values == nil {
		return 0
	}
	return reflect.ValueOf(values).Len()
}

// Slice returns values[i:j] for a typed slice.
func Slice(values any, i, j int) any {
	return reflect.ValueOf(values).Slice(i, j).Interface()
}

// Index returns values[i] boxed.
func Index(values any, i int) any {
	return reflect.ValueOf(values).Index(i).Interface()
}

// Copy copies src into dst starting at element offset and returns the number
// of elements copied. Both slices must share an element type.
func Copy(dst any, offset int, src any) (int, error) {
	dv, sv := reflect.ValueOf(dst), reflect.ValueOf(src)
	if dv.Type() != sv.Type() {
		return 0, fmt.Errorf("cannot copy %T into %T", src, dst)
	}
	return reflect.Copy(dv.Slice(offset, dv.Len()), sv), nil
}

// ToInt64s widens an integer slice to []int64. Run start offsets may be stored
// with any integer width.
func ToInt64s(values any) ([]int64, error) {
	switch v := values.(type) {
	case []int64:
		out := make([]int64, len(v))
		copy(out, v)
		return out, nil
	case []int8:
		return widen(v), nil
	case []int16:
		return widen(v), nil
	case []int32:
		return widen(v), nil
	case []uint8:
		return widen(v), nil
	case []uint16:
		return widen(v), nil
	case []uint32:
		return widen(v), nil
	case []uint64:
		out := make([]int64, len(v))
		for i, x := range v {
			if x > 1<<63-1 {
				return nil, fmt.Errorf("offset %d at %d overflows int64", x, i)
			}
			out[i] = int64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("run starts must be integers, got %T", values)
	}
}

func widen[T ~int8 | ~int16 | ~int32 | ~uint8 | ~uint16 | ~uint32](v []T) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}
