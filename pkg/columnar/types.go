package columnar

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Type is the element type of a column.
type Type int8

const (
	TypeInvalid Type = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
)

var typeNames = map[Type]string{
	TypeInt8:    "int8",
	TypeInt16:   "int16",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeUint8:   "uint8",
	TypeUint16:  "uint16",
	TypeUint32:  "uint32",
	TypeUint64:  "uint64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeString:  "string",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int8(t))
}

// ParseType resolves a type name such as "int32" or "float64".
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "double":
		return TypeFloat64, nil
	case "float":
		return TypeFloat32, nil
	case "utf8":
		return TypeString, nil
	}
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("unknown column type %q", name)
}

// Size returns the width of one element in bytes, or 0 for variable-width
// types.
func (t Type) Size() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// IsFixedWidth reports whether elements of t have a constant byte width.
func (t Type) IsFixedWidth() bool {
	return t.Size() > 0
}

// IsInteger reports whether t is a signed or unsigned integer type.
func (t Type) IsInteger() bool {
	return t >= TypeInt8 && t <= TypeUint64
}

// ArrowType returns the arrow type of a single element.
func (t Type) ArrowType() arrow.DataType {
	switch t {
	case TypeInt8:
		return arrow.PrimitiveTypes.Int8
	case TypeInt16:
		return arrow.PrimitiveTypes.Int16
	case TypeInt32:
		return arrow.PrimitiveTypes.Int32
	case TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case TypeUint8:
		return arrow.PrimitiveTypes.Uint8
	case TypeUint16:
		return arrow.PrimitiveTypes.Uint16
	case TypeUint32:
		return arrow.PrimitiveTypes.Uint32
	case TypeUint64:
		return arrow.PrimitiveTypes.Uint64
	case TypeFloat32:
		return arrow.PrimitiveTypes.Float32
	case TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case TypeString:
		return arrow.BinaryTypes.String
	default:
		return arrow.Null
	}
}

// ColumnArrowType returns the arrow type of a column whose rows hold width
// elements each. Width 1 is a plain column; larger widths are fixed-size
// lists.
func ColumnArrowType(t Type, width int) arrow.DataType {
	if width > 1 {
		return arrow.FixedSizeListOf(int32(width), t.ArrowType())
	}
	return t.ArrowType()
}

// RunArrowType returns the run-end encoded arrow type of a run-encoded column
// with values of type t.
func RunArrowType(t Type) arrow.DataType {
	return arrow.RunEndEncodedOf(arrow.PrimitiveTypes.Int32, t.ArrowType())
}

// FromArrow maps an arrow type back to a column type.
func FromArrow(dt arrow.DataType) (Type, bool) {
	switch dt.ID() {
	case arrow.INT8:
		return TypeInt8, true
	case arrow.INT16:
		return TypeInt16, true
	case arrow.INT32:
		return TypeInt32, true
	case arrow.INT64:
		return TypeInt64, true
	case arrow.UINT8:
		return TypeUint8, true
	case arrow.UINT16:
		return TypeUint16, true
	case arrow.UINT32:
		return TypeUint32, true
	case arrow.UINT64:
		return TypeUint64, true
	case arrow.FLOAT32:
		return TypeFloat32, true
	case arrow.FLOAT64:
		return TypeFloat64, true
	case arrow.STRING:
		return TypeString, true
	default:
		return TypeInvalid, false
	}
}

// TypeOf returns the element type of a typed slice.
func TypeOf(values any) (Type, bool) {
	switch values.(type) {
	case []int8:
		return TypeInt8, true
	case []int16:
		return TypeInt16, true
	case []int32:
		return TypeInt32, true
	case []int64:
		return TypeInt64, true
	case []uint8:
		return TypeUint8, true
	case []uint16:
		return TypeUint16, true
	case []uint32:
		return TypeUint32, true
	case []uint64:
		return TypeUint64, true
	case []float32:
		return TypeFloat32, true
	case []float64:
		return TypeFloat64, true
	case []string:
		return TypeString, true
	default:
		return TypeInvalid, false
	}
}

// Number is the set of fixed-width element types.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}
