package columnar

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type constKind uint8

const (
	kindInt constKind = iota
	kindUint
	kindFloat
	kindString
)

// Constant is a filter literal normalized to one of four comparison domains.
type Constant struct {
	kind constKind
	i    int64
	u    uint64
	f    float64
	s    string
	raw  any
}

// NewConstant normalizes a Go literal. Integers of any width, floats,
// strings and json.Number are accepted.
func NewConstant(v any) (Constant, error) {
	c := Constant{raw: v}
	switch x := v.(type) {
	case int:
		c.kind, c.i = kindInt, int64(x)
	case int8:
		c.kind, c.i = kindInt, int64(x)
	case int16:
		c.kind, c.i = kindInt, int64(x)
	case int32:
		c.kind, c.i = kindInt, int64(x)
	case int64:
		c.kind, c.i = kindInt, x
	case uint:
		c.kind, c.u = kindUint, uint64(x)
	case uint8:
		c.kind, c.u = kindUint, uint64(x)
	case uint16:
		c.kind, c.u = kindUint, uint64(x)
	case uint32:
		c.kind, c.u = kindUint, uint64(x)
	case uint64:
		c.kind, c.u = kindUint, x
	case float32:
		c.kind, c.f = kindFloat, float64(x)
	case float64:
		c.kind, c.f = kindFloat, x
	case string:
		c.kind, c.s = kindString, x
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			c.kind, c.i = kindInt, i
		} else if f, err := strconv.ParseFloat(string(x), 64); err == nil {
			c.kind, c.f = kindFloat, f
		} else {
			return Constant{}, fmt.Errorf("invalid number %q", x)
		}
	default:
		return Constant{}, fmt.Errorf("unsupported constant %T", v)
	}
	return c, nil
}

// Value returns the literal the constant was built from.
func (c Constant) Value() any {
	return c.raw
}

// IsString reports whether the constant is a string literal.
func (c Constant) IsString() bool {
	return c.kind == kindString
}

func (c Constant) String() string {
	if c.kind == kindString {
		return strconv.Quote(c.s)
	}
	return fmt.Sprint(c.raw)
}

// ComparableWith reports whether values of type t can be ordered against c.
func (c Constant) ComparableWith(t Type) bool {
	if t == TypeString {
		return c.kind == kindString
	}
	return t != TypeInvalid && c.kind != kindString
}

// Compare orders the column value v against c. ok is false when the pair is
// unordered (a NaN on either side) and every comparison must be treated as
// false. v must be comparable with c.
func (c Constant) Compare(v any) (result int, ok bool) {
	switch x := v.(type) {
	case int8:
		return c.compareInt(int64(x))
	case int16:
		return c.compareInt(int64(x))
	case int32:
		return c.compareInt(int64(x))
	case int64:
		return c.compareInt(x)
	case uint8:
		return c.compareUint(uint64(x))
	case uint16:
		return c.compareUint(uint64(x))
	case uint32:
		return c.compareUint(uint64(x))
	case uint64:
		return c.compareUint(x)
	case float32:
		return c.compareFloat(float64(x))
	case float64:
		return c.compareFloat(x)
	case string:
		return cmp.Compare(x, c.s), true
	default:
		return 0, false
	}
}

func (c Constant) compareInt(x int64) (int, bool) {
	switch c.kind {
	case kindInt:
		return cmp.Compare(x, c.i), true
	case kindUint:
		if x < 0 {
			return -1, true
		}
		return cmp.Compare(uint64(x), c.u), true
	default:
		return intFloatCompare(x, c.f)
	}
}

func (c Constant) compareUint(x uint64) (int, bool) {
	switch c.kind {
	case kindInt:
		if c.i < 0 {
			return 1, true
		}
		return cmp.Compare(x, uint64(c.i)), true
	case kindUint:
		return cmp.Compare(x, c.u), true
	default:
		return uintFloatCompare(x, c.f)
	}
}

func (c Constant) compareFloat(x float64) (int, bool) {
	switch c.kind {
	case kindInt:
		r, ok := intFloatCompare(c.i, x)
		return -r, ok
	case kindUint:
		r, ok := uintFloatCompare(c.u, x)
		return -r, ok
	default:
		return floatCompare(x, c.f)
	}
}

func floatCompare(a, b float64) (int, bool) {
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0, false
	}
	return cmp.Compare(a, b), true
}

// intFloatCompare orders x against f without converting x to float64, which
// would round integers above 2^53.
func intFloatCompare(x int64, f float64) (int, bool) {
	switch {
	case math.IsNaN(f):
		return 0, false
	case f >= 0x1p63:
		return -1, true
	case f < -0x1p63:
		return 1, true
	}
	t := math.Trunc(f)
	if r := cmp.Compare(x, int64(t)); r != 0 {
		return r, true
	}
	return cmp.Compare(t, f), true
}

func uintFloatCompare(x uint64, f float64) (int, bool) {
	switch {
	case math.IsNaN(f):
		return 0, false
	case f < 0:
		return 1, true
	case f >= 0x1p64:
		return -1, true
	}
	t := math.Trunc(f)
	if r := cmp.Compare(x, uint64(t)); r != 0 {
		return r, true
	}
	return cmp.Compare(t, f), true
}
