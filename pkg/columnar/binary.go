package columnar

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeFixed returns the little-endian bytes of a fixed-width value slice.
func EncodeFixed(values any) ([]byte, error) {
	t, ok := TypeOf(values)
	if !ok || !t.IsFixedWidth() {
		return nil, fmt.Errorf("cannot encode %T as fixed-width data", values)
	}
	var buf bytes.Buffer
	buf.Grow(Len(values) * t.Size())
	if err := binary.Write(&buf, binary.LittleEndian, values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFixed decodes little-endian bytes into a typed slice of t.
func DecodeFixed(t Type, data []byte) (any, error) {
	if !t.IsFixedWidth() {
		return nil, fmt.Errorf("cannot decode %s as fixed-width data", t)
	}
	if len(data)%t.Size() != 0 {
		return nil, fmt.Errorf("%d bytes do not hold whole %s values", len(data), t)
	}
	out := MakeSlice(t, len(data)/t.Size())
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}
