// Package json encodes scan output with goccy/go-json and pooled buffers.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/runscan/pkg/pool"
)

var buffers = pool.New(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	func(b *bytes.Buffer) { b.Reset() },
)

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	return buffers.Get()
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		buffers.Discard()
		return
	}
	buffers.Put(buf)
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Format selects how a RowWriter frames rows.
type Format string

const (
	// Lines writes one object per line
	Lines Format = "lines"
	// Array writes a single JSON array
	Array Format = "array"
)

// ParseFormat accepts lines, jsonl or array.
func ParseFormat(name string) (Format, bool) {
	switch name {
	case "", "lines", "jsonl":
		return Lines, true
	case "array":
		return Array, true
	}
	return "", false
}

// RowWriter streams rows as JSON objects whose keys keep column order. It is
// safe for concurrent use; each row is written with a single Write call.
type RowWriter struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	keys   [][]byte
	rows   int64
	closed bool
}

// NewRowWriter creates a writer for rows with the given columns.
func NewRowWriter(w io.Writer, format Format, columns []string) (*RowWriter, error) {
	keys := make([][]byte, len(columns))
	for i, c := range columns {
		k, err := gojson.Marshal(c)
		if err != nil {
			return nil, err
		}
		keys[i] = append(k, ':')
	}
	return &RowWriter{w: w, format: format, keys: keys}, nil
}

// WriteRow writes one row. values must follow the column order.
func (rw *RowWriter) WriteRow(values []any) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if err := rw.encode(buf, values); err != nil {
		return err
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.flush(buf.Bytes())
}

// WriteRows writes a group of rows with one Write call so that rows of one
// batch stay together.
func (rw *RowWriter) WriteRows(rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	buf := GetBuffer()
	defer PutBuffer(buf)

	rw.mu.Lock()
	defer rw.mu.Unlock()
	for _, row := range rows {
		if err := rw.frame(buf); err != nil {
			return err
		}
		if err := rw.encode(buf, row); err != nil {
			return err
		}
		rw.rows++
	}
	_, err := rw.w.Write(buf.Bytes())
	return err
}

// Rows returns the number of rows written.
func (rw *RowWriter) Rows() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.rows
}

// Close terminates an array. It does not close the underlying writer.
func (rw *RowWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return nil
	}
	rw.closed = true
	if rw.format != Array {
		return nil
	}
	if rw.rows == 0 {
		_, err := rw.w.Write([]byte("[]\n"))
		return err
	}
	_, err := rw.w.Write([]byte("\n]\n"))
	return err
}

func (rw *RowWriter) flush(row []byte) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if err := rw.frame(buf); err != nil {
		return err
	}
	buf.Write(row)
	rw.rows++
	_, err := rw.w.Write(buf.Bytes())
	return err
}

// frame writes the separator that precedes the next row. Called with mu held.
func (rw *RowWriter) frame(buf *bytes.Buffer) error {
	if rw.closed {
		return io.ErrClosedPipe
	}
	if rw.format != Array {
		return nil
	}
	if rw.rows == 0 {
		buf.WriteString("[\n")
	} else {
		buf.WriteString(",\n")
	}
	return nil
}

func (rw *RowWriter) encode(buf *bytes.Buffer, values []any) error {
	buf.WriteByte('{')
	for i, key := range rw.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		var v any
		if i < len(values) {
			v = values[i]
		}
		data, err := gojson.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	if rw.format != Array {
		buf.WriteByte('\n')
	}
	return nil
}
