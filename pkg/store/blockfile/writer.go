package blockfile

import (
	"io"
	"os"

	"github.com/zeebo/xxh3"
	"go.uber.org/multierr"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/compression"
	"github.com/ajitpratap0/runscan/pkg/errors"
)

// Writer streams values into a block file.
type Writer struct {
	w         io.Writer
	comp      compression.Compressor
	typ       columnar.Type
	blockRows int64
	rowBytes  int
	pending   []byte
	offset    int64
	footer    footer
	closed    bool
}

// NewWriter starts a block file of element type t with width elements per
// row. A nil cfg selects the default codec.
func NewWriter(w io.Writer, t columnar.Type, width int, blockRows int64, cfg *compression.Config) (*Writer, error) {
	if !t.IsFixedWidth() {
		return nil, errors.Newf(errors.ErrorTypeValidation, "block files hold fixed-width types, not %s", t)
	}
	if width < 1 {
		width = 1
	}
	if blockRows <= 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "block rows must be positive, got %d", blockRows)
	}
	comp, err := compression.NewCompressor(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "block file codec")
	}
	return &Writer{
		w:         w,
		comp:      comp,
		typ:       t,
		blockRows: blockRows,
		rowBytes:  t.Size() * width,
		footer: footer{
			Version:     formatVersion,
			Type:        t.String(),
			Width:       width,
			BlockRows:   blockRows,
			Compression: string(comp.Algorithm()),
		},
	}, nil
}

// Write appends whole rows. values must be a slice of the writer's element
// type holding a multiple of the row width.
func (w *Writer) Write(values any) error {
	if w.closed {
		return errors.New(errors.ErrorTypeValidation, "write to closed block writer")
	}
	if t, ok := columnar.TypeOf(values); !ok || t != w.typ {
		return errors.Newf(errors.ErrorTypeValidation, "block writer of %s got %T", w.typ, values)
	}
	data, err := columnar.EncodeFixed(values)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "encode block values")
	}
	if len(data)%w.rowBytes != 0 {
		return errors.Newf(errors.ErrorTypeValidation, "%d elements do not fill rows of width %d", columnar.Len(values), w.footer.Width)
	}
	w.pending = append(w.pending, data...)

	blockBytes := int(w.blockRows) * w.rowBytes
	for len(w.pending) >= blockBytes {
		if err := w.flush(w.pending[:blockBytes]); err != nil {
			return err
		}
		w.pending = w.pending[blockBytes:]
	}
	return nil
}

func (w *Writer) flush(raw []byte) error {
	packed, err := w.comp.Compress(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "compress block")
	}
	if _, err := w.w.Write(packed); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "write block")
	}
	w.footer.Blocks = append(w.footer.Blocks, blockRef{
		Offset:   w.offset,
		Length:   int64(len(packed)),
		Checksum: xxh3.Hash(packed),
	})
	w.footer.Rows += int64(len(raw) / w.rowBytes)
	w.offset += int64(len(packed))
	return nil
}

// Close writes the final partial block and the footer. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.pending) > 0 {
		if err := w.flush(w.pending); err != nil {
			return err
		}
		w.pending = nil
	}
	trailer, err := encodeTrailer(&w.footer)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "encode block file footer")
	}
	if _, err := w.w.Write(trailer); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "write block file footer")
	}
	return nil
}

// WriteFile writes values as a block file at path.
func WriteFile(path string, values any, width int, blockRows int64, cfg *compression.Config) (err error) {
	t, ok := columnar.TypeOf(values)
	if !ok {
		return errors.Newf(errors.ErrorTypeValidation, "unsupported values %T", values)
	}
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "create block file")
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	w, err := NewWriter(f, t, width, blockRows, cfg)
	if err != nil {
		return err
	}
	if err := w.Write(values); err != nil {
		return err
	}
	return w.Close()
}
