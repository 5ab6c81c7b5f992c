// Package parquetstore reads columns of parquet files through the arrow
// parquet reader.
//
// A reference names one column of one file. Reads decode whole row groups, so
// the store reports the row group length as its native chunk size. Files are
// shared by every reference that points into them and accessed under a
// per-file lock.
package parquetstore

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/store"
)

type parquetFile struct {
	path string
	rdr  *file.Reader
	fr   *pqarrow.FileReader
	// first row of every row group, plus the total row count
	groupStarts []int64

	mu sync.Mutex
}

type decodedGroup struct {
	group  int
	values any
}

type dataset struct {
	file  *parquetFile
	field int
	info  store.Info

	// last row group decoded for this column, guarded by file.mu
	last *decodedGroup
}

// Store serves parquet columns registered under references.
type Store struct {
	mem    memory.Allocator
	logger *zap.Logger

	mu       sync.RWMutex
	files    map[string]*parquetFile
	datasets map[string]*dataset
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		mem:      memory.NewGoAllocator(),
		logger:   logger,
		files:    make(map[string]*parquetFile),
		datasets: make(map[string]*dataset),
	}
}

// Open registers column of the parquet file at path under ref.
func (s *Store) Open(ctx context.Context, ref, path, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, ok := s.files[path]
	if !ok {
		var err error
		pf, err = s.openFile(path)
		if err != nil {
			return err
		}
		s.files[path] = pf
	}

	schema, err := pf.fr.Schema()
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeIO, "parquet schema of %s", path)
	}
	indices := schema.FieldIndices(column)
	if len(indices) != 1 {
		return errors.Newf(errors.ErrorTypeNotFound, "parquet file %s has no column %q", path, column)
	}
	field := schema.Field(indices[0])
	t, width, err := elementType(field.Type)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeValidation, "parquet column %s.%s", path, column)
	}

	s.datasets[ref] = &dataset{
		file:  pf,
		field: indices[0],
		info:  store.Info{Type: t, Rows: pf.rdr.NumRows(), Width: width},
	}
	s.logger.Debug("parquet column opened",
		zap.String("ref", ref),
		zap.String("path", path),
		zap.String("column", column),
		zap.Int("row_groups", pf.rdr.NumRowGroups()))
	return nil
}

func (s *Store) openFile(path string) (*parquetFile, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "open parquet file %s", path)
	}
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, s.mem)
	if err != nil {
		rdr.Close()
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "arrow reader for %s", path)
	}

	starts := make([]int64, 0, rdr.NumRowGroups()+1)
	var row int64
	for i := 0; i < rdr.NumRowGroups(); i++ {
		starts = append(starts, row)
		row += rdr.MetaData().RowGroup(i).NumRows()
	}
	starts = append(starts, row)
	return &parquetFile{path: path, rdr: rdr, fr: fr, groupStarts: starts}, nil
}

func elementType(dt arrow.DataType) (columnar.Type, int, error) {
	if fsl, ok := dt.(*arrow.FixedSizeListType); ok {
		t, ok := columnar.FromArrow(fsl.Elem())
		if !ok || !t.IsFixedWidth() {
			return columnar.TypeInvalid, 0, errors.Newf(errors.ErrorTypeValidation, "unsupported list element %s", fsl.Elem())
		}
		return t, int(fsl.Len()), nil
	}
	t, ok := columnar.FromArrow(dt)
	if !ok {
		return columnar.TypeInvalid, 0, errors.Newf(errors.ErrorTypeValidation, "unsupported type %s", dt)
	}
	return t, 1, nil
}

func (s *Store) get(ref string) (*dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[ref]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "parquet dataset %q not opened", ref)
	}
	return d, nil
}

// Describe implements store.Store.
func (s *Store) Describe(_ context.Context, ref string) (store.Info, error) {
	d, err := s.get(ref)
	if err != nil {
		return store.Info{}, err
	}
	return d.info, nil
}

// NativeChunkHint implements store.ChunkHinter with the first row group's
// length.
func (s *Store) NativeChunkHint(ref string) int64 {
	d, err := s.get(ref)
	if err != nil || len(d.file.groupStarts) < 2 {
		return 0
	}
	return d.file.groupStarts[1]
}

// ReadRows implements store.Store.
func (s *Store) ReadRows(ctx context.Context, ref string, start, count int64) (any, error) {
	d, err := s.get(ref)
	if err != nil {
		return nil, err
	}
	if err := store.CheckWindow(ref, d.info, start, count); err != nil {
		return nil, err
	}

	pf := d.file
	pf.mu.Lock()
	defer pf.mu.Unlock()

	width := int64(d.info.Width)
	out := columnar.MakeSlice(d.info.Type, int(count*width))
	end := start + count
	for g := pf.groupOf(start); g < len(pf.groupStarts)-1 && pf.groupStarts[g] < end; g++ {
		values, err := d.group(ctx, g)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeIO, "read %s row group %d", ref, g)
		}
		gs := pf.groupStarts[g]
		lo := max(start, gs) - gs
		hi := min(end, pf.groupStarts[g+1]) - gs
		part := columnar.Slice(values, int(lo*width), int(hi*width))
		if _, err := columnar.Copy(out, int((gs+lo-start)*width), part); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "assemble row group rows")
		}
	}
	return out, nil
}

// groupOf returns the row group holding row.
func (pf *parquetFile) groupOf(row int64) int {
	lo, hi := 0, len(pf.groupStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if pf.groupStarts[mid] <= row {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// group decodes row group g of the dataset's column. Callers hold file.mu.
func (d *dataset) group(ctx context.Context, g int) (any, error) {
	if d.last != nil && d.last.group == g {
		return d.last.values, nil
	}
	chunked, err := d.file.fr.RowGroup(g).Column(d.field).Read(ctx)
	if err != nil {
		return nil, err
	}
	defer chunked.Release()

	rows := d.file.groupStarts[g+1] - d.file.groupStarts[g]
	values := columnar.MakeSlice(d.info.Type, int(rows)*d.info.Width)
	offset := 0
	for _, chunk := range chunked.Chunks() {
		part, err := columnar.Values(chunk)
		if err != nil {
			return nil, err
		}
		n, err := columnar.Copy(values, offset, part)
		if err != nil {
			return nil, err
		}
		offset += n
	}
	if offset != columnar.Len(values) {
		return nil, errors.Newf(errors.ErrorTypeIO, "row group %d decoded %d of %d elements", g, offset, columnar.Len(values))
	}
	d.last = &decodedGroup{group: g, values: values}
	return values, nil
}

// Close closes every file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for path, pf := range s.files {
		err = multierr.Append(err, pf.rdr.Close())
		delete(s.files, path)
	}
	s.datasets = make(map[string]*dataset)
	return err
}
