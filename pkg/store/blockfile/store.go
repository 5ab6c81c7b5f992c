package blockfile

import (
	"context"
	"sync"

	"github.com/zeebo/xxh3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/compression"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/mmap"
	"github.com/ajitpratap0/runscan/pkg/store"
)

type file struct {
	reader *mmap.Reader
	footer *footer
	info   store.Info
	comp   compression.Compressor

	// most recently decoded block, shared by reads that land in it
	mu        sync.Mutex
	lastIndex int
	lastBlock any
}

// Store serves block files registered under references.
type Store struct {
	logger *zap.Logger

	mu    sync.RWMutex
	files map[string]*file
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger, files: make(map[string]*file)}
}

// Open maps the block file at path and registers it under ref.
func (s *Store) Open(ref, path string) error {
	r, err := mmap.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "open block file")
	}
	f, err := load(r)
	if err != nil {
		r.Close()
		return errors.Wrapf(err, errors.ErrorTypeValidation, "block file %s", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.files[ref]; ok {
		old.reader.Close()
	}
	s.files[ref] = f
	s.logger.Debug("block file opened",
		zap.String("ref", ref),
		zap.String("path", path),
		zap.String("compression", f.footer.Compression),
		zap.Int("blocks", len(f.footer.Blocks)),
		zap.Int64("rows", f.info.Rows))
	return nil
}

func load(r *mmap.Reader) (*file, error) {
	ft, err := decodeTrailer(r.Len(), r.Slice)
	if err != nil {
		return nil, err
	}
	t, err := columnar.ParseType(ft.Type)
	if err != nil || !t.IsFixedWidth() {
		return nil, errors.Newf(errors.ErrorTypeValidation, "unsupported element type %q", ft.Type)
	}
	alg, err := compression.ParseAlgorithm(ft.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "block codec")
	}
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: alg, Level: compression.Default})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "block codec")
	}
	return &file{
		reader:    r,
		footer:    ft,
		info:      store.Info{Type: t, Rows: ft.Rows, Width: ft.Width},
		comp:      comp,
		lastIndex: -1,
	}, nil
}

func (s *Store) get(ref string) (*file, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[ref]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "block dataset %q not opened", ref)
	}
	return f, nil
}

// Describe implements store.Store.
func (s *Store) Describe(_ context.Context, ref string) (store.Info, error) {
	f, err := s.get(ref)
	if err != nil {
		return store.Info{}, err
	}
	return f.info, nil
}

// NativeChunkHint implements store.ChunkHinter. Chunks aligned to blocks
// decode every block once.
func (s *Store) NativeChunkHint(ref string) int64 {
	f, err := s.get(ref)
	if err != nil {
		return 0
	}
	return f.footer.BlockRows
}

// ReadRows implements store.Store.
func (s *Store) ReadRows(ctx context.Context, ref string, start, count int64) (any, error) {
	f, err := s.get(ref)
	if err != nil {
		return nil, err
	}
	if err := store.CheckWindow(ref, f.info, start, count); err != nil {
		return nil, err
	}

	width := int64(f.info.Width)
	out := columnar.MakeSlice(f.info.Type, int(count*width))
	if count == 0 {
		return out, nil
	}
	br := f.footer.BlockRows
	for b := start / br; b <= (start+count-1)/br; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		block, err := f.block(int(b))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeIO, "%s block %d", ref, b)
		}
		blockStart := b * br
		lo := max(start, blockStart) - blockStart
		hi := min(start+count, blockStart+br) - blockStart
		part := columnar.Slice(block, int(lo*width), int(hi*width))
		if _, err := columnar.Copy(out, int((blockStart+lo-start)*width), part); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "assemble block rows")
		}
	}
	return out, nil
}

// block returns the decoded elements of block i.
func (f *file) block(i int) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastIndex == i {
		return f.lastBlock, nil
	}

	ref := f.footer.Blocks[i]
	packed, err := f.reader.Slice(ref.Offset, ref.Length)
	if err != nil {
		return nil, err
	}
	if sum := xxh3.Hash(packed); sum != ref.Checksum {
		return nil, errors.Newf(errors.ErrorTypeValidation, "checksum mismatch: %x != %x", sum, ref.Checksum)
	}
	raw, err := f.comp.Decompress(packed)
	if err != nil {
		return nil, err
	}
	values, err := columnar.DecodeFixed(f.info.Type, raw)
	if err != nil {
		return nil, err
	}
	f.lastIndex, f.lastBlock = i, values
	return values, nil
}

// Close unmaps every file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for ref, f := range s.files {
		err = multierr.Append(err, f.reader.Close())
		delete(s.files, ref)
	}
	return err
}
