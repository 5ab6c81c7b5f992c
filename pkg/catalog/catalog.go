// Package catalog opens the stores named by a catalog manifest and binds its
// columns into a scan.Catalog.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/config"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/scan"
	"github.com/ajitpratap0/runscan/pkg/store"
	"github.com/ajitpratap0/runscan/pkg/store/blockfile"
	"github.com/ajitpratap0/runscan/pkg/store/objectstore"
	"github.com/ajitpratap0/runscan/pkg/store/parquetstore"
	"github.com/ajitpratap0/runscan/pkg/store/rawfile"
)

// Opened is a bound catalog together with the stores it reads from.
type Opened struct {
	Name    string
	Catalog *scan.Catalog

	stores *stores
}

// Close releases every file and client opened for the catalog.
func (o *Opened) Close() error {
	return o.stores.close()
}

// Load reads the manifest at path and opens it.
func Load(ctx context.Context, path string, logger *zap.Logger) (*Opened, error) {
	var cfg config.CatalogConfig
	if err := config.Load(path, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "load catalog manifest")
	}
	return Open(ctx, &cfg, logger)
}

// Open opens the stores of cfg and binds its columns. Any store opened before
// a failure is closed again.
func Open(ctx context.Context, cfg *config.CatalogConfig, logger *zap.Logger) (_ *Opened, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid catalog manifest")
	}

	st := newStores(logger)
	defer func() {
		if err != nil {
			err = multierr.Append(err, st.close())
		}
	}()

	cat := &scan.Catalog{Rows: cfg.Rows}
	for _, col := range cfg.Columns {
		switch col.Kind {
		case config.KindRegular:
			ref, err := st.bind(ctx, col.Source)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "column %s", col.Name)
			}
			cat.Columns = append(cat.Columns, scan.Regular{Name: col.Name, Store: st, Ref: ref})
		case config.KindRunEncoded:
			starts, err := st.bind(ctx, col.RunStarts)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "column %s run starts", col.Name)
			}
			values, err := st.bind(ctx, col.Values)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "column %s values", col.Name)
			}
			cat.Columns = append(cat.Columns, scan.RunEncoded{Name: col.Name, Store: st, StartsRef: starts, ValuesRef: values})
		}
	}

	logger.Info("catalog opened",
		zap.String("name", cfg.Name),
		zap.Int("columns", len(cat.Columns)),
		zap.Int("stores", st.count()))
	return &Opened{Name: cfg.Name, Catalog: cat, stores: st}, nil
}

// stores routes references to the driver store that opened them. One instance
// of each file driver serves every local source; object stores are opened per
// bucket.
type stores struct {
	logger  *zap.Logger
	raw     *rawfile.Store
	block   *blockfile.Store
	parquet *parquetstore.Store

	mu      sync.RWMutex
	objects map[string]*objectstore.Store
	routes  map[string]store.Store
	closers []func() error
}

func newStores(logger *zap.Logger) *stores {
	return &stores{
		logger:  logger,
		raw:     rawfile.New(logger),
		block:   blockfile.New(logger),
		parquet: parquetstore.New(logger),
		objects: make(map[string]*objectstore.Store),
		routes:  make(map[string]store.Store),
	}
}

// bind opens src and returns the reference it is served under. Sources that
// resolve to the same reference are opened once.
func (s *stores) bind(ctx context.Context, src *config.SourceConfig) (string, error) {
	ref := refOf(src)
	s.mu.RLock()
	_, ok := s.routes[ref]
	s.mu.RUnlock()
	if ok {
		return ref, nil
	}

	var target store.Store
	switch src.Driver {
	case config.DriverRaw:
		t, err := columnar.ParseType(src.Type)
		if err != nil {
			return "", err
		}
		if err := s.raw.Open(ref, src.Path, t, src.Width()); err != nil {
			return "", err
		}
		target = s.raw
	case config.DriverBlock:
		if err := s.block.Open(ref, src.Path); err != nil {
			return "", err
		}
		target = s.block
	case config.DriverParquet:
		if err := s.parquet.Open(ctx, ref, src.Path, src.Column); err != nil {
			return "", err
		}
		target = s.parquet
	case config.DriverS3, config.DriverGCS:
		t, err := columnar.ParseType(src.Type)
		if err != nil {
			return "", err
		}
		obj, err := s.objectStore(ctx, src)
		if err != nil {
			return "", err
		}
		if err := obj.Open(ctx, ref, src.Key, t, src.Width(), src.Rows); err != nil {
			return "", err
		}
		target = obj
	default:
		return "", errors.Newf(errors.ErrorTypeConfig, "unknown driver %q", src.Driver)
	}

	if err := checkDeclared(ctx, target, ref, src); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.routes[ref] = target
	s.mu.Unlock()
	return ref, nil
}

// checkDeclared compares an optional declared type and shape with what the
// store found in the data.
func checkDeclared(ctx context.Context, target store.Store, ref string, src *config.SourceConfig) error {
	if src.Type == "" && len(src.Dims) == 0 {
		return nil
	}
	info, err := target.Describe(ctx, ref)
	if err != nil {
		return err
	}
	if src.Type != "" {
		t, err := columnar.ParseType(src.Type)
		if err != nil {
			return err
		}
		if t != info.Type {
			return errors.Newf(errors.ErrorTypeValidation, "%s declares %s but holds %s", ref, t, info.Type)
		}
	}
	if len(src.Dims) > 0 && src.Width() != info.Width {
		return errors.Newf(errors.ErrorTypeValidation, "%s declares width %d but holds %d", ref, src.Width(), info.Width)
	}
	return nil
}

func (s *stores) objectStore(ctx context.Context, src *config.SourceConfig) (*objectstore.Store, error) {
	key := fmt.Sprintf("%s://%s@%s", src.Driver, src.Bucket, src.Endpoint)
	if obj, ok := s.objects[key]; ok {
		return obj, nil
	}

	var backend objectstore.Backend
	switch src.Driver {
	case config.DriverS3:
		client, err := objectstore.NewS3Client(ctx, src.Region, src.Endpoint)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "create s3 client")
		}
		backend = objectstore.NewS3Backend(client, src.Bucket)
	default:
		client, err := objectstore.NewGCSClient(ctx, src.Credentials)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "create gcs client")
		}
		s.closers = append(s.closers, client.Close)
		backend = objectstore.NewGCSBackend(client, src.Bucket)
	}

	obj := objectstore.New(backend, objectstore.Options{ChunkRows: src.ChunkRows, Logger: s.logger})
	s.objects[key] = obj
	return obj, nil
}

func refOf(src *config.SourceConfig) string {
	switch src.Driver {
	case config.DriverParquet:
		return fmt.Sprintf("parquet:%s#%s", src.Path, src.Column)
	case config.DriverS3, config.DriverGCS:
		return fmt.Sprintf("%s://%s/%s", src.Driver, src.Bucket, src.Key)
	default:
		return src.Driver + ":" + src.Path
	}
}

func (s *stores) route(ref string) (store.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.routes[ref]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no store serves %q", ref)
	}
	return target, nil
}

func (s *stores) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.routes)
}

// Describe implements store.Store.
func (s *stores) Describe(ctx context.Context, ref string) (store.Info, error) {
	target, err := s.route(ref)
	if err != nil {
		return store.Info{}, err
	}
	return target.Describe(ctx, ref)
}

// ReadRows implements store.Store.
func (s *stores) ReadRows(ctx context.Context, ref string, start, count int64) (any, error) {
	target, err := s.route(ref)
	if err != nil {
		return nil, err
	}
	return target.ReadRows(ctx, ref, start, count)
}

// NativeChunkHint implements store.ChunkHinter.
func (s *stores) NativeChunkHint(ref string) int64 {
	target, err := s.route(ref)
	if err != nil {
		return 0
	}
	return store.ChunkHint(target, ref)
}

func (s *stores) close() error {
	err := multierr.Combine(s.raw.Close(), s.block.Close(), s.parquet.Close())
	for _, c := range s.closers {
		err = multierr.Append(err, c())
	}
	return err
}
