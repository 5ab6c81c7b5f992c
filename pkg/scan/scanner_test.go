package scan

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/config"
	"github.com/ajitpratap0/runscan/pkg/errors"
	"github.com/ajitpratap0/runscan/pkg/pushdown"
	"github.com/ajitpratap0/runscan/pkg/store/memstore"
)

// testTable has 1000 rows, a regular id column holding the row number and a
// run-encoded category column with four runs of 250 rows valued 1 to 4.
func testTable(t *testing.T) (*Catalog, *countingStore) {
	t.Helper()
	mem := memstore.New().
		MustPut("id", sequence(1000), 1).
		MustPut("score", func() []float64 {
			out := make([]float64, 1000)
			for i := range out {
				out[i] = float64(i) / 2
			}
			return out
		}(), 1).
		MustPut("embedding", func() []int32 {
			out := make([]int32, 2000)
			for i := range out {
				out[i] = int32(i)
			}
			return out
		}(), 2).
		MustPut("label", func() []string {
			out := make([]string, 1000)
			for i := range out {
				out[i] = string(rune('a' + i%26))
			}
			return out
		}(), 1).
		MustPut("category.starts", []int64{0, 250, 500, 750}, 1).
		MustPut("category.values", []int64{1, 2, 3, 4}, 1)
	st := &countingStore{Store: mem}

	return &Catalog{Columns: []ColumnSpec{
		Regular{Name: "id", Store: st, Ref: "id"},
		Regular{Name: "score", Store: st, Ref: "score"},
		Regular{Name: "embedding", Store: st, Ref: "embedding"},
		Regular{Name: "label", Store: st, Ref: "label"},
		RunEncoded{Name: "category", Store: st, StartsRef: "category.starts", ValuesRef: "category.values"},
	}}, st
}

func testConfig(batch, workers int) *config.Config {
	cfg := config.NewDefault("test")
	cfg.Performance.BatchSize = batch
	cfg.Performance.Workers = workers
	cfg.Cache.MinChunkRows = 1
	cfg.Cache.TargetChunkBytes = 256 * 8
	return cfg
}

type row struct {
	id       int64
	category int64
}

func collectRows(t *testing.T, sess *Session, workers int) []row {
	t.Helper()
	var (
		mu   sync.Mutex
		rows []row
	)
	err := sess.Drain(context.Background(), workers, func(_ context.Context, b *Batch) error {
		defer b.Release()
		ids := b.Column("id")
		cats := b.Column("category")
		mu.Lock()
		defer mu.Unlock()
		for i := 0; i < b.Len(); i++ {
			rows = append(rows, row{
				id:       columnar.ValueAt(ids, i).(int64),
				category: columnar.ValueAt(cats, i).(int64),
			})
		}
		return nil
	})
	require.NoError(t, err)
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	return rows
}

func TestScanEqualityFilterEmitsOneRun(t *testing.T) {
	catalog, _ := testTable(t)
	sc := New(catalog, testConfig(100, 4), zaptest.NewLogger(t))

	sess, err := sc.OpenScan(context.Background(), []string{"id", "category"},
		[]pushdown.Filter{{Column: "category", Op: pushdown.Equal, Value: int64(3)}})
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, int64(1000), sess.RowCountEstimate())
	assert.Equal(t, int64(250), sess.SelectedRows())

	rows := collectRows(t, sess, 4)
	require.Len(t, rows, 250)
	for i, r := range rows {
		assert.Equal(t, int64(500+i), r.id)
		assert.Equal(t, int64(3), r.category)
	}
	assert.Equal(t, int64(1000), sess.Done())
}

func TestScanWorkerCountDoesNotChangeOutput(t *testing.T) {
	filters := []pushdown.Filter{{Column: "category", Op: pushdown.GreaterOrEqual, Value: 2}}

	var outputs [][]row
	for _, workers := range []int{1, 8} {
		catalog, _ := testTable(t)
		sess, err := New(catalog, testConfig(37, workers), nil).
			OpenScan(context.Background(), []string{"id", "category"}, filters)
		require.NoError(t, err)
		outputs = append(outputs, collectRows(t, sess, workers))
		require.NoError(t, sess.Close())
	}

	require.Len(t, outputs[0], 750)
	assert.Equal(t, outputs[0], outputs[1])
}

func TestScanBatchEncoding(t *testing.T) {
	catalog, _ := testTable(t)
	sess, err := New(catalog, testConfig(100, 1), nil).
		OpenScan(context.Background(), []string{"category"}, nil)
	require.NoError(t, err)
	defer sess.Close()

	b, err := sess.NextBatch(context.Background(), 200)
	require.NoError(t, err)
	defer b.Release()
	assert.Equal(t, int64(0), b.Start)
	assert.Equal(t, 100, b.Len(), "clamped to the configured batch size")
	assert.Equal(t, arrow.RUN_END_ENCODED, b.Columns[0].DataType().ID())

	// rows 200..299 cross the boundary between the first two runs
	_, err = sess.NextBatch(context.Background(), 0)
	require.NoError(t, err)
	mixed, err := sess.NextBatch(context.Background(), 0)
	require.NoError(t, err)
	defer mixed.Release()
	assert.True(t, arrow.TypeEqual(b.Columns[0].DataType(), mixed.Columns[0].DataType()))
	assert.Equal(t, int64(1), columnar.ValueAt(mixed.Columns[0], 49))
	assert.Equal(t, int64(2), columnar.ValueAt(mixed.Columns[0], 50))

	rec := mixed.Record()
	defer rec.Release()
	assert.Equal(t, int64(100), rec.NumRows())
	assert.Equal(t, "category", rec.ColumnName(0))
}

func TestScanSchemaStableAcrossBatches(t *testing.T) {
	catalog, _ := testTable(t)
	sess, err := New(catalog, testConfig(100, 1), nil).
		OpenScan(context.Background(), []string{"id", "category"}, nil)
	require.NoError(t, err)
	defer sess.Close()

	var first *arrow.Schema
	for {
		b, err := sess.NextBatch(context.Background(), 0)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rec := b.Record()
		if first == nil {
			first = rec.Schema()
		} else {
			assert.True(t, first.Equal(rec.Schema()), "batch at row %d: %s", b.Start, rec.Schema())
		}
		rec.Release()
		b.Release()
	}
	require.NotNil(t, first)
}

func TestScanRegularColumnKinds(t *testing.T) {
	catalog, _ := testTable(t)
	sess, err := New(catalog, testConfig(64, 2), nil).
		OpenScan(context.Background(), []string{"score", "embedding", "label"},
			[]pushdown.Filter{{Column: "category", Op: pushdown.Equal, Value: 4}})
	require.NoError(t, err)
	defer sess.Close()

	b, err := sess.NextBatch(context.Background(), 10)
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, int64(750), b.Start)
	assert.Equal(t, 375.0, columnar.ValueAt(b.Column("score"), 0))
	assert.Equal(t, []any{int32(1500), int32(1501)}, columnar.ValueAt(b.Column("embedding"), 0))
	assert.Equal(t, arrow.FIXED_SIZE_LIST, b.Column("embedding").DataType().ID())
	assert.Equal(t, string(rune('a'+750%26)), columnar.ValueAt(b.Column("label"), 0))
}

func TestScanWithoutCache(t *testing.T) {
	catalog, st := testTable(t)
	cfg := testConfig(50, 2)
	cfg.Cache.Enabled = false

	sess, err := New(catalog, cfg, nil).OpenScan(context.Background(), []string{"id", "category"}, nil)
	require.NoError(t, err)
	defer sess.Close()
	opened := st.calls.Load()

	rows := collectRows(t, sess, 2)
	require.Len(t, rows, 1000)
	assert.Equal(t, int64(20), st.calls.Load()-opened, "one direct read per batch")
}

func TestScanCachedReadCount(t *testing.T) {
	catalog, st := testTable(t)
	sess, err := New(catalog, testConfig(50, 3), nil).OpenScan(context.Background(), []string{"id"}, nil)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Drain(context.Background(), 3, func(_ context.Context, b *Batch) error {
		b.Release()
		return nil
	}))
	// 256 row chunks over 1000 rows
	assert.Equal(t, int64(4), st.calls.Load())
	assert.Equal(t, int64(1000), sess.EmittedRows())
}

func TestScanEmptyProjection(t *testing.T) {
	catalog, _ := testTable(t)
	sess, err := New(catalog, nil, nil).OpenScan(context.Background(), nil, nil)
	require.NoError(t, err)

	_, err = sess.NextBatch(context.Background(), 10)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(0), sess.SelectedRows())
	assert.Equal(t, int64(1000), sess.RowCountEstimate())
}

func TestScanNoRows(t *testing.T) {
	mem := memstore.New().
		MustPut("starts", []int64{}, 1).
		MustPut("values", []int64{}, 1)
	catalog := &Catalog{Columns: []ColumnSpec{
		RunEncoded{Name: "c", Store: mem, StartsRef: "starts", ValuesRef: "values"},
	}}

	sess, err := New(catalog, nil, nil).OpenScan(context.Background(), []string{"c"}, nil)
	require.NoError(t, err)
	_, err = sess.NextBatch(context.Background(), 10)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(0), sess.RowCountEstimate())
}

func TestScanRunEncodedOnlyUsesCatalogRows(t *testing.T) {
	mem := memstore.New().
		MustPut("starts", []int32{0, 5}, 1).
		MustPut("values", []string{"x", "y"}, 1)
	catalog := &Catalog{Rows: 12, Columns: []ColumnSpec{
		RunEncoded{Name: "c", Store: mem, StartsRef: "starts", ValuesRef: "values"},
	}}

	sess, err := New(catalog, nil, nil).OpenScan(context.Background(), []string{"c"},
		[]pushdown.Filter{{Column: "c", Op: pushdown.Equal, Value: "y"}})
	require.NoError(t, err)

	b, err := sess.NextBatch(context.Background(), 0)
	require.NoError(t, err)
	defer b.Release()
	assert.Equal(t, int64(5), b.Start)
	assert.Equal(t, 7, b.Len())

	_, err = sess.NextBatch(context.Background(), 0)
	assert.Equal(t, io.EOF, err)
}

func TestScanUnknownColumn(t *testing.T) {
	catalog, _ := testTable(t)
	_, err := New(catalog, nil, nil).OpenScan(context.Background(), []string{"nope"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	_, err = New(catalog, nil, nil).OpenScan(context.Background(), []string{"id", "id"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestScanInvalidRunMetadata(t *testing.T) {
	mem := memstore.New().
		MustPut("id", sequence(10), 1).
		MustPut("starts", []int64{0, 4, 4}, 1).
		MustPut("values", []int64{1, 2, 3}, 1)
	catalog := &Catalog{Columns: []ColumnSpec{
		Regular{Name: "id", Store: mem, Ref: "id"},
		RunEncoded{Name: "c", Store: mem, StartsRef: "starts", ValuesRef: "values"},
	}}

	_, err := New(catalog, nil, nil).OpenScan(context.Background(), []string{"id"},
		[]pushdown.Filter{{Column: "c", Op: pushdown.Less, Value: 2}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestScanReadFailureIsSticky(t *testing.T) {
	catalog, st := testTable(t)
	st.fail = "score"

	sess, err := New(catalog, testConfig(100, 4), nil).
		OpenScan(context.Background(), []string{"id", "score"}, nil)
	require.NoError(t, err)
	defer sess.Close()

	var drainErr error
	finished := withTimeout(5*time.Second, func() {
		drainErr = sess.Drain(context.Background(), 4, func(_ context.Context, b *Batch) error {
			b.Release()
			return nil
		})
	})
	require.True(t, finished, "workers deadlocked after a read failure")
	require.Error(t, drainErr)

	_, err = sess.NextBatch(context.Background(), 0)
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestSessionClosed(t *testing.T) {
	catalog, _ := testTable(t)
	sess, err := New(catalog, nil, nil).OpenScan(context.Background(), []string{"id"}, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	_, err = sess.NextBatch(context.Background(), 0)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
