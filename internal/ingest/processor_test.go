package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/maritimeviz/maritimeviz/internal/observability"
	"github.com/maritimeviz/maritimeviz/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	positions []*models.PositionReport
	static    []*models.StaticVoyage
	inserts   int
	initErr   error
	insertErr error
}

func (f *fakeStore) Initialize(context.Context) error { return f.initErr }

func (f *fakeStore) InsertPositions(_ context.Context, rows []*models.PositionReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserts++
	f.positions = append(f.positions, rows...)
	return nil
}

func (f *fakeStore) InsertStatic(_ context.Context, rows []*models.StaticVoyage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserts++
	f.static = append(f.static, rows...)
	return nil
}

type fakeSink struct {
	published int
	err       error
}

func (f *fakeSink) PublishPositions(_ context.Context, rows []*models.PositionReport) error {
	if f.err != nil {
		return f.err
	}
	f.published += len(rows)
	return nil
}

func TestProcessFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name  string
		write func(*testing.T, int) string
	}{
		{"plain", writeSample},
		{"gzip", writeGzipSample},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			metrics := observability.NewMetricsForTesting()
			p := NewProcessor(st, nil, Config{Workers: 3, ChunkSize: 3, BatchSize: 50}, zap.NewNop(), metrics)

			var last Progress
			calls := 0
			stats, err := p.ProcessFile(context.Background(), tt.write(t, 200), func(pr Progress) {
				last = pr
				calls++
			})
			require.NoError(t, err)

			assert.Equal(t, 1000, stats.Lines)
			assert.Equal(t, 200, stats.Decoded[1])
			assert.Equal(t, 200, stats.Decoded[3])
			assert.Equal(t, 200, stats.Decoded[5], "groups split across chunk boundaries are still reassembled")
			assert.Equal(t, 200, stats.Errors["not_ais"])
			assert.Equal(t, int64(400), stats.Rows123)
			assert.Equal(t, int64(200), stats.Rows5)
			assert.Equal(t, 3, stats.Threads)
			assert.Equal(t, 3, stats.ChunkSize)

			assert.Len(t, st.positions, 400)
			assert.Len(t, st.static, 200)
			assert.Greater(t, st.inserts, 2, "rows are flushed in batches")

			assert.Greater(t, calls, 0)
			assert.Equal(t, 1000, last.Lines)
			assert.InDelta(t, 100, last.Percent(), 0.001)

			assert.Equal(t, float64(1000), testutil.ToFloat64(metrics.LinesRead))
			assert.Equal(t, float64(400), testutil.ToFloat64(metrics.RowsStored.WithLabelValues(store.TablePositions)))
			assert.Equal(t, float64(200), testutil.ToFloat64(metrics.DecodeErrors.WithLabelValues("not_ais")))
		})
	}
}

func TestProcessFile_TagBlocksAttached(t *testing.T) {
	st := &fakeStore{}
	p := NewProcessor(st, nil, Config{Workers: 1}, nil, nil)

	_, err := p.ProcessFile(context.Background(), writeSample(t, 1), nil)
	require.NoError(t, err)

	require.Len(t, st.positions, 2)
	var withTag *models.PositionReport
	for _, pos := range st.positions {
		if pos.ID == 1 {
			withTag = pos
		}
	}
	require.NotNil(t, withTag)
	assert.Equal(t, int64(1469664000), withTag.TagBlock.Timestamp)
	assert.Equal(t, "rORBCOMM000", withTag.TagBlock.Station)

	require.Len(t, st.static, 1)
	assert.Equal(t, "EVER DIADEM", st.static[0].ShipName)
	require.NotNil(t, st.static[0].TagBlock.Group)
	assert.Equal(t, 1234, st.static[0].TagBlock.Group.GroupID)
}

func TestProcessFile_Sink(t *testing.T) {
	t.Run("publishes stored positions", func(t *testing.T) {
		sink := &fakeSink{}
		metrics := observability.NewMetricsForTesting()
		p := NewProcessor(&fakeStore{}, sink, Config{Workers: 2, ChunkSize: 5}, nil, metrics)

		stats, err := p.ProcessFile(context.Background(), writeSample(t, 10), nil)
		require.NoError(t, err)
		assert.Equal(t, 20, sink.published)
		assert.Zero(t, stats.PublishErrors)
		assert.Equal(t, float64(20), testutil.ToFloat64(metrics.MessagesPublished))
	})

	t.Run("failures do not abort the ingest", func(t *testing.T) {
		sink := &fakeSink{err: errors.New("broker down")}
		p := NewProcessor(&fakeStore{}, sink, Config{Workers: 2, ChunkSize: 5}, nil, nil)

		stats, err := p.ProcessFile(context.Background(), writeSample(t, 10), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(20), stats.Rows123)
		assert.Equal(t, 1, stats.PublishErrors)
	})
}

func TestProcessFile_Errors(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("missing file", func(t *testing.T) {
		p := NewProcessor(&fakeStore{}, nil, Config{}, nil, nil)
		_, err := p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
		assert.Error(t, err)
	})

	t.Run("initialize fails", func(t *testing.T) {
		boom := errors.New("boom")
		p := NewProcessor(&fakeStore{initErr: boom}, nil, Config{}, nil, nil)
		_, err := p.ProcessFile(context.Background(), writeSample(t, 1), nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("insert fails", func(t *testing.T) {
		boom := errors.New("disk full")
		p := NewProcessor(&fakeStore{insertErr: boom}, nil, Config{Workers: 4, ChunkSize: 2, BatchSize: 1}, nil, nil)
		_, err := p.ProcessFile(context.Background(), writeSample(t, 500), nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := NewProcessor(&fakeStore{}, nil, Config{Workers: 2, ChunkSize: 2}, nil, nil)
		_, err := p.ProcessFile(ctx, writeSample(t, 100), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestProcessFile_DuckDB(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "ais.duckdb"), store.Options{})
	require.NoError(t, err)
	defer db.Close()

	p := NewProcessor(db, nil, Config{Workers: 2, ChunkSize: 7}, nil, nil)
	_, err = p.ProcessFile(ctx, writeSample(t, 20), nil)
	require.NoError(t, err)

	dbStats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), dbStats.PositionReports)
	assert.Equal(t, int64(20), dbStats.StaticReports)

	vessel, err := db.Vessel(ctx, 351759000)
	require.NoError(t, err)
	assert.Equal(t, "EVER DIADEM", vessel.ShipName)
}

func TestProgress_Percent(t *testing.T) {
	assert.Zero(t, Progress{BytesRead: 10}.Percent())
	assert.InDelta(t, 50, Progress{BytesRead: 5, TotalBytes: 10}.Percent(), 0.001)
	assert.InDelta(t, 100, Progress{BytesRead: 20, TotalBytes: 10}.Percent(), 0.001)
}
