package store

import (
	"context"
	"database/sql/driver"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

// 2016-07-28 00:00:00 UTC
const day0 = int64(1469664000)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "ais.duckdb"), Options{Threads: 2})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func position(mmsi int64, x, y float64, ts int64) *models.PositionReport {
	timeout := int32(1)
	hour, minute := int32(3), int32(54)
	return &models.PositionReport{
		ID:          1,
		MMSI:        mmsi,
		NavStatus:   5,
		X:           x,
		Y:           y,
		Sog:         12.5,
		Cog:         51,
		TrueHeading: 181,
		Timestamp:   15,
		SyncState:   1,
		SlotTimeout: &timeout,
		UTCHour:     &hour,
		UTCMin:      &minute,
		TagBlock: models.TagBlock{
			Timestamp: ts,
			Station:   "r003669945",
			Group:     &models.TagGroup{Sentence: 1, SentenceTot: 1, GroupID: 42},
		},
	}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertPositions(ctx, []*models.PositionReport{
		position(9111254, -122.3, 47.5, day0+60),
		position(9111254, -122.4, 47.6, day0+86400+60), // 2016-07-29
		position(9111253, 10.0, 54.0, day0+120),
		position(9111253, 10.1, 54.1, day0+2*86400+60), // 2016-07-30
		position(9111252, 181, 91, day0+60),            // not available
	}))
	require.NoError(t, s.InsertStatic(ctx, []*models.StaticVoyage{
		{ID: 5, MMSI: 9111254, ShipName: "OLD NAME", CallSign: "3FOF8", ToBow: 225, ToStern: 70,
			TagBlock: models.TagBlock{Timestamp: day0}},
		{ID: 5, MMSI: 9111254, ShipName: "EVER DIADEM", CallSign: "3FOF8", ToBow: 225, ToStern: 70,
			Destination: "NEW YORK", ETA: "05-15T14:00", MaxPresentStaticDraught: 12.2,
			TagBlock: models.TagBlock{Timestamp: day0 + 3600}},
	}))
}

func TestOpen_InitializeIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ais.duckdb")
	ctx := context.Background()

	s, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.InsertPositions(ctx, []*models.PositionReport{position(1, 1, 1, day0)}))
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	// reopening keeps existing rows
	s, err = Open(ctx, path, Options{})
	require.NoError(t, err)
	defer s.Close()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PositionReports)
}

func TestClose(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Search(context.Background(), SearchParams{})
	assert.ErrorIs(t, err, ErrClosed)
	err = s.InsertPositions(context.Background(), []*models.PositionReport{position(1, 1, 1, day0)})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Initialize(context.Background()), ErrClosed)
}

func TestInsertPositions_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	incr, alloc, keep := int32(1133), int32(4), true
	itdma := position(366123456, -70.1, 41.2, day0)
	itdma.ID = 3
	itdma.SlotTimeout, itdma.UTCHour, itdma.UTCMin = nil, nil, nil
	itdma.SlotIncrement, itdma.SlotsToAllocate, itdma.KeepFlag = &incr, &alloc, &keep
	itdma.TagBlock = models.TagBlock{}

	require.NoError(t, s.InsertPositions(ctx, []*models.PositionReport{position(477553000, -122.345833, 47.582833, day0), itdma}))

	got, err := s.Search(ctx, SearchParams{MMSIs: []int64{477553000}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, int32(1), p.ID)
	assert.InDelta(t, -122.345833, p.X, 1e-9)
	assert.InDelta(t, 12.5, p.Sog, 1e-6)
	assert.Equal(t, int32(181), p.TrueHeading)
	require.NotNil(t, p.UTCHour)
	assert.Equal(t, int32(3), *p.UTCHour)
	assert.Nil(t, p.SlotIncrement)
	assert.Equal(t, day0, p.TagBlock.Timestamp)
	assert.Equal(t, "r003669945", p.Station)
	require.NotNil(t, p.Group)
	assert.Equal(t, 42, p.Group.GroupID)

	got, err = s.Search(ctx, SearchParams{MMSIs: []int64{366123456}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	p = got[0]
	assert.Equal(t, int32(3), p.ID)
	require.NotNil(t, p.SlotIncrement)
	assert.Equal(t, int32(1133), *p.SlotIncrement)
	require.NotNil(t, p.KeepFlag)
	assert.True(t, *p.KeepFlag)
	assert.Nil(t, p.SlotTimeout)
	assert.Nil(t, p.Group)
	assert.Zero(t, p.TagBlock.Timestamp)
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	tests := []struct {
		name   string
		params SearchParams
		want   int
	}{
		{"everything valid", SearchParams{}, 4},
		{"single mmsi", SearchParams{MMSIs: []int64{9111254}}, 2},
		{"list of mmsi", SearchParams{MMSIs: []int64{9111254, 9111253}}, 4},
		{"unavailable position excluded", SearchParams{MMSIs: []int64{9111252}}, 0},
		{"start date", SearchParams{StartDate: "2016-07-29"}, 2},
		{"end date is inclusive", SearchParams{EndDate: "2016-07-29"}, 3},
		{"date window", SearchParams{StartDate: "2016-07-28", EndDate: "2016-07-28"}, 2},
		{"polygon", SearchParams{PolygonWKT: "POLYGON((-130 40, -110 40, -110 50, -130 50, -130 40))"}, 2},
		{"polygon and mmsi", SearchParams{MMSIs: []int64{9111253}, PolygonWKT: "POLYGON((-130 40, -110 40, -110 50, -130 50, -130 40))"}, 0},
		{"limit", SearchParams{Limit: 3}, 3},
		{"offset", SearchParams{Offset: 3}, 1},
		{"polygon with offset", SearchParams{Offset: 1, PolygonWKT: "POLYGON((-180 -60, -180 60, 180 60, 180 -60, -180 -60))"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(context.Background(), tt.params)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestSearch_Ordering(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	got, err := s.Search(context.Background(), SearchParams{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, int64(9111253), got[0].MMSI)
	assert.Less(t, got[0].TagBlock.Timestamp, got[1].TagBlock.Timestamp)
	assert.Equal(t, int64(9111254), got[3].MMSI)
}

func TestSearch_InvalidParams(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name   string
		params SearchParams
	}{
		{"bad start date", SearchParams{StartDate: "28/07/2016"}},
		{"bad end date", SearchParams{EndDate: "yesterday"}},
		{"end before start", SearchParams{StartDate: "2016-07-29", EndDate: "2016-07-28"}},
		{"bad polygon", SearchParams{PolygonWKT: "POLYGON((1 2, 3"}},
		{"negative limit", SearchParams{Limit: -1}},
		{"huge limit", SearchParams{Limit: MaxSearchLimit + 1}},
		{"negative offset", SearchParams{Offset: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(context.Background(), tt.params)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestTrack(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	track, err := s.Track(ctx, 9111254, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, track, 2)
	assert.Less(t, track[0].TagBlock.Timestamp, track[1].TagBlock.Timestamp)

	track, err = s.Track(ctx, 9111254, time.Unix(day0+3600, 0), time.Time{})
	require.NoError(t, err)
	assert.Len(t, track, 1)

	track, err = s.Track(ctx, 9111252, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, track)
}

func TestTrack_EndIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertPositions(ctx, []*models.PositionReport{
		position(9111254, -122.3, 47.5, day0+60),
		position(9111254, -122.4, 47.6, day0+86400), // 2016-07-29 00:00:00
	}))

	end := time.Unix(day0, 0).UTC().AddDate(0, 0, 1)
	track, err := s.Track(ctx, 9111254, time.Unix(day0, 0), end)
	require.NoError(t, err)
	require.Len(t, track, 1)
	assert.Equal(t, day0+60, track[0].TagBlock.Timestamp)

	found, err := s.Search(ctx, SearchParams{MMSIs: []int64{9111254}, StartDate: "2016-07-28", EndDate: "2016-07-28"})
	require.NoError(t, err)
	assert.Len(t, found, len(track), "search and track agree on the day boundary")
}

func TestTrack_TooManyRows(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	s.trackLimit = 1

	_, err := s.Track(context.Background(), 9111254, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrTooManyRows)
	assert.ErrorIs(t, err, ErrInvalidParams)

	s.trackLimit = 2
	track, err := s.Track(context.Background(), 9111254, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, track, 2)
}

func TestStats_InsertDuringQueryIsNotCached(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertPositions(ctx, []*models.PositionReport{position(1, 1, 1, day0)}))

	s.afterStatsQuery = func() {
		s.afterStatsQuery = nil
		require.NoError(t, s.InsertPositions(ctx, []*models.PositionReport{position(2, 2, 2, day0)}))
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PositionReports)

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PositionReports)
}

func TestAppendRows_FailedBatchIsRolledBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	good := position(477553000, -122.3, 47.5, day0)
	err := s.appendRows(ctx, TablePositions, 3, func(i int) []driver.Value {
		if i == 2 {
			return []driver.Value{int32(1)}
		}
		return positionRow(good)
	})
	require.Error(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PositionReports)

	// the connection is usable afterwards
	require.NoError(t, s.InsertPositions(ctx, []*models.PositionReport{good}))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PositionReports)
}

func TestVessel(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	v, err := s.Vessel(context.Background(), 9111254)
	require.NoError(t, err)
	assert.Equal(t, "EVER DIADEM", v.ShipName)
	assert.Equal(t, "NEW YORK", v.Destination)
	assert.Equal(t, int32(295), v.Length())
	assert.Equal(t, day0+3600, v.TagBlock.Timestamp)

	_, err = s.Vessel(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVessels(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	vessels, err := s.Vessels(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, vessels, 2)

	byMMSI := map[int64]models.VesselSummary{}
	for _, v := range vessels {
		byMMSI[v.MMSI] = v
	}
	assert.Equal(t, "EVER DIADEM", byMMSI[9111254].ShipName)
	assert.Equal(t, int64(2), byMMSI[9111254].Positions)
	assert.Equal(t, time.Unix(day0+60, 0).UTC(), byMMSI[9111254].FirstSeen)
	assert.Empty(t, byMMSI[9111253].ShipName)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PositionReports)
	assert.Nil(t, stats.TimeRange)

	seed(t, s)

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.PositionReports)
	assert.Equal(t, int64(2), stats.StaticReports)
	assert.Equal(t, int64(3), stats.Vessels)
	require.NotNil(t, stats.TimeRange)
	assert.Equal(t, time.Unix(day0+60, 0).UTC(), stats.TimeRange.Start)
}

func TestExport(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()
	dir := t.TempDir()

	parquetPath := filepath.Join(dir, "positions.parquet")
	require.NoError(t, s.Export(ctx, TablePositions, parquetPath, FormatParquet))
	info, err := os.Stat(parquetPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	csvPath := filepath.Join(dir, "static.csv")
	require.NoError(t, s.Export(ctx, TableStatic, csvPath, FormatCSV))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ship_name")
	assert.Contains(t, string(data), "EVER DIADEM")

	assert.ErrorIs(t, s.Export(ctx, "entries", csvPath, FormatCSV), ErrInvalidParams)
	assert.ErrorIs(t, s.Export(ctx, TableStatic, csvPath, "xlsx"), ErrInvalidParams)
}

func TestSearch_ContextCancelled(t *testing.T) {
	s := newTestStore(t)
	s.querySem = make(chan struct{}, 1)
	s.querySem <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Search(ctx, SearchParams{})
	assert.ErrorIs(t, err, context.Canceled)
}
