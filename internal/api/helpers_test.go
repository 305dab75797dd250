package api

import (
	"context"
	"io"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/maritimeviz/maritimeviz/internal/ingest"
	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/maritimeviz/maritimeviz/internal/store"
)

// fakeDB is an in-memory AISStore.
type fakeDB struct {
	positions []models.PositionReport
	vessels   map[int64]*models.StaticVoyage
	summaries []models.VesselSummary
	stats     *models.DatabaseStats
	err       error

	lastSearch store.SearchParams
	lastStart  time.Time
	lastEnd    time.Time
}

func (f *fakeDB) Search(_ context.Context, params store.SearchParams) ([]models.PositionReport, error) {
	f.lastSearch = params
	if f.err != nil {
		return nil, f.err
	}
	return f.positions, nil
}

func (f *fakeDB) Track(_ context.Context, mmsi int64, start, end time.Time) ([]models.PositionReport, error) {
	f.lastStart, f.lastEnd = start, end
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PositionReport
	for _, p := range f.positions {
		if p.MMSI == mmsi {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDB) Vessel(_ context.Context, mmsi int64) (*models.StaticVoyage, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vessels[mmsi]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (f *fakeDB) Vessels(_ context.Context, limit int) ([]models.VesselSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.summaries) {
		return f.summaries[:limit], nil
	}
	return f.summaries, nil
}

func (f *fakeDB) Stats(context.Context) (*models.DatabaseStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.stats == nil {
		return &models.DatabaseStats{}, nil
	}
	return f.stats, nil
}

// fakeJobs records submissions and serves canned jobs.
type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[string]ingest.Job
	submitted []string
	err       error
	// onSubmit runs after a successful Submit, before it returns.
	onSubmit func(ingest.Job)
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]ingest.Job)}
}

func (f *fakeJobs) Submit(fileID, fileName, path string) (ingest.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ingest.Job{}, f.err
	}
	job := ingest.Job{
		ID:        "job-" + fileID,
		FileID:    fileID,
		FileName:  fileName,
		Path:      path,
		Status:    ingest.StatusPending,
		CreatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	f.submitted = append(f.submitted, fileID)
	if f.onSubmit != nil {
		f.onSubmit(job)
	}
	return job, nil
}

func (f *fakeJobs) Get(id string) (ingest.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	return job, ok
}

func (f *fakeJobs) List() []ingest.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ingest.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (f *fakeJobs) set(job ingest.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
}

// newTestEcho wires handlers the way the server does, without middleware
// other than the error handler.
func newTestEcho(t *testing.T, deps *Dependencies) *echo.Echo {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zaptest.NewLogger(t)
	}
	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(deps.Logger, false)
	RegisterRoutes(e, NewHandlers(deps))
	return e
}

func doRequest(e *echo.Echo, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func samplePositions() []models.PositionReport {
	return []models.PositionReport{
		{ID: 1, MMSI: 477553000, X: -122.39, Y: 47.58, Sog: 0.1, Cog: 51, TrueHeading: 181,
			TagBlock: models.TagBlock{Timestamp: 1705326330}},
		{ID: 1, MMSI: 477553000, X: -122.38, Y: 47.59, Sog: 12.5, Cog: 52, TrueHeading: 181,
			TagBlock: models.TagBlock{Timestamp: 1705326390}},
		{ID: 3, MMSI: 351759000, X: 4.02, Y: 51.98, Sog: 3.2, Cog: 90, TrueHeading: 90,
			TagBlock: models.TagBlock{Timestamp: 1705326400}},
	}
}

