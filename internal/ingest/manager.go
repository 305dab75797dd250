package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/maritimeviz/maritimeviz/internal/observability"
)

// ErrManagerClosed is returned by Submit after Close.
var ErrManagerClosed = errors.New("ingest manager closed")

// Status represents the state of an ingest job.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Job is an asynchronous file ingest.
type Job struct {
	ID          string              `json:"id"`
	FileID      string              `json:"fileId,omitempty"`
	FileName    string              `json:"fileName"`
	Path        string              `json:"-"`
	Status      Status              `json:"status"`
	Progress    float64             `json:"progress"`
	Lines       int                 `json:"lines"`
	Stats       *models.IngestStats `json:"stats,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

// Done reports whether the job has finished, successfully or not.
func (j Job) Done() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// FileProcessor ingests one file.
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string, progress ProgressFunc) (*models.IngestStats, error)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	MaxConcurrent int
	Clock         clockwork.Clock
	Logger        *zap.Logger
	Metrics       *observability.Metrics

	// OnFinish is called once per job after it completes or fails.
	OnFinish func(Job)
}

// Manager runs ingest jobs in the background, at most MaxConcurrent at a
// time. Jobs beyond the limit wait in StatusPending.
type Manager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	proc     FileProcessor
	sem      chan struct{}
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *observability.Metrics
	onFinish func(Job)

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup // jobs
	loops   sync.WaitGroup // cleanup
	closed  bool
}

// NewManager creates a job manager around proc.
func NewManager(proc FileProcessor, opts ManagerOptions) *Manager {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:     make(map[string]*Job),
		proc:     proc,
		sem:      make(chan struct{}, opts.MaxConcurrent),
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		onFinish: opts.OnFinish,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit queues path for ingest and returns a snapshot of the new job.
func (m *Manager) Submit(fileID, fileName, path string) (Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		FileID:    fileID,
		FileName:  fileName,
		Path:      path,
		Status:    StatusPending,
		CreatedAt: m.clock.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Job{}, ErrManagerClosed
	}
	m.jobs[job.ID] = job
	m.running.Add(1)
	snapshot := *job
	m.mu.Unlock()

	m.logger.Info("ingest job queued", zap.String("job", job.ID), zap.String("file", fileName))
	go m.run(job.ID, path)

	return snapshot, nil
}

// Get returns a snapshot of a job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of all known jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.RLock()
	list := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		list = append(list, *job)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

func (m *Manager) run(id, path string) {
	defer m.running.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("ingest job panicked", zap.String("job", id), zap.Any("panic", r))
			m.finish(id, nil, fmt.Errorf("ingest panicked: %v", r))
		}
	}()

	select {
	case m.sem <- struct{}{}:
	case <-m.ctx.Done():
		m.finish(id, nil, m.ctx.Err())
		return
	}
	defer func() { <-m.sem }()

	m.markRunning(id)
	m.metrics.IngestJobsActive.Inc()
	defer m.metrics.IngestJobsActive.Dec()

	stats, err := m.proc.ProcessFile(m.ctx, path, func(p Progress) {
		m.updateProgress(id, p)
	})
	m.finish(id, stats, err)
}

func (m *Manager) markRunning(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		now := m.clock.Now()
		job.Status = StatusRunning
		job.StartedAt = &now
	}
}

// updateProgress keeps running jobs below 100 until they are stored.
func (m *Manager) updateProgress(id string, p Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	pct := p.Percent()
	if pct > 99.9 {
		pct = 99.9
	}
	job.Progress = pct
	job.Lines = p.Lines
}

func (m *Manager) finish(id string, stats *models.IngestStats, err error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.Done() {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	job.CompletedAt = &now
	job.Stats = stats
	if stats != nil {
		job.Lines = stats.Lines
	}
	if err != nil {
		job.Status = StatusError
		job.Error = err.Error()
	} else {
		job.Status = StatusComplete
		job.Progress = 100
	}
	snapshot := *job
	m.mu.Unlock()

	m.metrics.IngestJobs.WithLabelValues(string(snapshot.Status)).Inc()
	if err != nil {
		m.logger.Warn("ingest job failed", zap.String("job", id), zap.String("file", snapshot.FileName), zap.Error(err))
	} else {
		m.logger.Info("ingest job complete", zap.String("job", id), zap.String("file", snapshot.FileName))
	}
	if m.onFinish != nil {
		m.onFinish(snapshot)
	}
}

// CleanupOldJobs removes finished jobs that completed more than maxAge ago
// and returns how many were removed.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.Done() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// StartCleanup removes old finished jobs every interval until Close.
func (m *Manager) StartCleanup(interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.loops.Add(1)
	m.mu.Unlock()

	ticker := m.clock.NewTicker(interval)
	go func() {
		defer m.loops.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if n := m.CleanupOldJobs(maxAge); n > 0 {
					m.logger.Debug("removed old ingest jobs", zap.Int("count", n))
				}
			case <-m.ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until every submitted job has finished.
func (m *Manager) Wait() {
	m.running.Wait()
}

// Close cancels running jobs and waits for them to stop or ctx to expire.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.running.Wait()
		m.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
