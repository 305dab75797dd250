package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Submitter queues a file for ingest.
type Submitter interface {
	Submit(fileID, fileName, path string) (Job, error)
}

// Scheduler scans an inbox directory on a cron schedule and submits every
// new file once. A file counts as new when its name, size or modification
// time has not been seen before.
type Scheduler struct {
	dir    string
	submit Submitter
	logger *zap.Logger
	cron   *cron.Cron

	mu   sync.Mutex
	seen map[string]bool
}

// NewScheduler creates a scheduler for dir. spec is a standard five field
// cron expression or a descriptor such as "@every 5m".
func NewScheduler(dir, spec string, submit Submitter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		dir:    dir,
		submit: submit,
		logger: logger,
		cron:   cron.New(),
		seen:   make(map[string]bool),
	}
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.Scan(); err != nil {
			s.logger.Warn("inbox scan failed", zap.String("dir", dir), zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid ingest schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.logger.Info("inbox scheduler started", zap.String("dir", s.dir))
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running scan
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Scan submits the files in the inbox that have not been submitted before
// and returns how many were submitted. Hidden files and directories are
// ignored.
func (s *Scheduler) Scan() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading inbox: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	submitted := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%s|%d|%d", e.Name(), info.Size(), info.ModTime().UnixNano())
		if s.seen[key] {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		job, err := s.submit.Submit("", e.Name(), path)
		if err != nil {
			return submitted, fmt.Errorf("submitting %s: %w", e.Name(), err)
		}
		s.seen[key] = true
		submitted++
		s.logger.Info("inbox file submitted", zap.String("file", e.Name()), zap.String("job", job.ID))
	}
	return submitted, nil
}
