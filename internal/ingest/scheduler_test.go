package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *recordingSubmitter) Submit(_, fileName, _ string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Job{}, r.err
	}
	r.names = append(r.names, fileName)
	return Job{ID: "job-" + fileName}, nil
}

func (r *recordingSubmitter) submitted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.names...)
	sort.Strings(out)
	return out
}

func TestScheduler_Scan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.nmea"), []byte(type1Line), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.nmea"), []byte(type3Line), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))

	sub := &recordingSubmitter{}
	s, err := NewScheduler(dir, "@every 1h", sub, nil)
	require.NoError(t, err)

	n, err := s.Scan()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a.nmea", "b.nmea"}, sub.submitted())

	n, err = s.Scan()
	require.NoError(t, err)
	assert.Zero(t, n, "files are submitted once")

	// A rewritten file counts as new.
	path := filepath.Join(dir, "a.nmea")
	require.NoError(t, os.WriteFile(path, []byte(type1Line+"\n"+type3Line), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	n, err = s.Scan()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScheduler_SubmitError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.nmea"), []byte(type1Line), 0o644))

	sub := &recordingSubmitter{err: ErrManagerClosed}
	s, err := NewScheduler(dir, "@every 1h", sub, nil)
	require.NoError(t, err)

	_, err = s.Scan()
	assert.True(t, errors.Is(err, ErrManagerClosed))

	// The file is retried on the next scan.
	sub.err = nil
	n, err := s.Scan()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScheduler_MissingDir(t *testing.T) {
	s, err := NewScheduler(filepath.Join(t.TempDir(), "missing"), "@every 1h", &recordingSubmitter{}, nil)
	require.NoError(t, err)
	_, err = s.Scan()
	assert.Error(t, err)
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler(t.TempDir(), "every now and then", &recordingSubmitter{}, nil)
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler(t.TempDir(), "@every 1h", &recordingSubmitter{}, nil)
	require.NoError(t, err)
	s.Start()
	<-s.Stop().Done()
}
