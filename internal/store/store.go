// Package store keeps decoded AIS messages in a DuckDB database file.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

// Table names.
const (
	TablePositions = "ais_msg_123"
	TableStatic    = "ais_msg_5"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")
	// ErrNotFound is returned when a lookup matches no rows.
	ErrNotFound = errors.New("not found")
	// ErrInvalidParams is returned for malformed search or export arguments.
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrTooManyRows is returned when a result would exceed the row cap.
	// It wraps ErrInvalidParams since a narrower filter fixes it.
	ErrTooManyRows = fmt.Errorf("%w: too many rows", ErrInvalidParams)
)

// Options tunes the DuckDB connection.
type Options struct {
	MemoryLimit string // e.g. "1GB"
	Threads     int
	TempDir     string
	// MaxConcurrentQueries bounds parallel reads. Defaults to 3.
	MaxConcurrentQueries int
	Logger               *zap.Logger
}

// Store is the AIS database. Writes are serialized; reads run concurrently up
// to MaxConcurrentQueries.
type Store struct {
	db   *sql.DB
	path string
	log  *zap.Logger

	writeMu  sync.Mutex
	querySem chan struct{}
	closed   atomic.Bool

	// Stats are cached until the next insert. statsGen counts inserts so a
	// query that raced with one is not cached.
	statsMu    sync.RWMutex
	statsCache *models.DatabaseStats
	statsGen   uint64
	// afterStatsQuery runs between the stats query and caching; tests only.
	afterStatsQuery func()

	trackLimit int
}

// Open opens (or creates) the database at path and makes sure both tables
// exist. An empty path opens an in-memory database.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("store")

	pragmas := []string{"PRAGMA enable_progress_bar=false"}
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", escapeLiteral(opts.MemoryLimit)))
	}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}
	if opts.TempDir != "" {
		pragmas = append(pragmas, fmt.Sprintf("SET temp_directory='%s'", escapeLiteral(opts.TempDir)))
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	maxQueries := opts.MaxConcurrentQueries
	if maxQueries <= 0 {
		maxQueries = 3
	}

	s := &Store{
		db:         sql.OpenDB(connector),
		path:       path,
		log:        log,
		querySem:   make(chan struct{}, maxQueries),
		trackLimit: MaxSearchLimit,
	}
	if err := s.Initialize(ctx); err != nil {
		s.db.Close()
		return nil, err
	}

	log.Info("database opened", zap.String("path", path))
	return s, nil
}

// Initialize creates the tables if they do not exist. It is safe to call
// any number of times.
func (s *Store) Initialize(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	for _, ddl := range []string{createPositionsTable, createStaticTable} {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database. Further calls are no-ops.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Close()
}

// acquire takes a query slot, returning the release function.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	select {
	case s.querySem <- struct{}{}:
		return func() { <-s.querySem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) clearStatsCache() {
	s.statsMu.Lock()
	s.statsCache = nil
	s.statsGen++
	s.statsMu.Unlock()
}

func escapeLiteral(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
