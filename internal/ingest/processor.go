// Package ingest loads NMEA/AIS files into the AIS database. Files are split
// into chunks, decoded on a pool of workers and written by a single loader.
package ingest

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maritimeviz/maritimeviz/internal/ais"
	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/maritimeviz/maritimeviz/internal/observability"
	"github.com/maritimeviz/maritimeviz/internal/store"
)

// StoredTypes are the message ids written to the database.
var StoredTypes = []int{1, 2, 3, 5}

// DefaultBatchSize is the number of rows the loader buffers per insert.
const DefaultBatchSize = 5000

// Store is the part of the AIS database the processor writes to.
type Store interface {
	Initialize(ctx context.Context) error
	InsertPositions(ctx context.Context, rows []*models.PositionReport) error
	InsertStatic(ctx context.Context, rows []*models.StaticVoyage) error
}

// Sink receives position reports once they are stored.
type Sink interface {
	PublishPositions(ctx context.Context, rows []*models.PositionReport) error
}

// Progress describes how far a file has been read.
type Progress struct {
	BytesRead  int64
	TotalBytes int64
	Lines      int
}

// Percent returns progress in the range 0-100.
func (p Progress) Percent() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	pct := float64(p.BytesRead) / float64(p.TotalBytes) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ProgressFunc is called by the loader after every decoded chunk.
type ProgressFunc func(Progress)

// Config tunes a Processor.
type Config struct {
	Workers      int // 0 derives the count from the file size
	ChunkSize    int // 0 derives the size from the file size
	MinChunkSize int
	AvgLineBytes int
	UseLineCount bool
	BatchSize    int
}

// Processor runs the split, decode and load pipeline for one file at a time.
// It is safe to call ProcessFile concurrently.
type Processor struct {
	store   Store
	sink    Sink
	cfg     Config
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewProcessor creates a processor writing to st. sink may be nil.
func NewProcessor(st Store, sink Sink, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultMinChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Processor{
		store:   st,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// decoded is what a worker hands to the loader for one chunk.
type decoded struct {
	positions []*models.PositionReport
	static    []*models.StaticVoyage
	stats     ais.Stats
}

// ProcessFile decodes every AIS message in path and stores message types
// 1, 2, 3 and 5. Gzip-compressed files are detected and read transparently.
// Bad lines are counted in the returned stats and never abort the file.
func (p *Processor) ProcessFile(ctx context.Context, path string, progress ProgressFunc) (*models.IngestStats, error) {
	start := time.Now()

	if err := p.store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	counter := &countingReader{r: f}
	r, closeReader, err := maybeGunzip(counter)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer closeReader()

	threads, chunkSize := OptimalThreadingStats(path, ThreadingOptions{
		MinChunkSize: p.cfg.MinChunkSize,
		AvgLineBytes: p.cfg.AvgLineBytes,
		UseLineCount: p.cfg.UseLineCount,
	})
	if p.cfg.Workers > 0 {
		threads = p.cfg.Workers
	}
	if p.cfg.ChunkSize > 0 {
		chunkSize = p.cfg.ChunkSize
	}

	p.logger.Info("ingest started",
		zap.String("path", path),
		zap.Int64("size", fi.Size()),
		zap.Int("threads", threads),
		zap.Int("chunk_size", chunkSize))

	stats := &models.IngestStats{
		Decoded:   make(map[int]int),
		Errors:    make(map[string]int),
		Threads:   threads,
		ChunkSize: chunkSize,
	}

	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan Chunk, threads)
	results := make(chan decoded, threads)

	g.Go(func() error {
		defer close(chunks)
		return SplitFile(gctx, r, chunkSize, chunks)
	})

	g.Go(func() error {
		defer close(results)
		workers, wctx := errgroup.WithContext(gctx)
		for i := 0; i < threads; i++ {
			workers.Go(func() error {
				return decodeChunks(wctx, chunks, results)
			})
		}
		return workers.Wait()
	})

	g.Go(func() error {
		return p.load(gctx, results, stats, func(lines int) {
			if progress != nil {
				progress(Progress{
					BytesRead:  counter.Count(),
					TotalBytes: fi.Size(),
					Lines:      lines,
				})
			}
		})
	})

	err = g.Wait()
	stats.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		p.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
		return stats, err
	}

	p.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("ingest finished",
		zap.String("path", path),
		zap.Int("lines", stats.Lines),
		zap.Int64("rows_123", stats.Rows123),
		zap.Int64("rows_5", stats.Rows5),
		zap.Int("errors", stats.ErrorCount()),
		zap.Duration("elapsed", time.Since(start)))
	return stats, nil
}

// decodeChunks runs one worker. Each chunk gets its own decoder so that no
// fragment state leaks from one chunk into the next.
func decodeChunks(ctx context.Context, chunks <-chan Chunk, results chan<- decoded) error {
	for c := range chunks {
		d := ais.NewDecoder(StoredTypes...)
		var out decoded
		for _, msg := range d.DecodeLines(c.Lines) {
			switch m := msg.(type) {
			case *models.PositionReport:
				out.positions = append(out.positions, m)
			case *models.StaticVoyage:
				out.static = append(out.static, m)
			}
		}
		out.stats = d.Stats()

		select {
		case results <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// load is the single writer. It buffers rows up to the batch size, flushes
// them to the store and forwards stored positions to the sink.
func (p *Processor) load(ctx context.Context, results <-chan decoded, stats *models.IngestStats, onChunk func(lines int)) error {
	var (
		positions = make([]*models.PositionReport, 0, p.cfg.BatchSize)
		static    []*models.StaticVoyage
	)

	flush := func() error {
		if len(positions) > 0 {
			if err := p.store.InsertPositions(ctx, positions); err != nil {
				return fmt.Errorf("storing position reports: %w", err)
			}
			stats.Rows123 += int64(len(positions))
			p.metrics.RowsStored.WithLabelValues(store.TablePositions).Add(float64(len(positions)))
			p.publish(ctx, positions, stats)
			positions = make([]*models.PositionReport, 0, p.cfg.BatchSize)
		}
		if len(static) > 0 {
			if err := p.store.InsertStatic(ctx, static); err != nil {
				return fmt.Errorf("storing static reports: %w", err)
			}
			stats.Rows5 += int64(len(static))
			p.metrics.RowsStored.WithLabelValues(store.TableStatic).Add(float64(len(static)))
			static = nil
		}
		return nil
	}

	for res := range results {
		p.record(res.stats, stats)
		positions = append(positions, res.positions...)
		static = append(static, res.static...)

		if len(positions)+len(static) >= p.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
		onChunk(stats.Lines)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return flush()
}

func (p *Processor) record(s ais.Stats, stats *models.IngestStats) {
	stats.Lines += s.Lines
	stats.Sentences += s.Sentences
	stats.Skipped += s.Skipped
	for id, n := range s.Decoded {
		stats.Decoded[id] += n
		p.metrics.MessagesDecoded.WithLabelValues(strconv.Itoa(id)).Add(float64(n))
	}
	for reason, n := range s.Errors {
		stats.Errors[reason] += n
		p.metrics.DecodeErrors.WithLabelValues(reason).Add(float64(n))
	}
	p.metrics.LinesRead.Add(float64(s.Lines))
	p.metrics.MessagesSkipped.Add(float64(s.Skipped))
}

// publish forwards stored reports to the sink. A failing sink is logged and
// counted; the rows are already stored so the ingest carries on.
func (p *Processor) publish(ctx context.Context, rows []*models.PositionReport, stats *models.IngestStats) {
	if p.sink == nil {
		return
	}
	if err := p.sink.PublishPositions(ctx, rows); err != nil {
		stats.PublishErrors++
		p.logger.Warn("publishing position reports failed", zap.Int("rows", len(rows)), zap.Error(err))
		return
	}
	p.metrics.MessagesPublished.Add(float64(len(rows)))
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReader) Count() int64 {
	return c.n.Load()
}

var gzipMagic = []byte{0x1f, 0x8b}

// maybeGunzip wraps r in a gzip reader when the stream starts with the gzip
// magic bytes.
func maybeGunzip(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	if len(head) == 2 && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	}
	return br, func() {}, nil
}
