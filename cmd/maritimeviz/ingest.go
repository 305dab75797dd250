package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/ingest"
	"github.com/maritimeviz/maritimeviz/internal/models"
)

var (
	ingestWorkers   int
	ingestChunkSize int
	ingestPublish   bool
	ingestQuiet     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Decode NMEA files into the database",
	Long: `Decodes AIS message types 1, 2, 3 and 5 from one or more NMEA log files
(optionally gzip-compressed) and appends them to the ais_msg_123 and ais_msg_5
tables. Lines that fail to decode are counted, not fatal.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVarP(&ingestWorkers, "workers", "w", 0, "decode workers (0 derives from file size and CPU count)")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "lines per chunk (0 derives from file size)")
	ingestCmd.Flags().BoolVar(&ingestPublish, "publish", false, "publish position reports to Kafka even when kafka.enabled is false")
	ingestCmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false, "do not print progress")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if ingestPublish {
		cfg.Kafka.Enabled = true
	}
	sink, closeSink, err := openSink()
	if err != nil {
		return err
	}
	defer closeSink()

	pc := processorConfig()
	if ingestWorkers > 0 {
		pc.Workers = ingestWorkers
	}
	if ingestChunkSize > 0 {
		pc.ChunkSize = ingestChunkSize
	}
	proc := ingest.NewProcessor(db, sink, pc, logger, nil)

	out := cmd.OutOrStdout()
	for _, path := range args {
		start := time.Now()
		var progress ingest.ProgressFunc
		if !ingestQuiet {
			progress = progressPrinter(cmd, path)
		}

		stats, err := proc.ProcessFile(ctx, path, progress)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		if !ingestQuiet {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
		logger.Info("file ingested",
			zap.String("path", path),
			zap.Int64("rows_123", stats.Rows123),
			zap.Int64("rows_5", stats.Rows5),
			zap.Duration("elapsed", time.Since(start)))
		printIngestStats(cmd, path, stats)
	}
	fmt.Fprintf(out, "Ingested %d file(s) into %s\n", len(args), db.Path())
	return nil
}

// progressPrinter redraws a single progress line on stderr whenever the
// whole percentage changes.
func progressPrinter(cmd *cobra.Command, path string) ingest.ProgressFunc {
	last := -1
	return func(p ingest.Progress) {
		pct := int(p.Percent())
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(cmd.ErrOrStderr(), "\r%s: %3d%% (%d lines)", path, pct, p.Lines)
	}
}

func printIngestStats(cmd *cobra.Command, path string, s *models.IngestStats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", path)
	fmt.Fprintf(out, "  lines:      %d\n", s.Lines)
	fmt.Fprintf(out, "  sentences:  %d\n", s.Sentences)
	fmt.Fprintf(out, "  ais_msg_123 rows: %d\n", s.Rows123)
	fmt.Fprintf(out, "  ais_msg_5 rows:   %d\n", s.Rows5)
	fmt.Fprintf(out, "  skipped:    %d\n", s.Skipped)

	types := make([]int, 0, len(s.Decoded))
	for t := range s.Decoded {
		types = append(types, t)
	}
	sort.Ints(types)
	for _, t := range types {
		fmt.Fprintf(out, "  type %-2d     %d\n", t, s.Decoded[t])
	}

	reasons := make([]string, 0, len(s.Errors))
	for r := range s.Errors {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(out, "  error %-10s %d\n", r, s.Errors[r])
	}
	if s.PublishErrors > 0 {
		fmt.Fprintf(out, "  publish errors: %d\n", s.PublishErrors)
	}
	fmt.Fprintf(out, "  threads: %d, chunk size: %d, %d ms\n", s.Threads, s.ChunkSize, s.DurationMs)
}
