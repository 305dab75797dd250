package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/maritimeviz/maritimeviz/internal/ais"
)

const (
	maxLineBytes = 1 << 20

	// A chunk may grow this many lines past its size while a
	// multi-sentence message is still open.
	maxGroupOverflow = 16
)

// Chunk is a run of consecutive lines handed to one decode worker.
type Chunk struct {
	Index int
	Lines []string
}

// SplitFile reads r line by line and sends chunks of chunkSize lines to out.
// A chunk boundary never falls inside a multi-sentence message, so every
// chunk can be decoded on its own. Blank lines are dropped and the final
// partial chunk is sent. SplitFile does not close out.
func SplitFile(ctx context.Context, r io.Reader, chunkSize int, out chan<- Chunk) error {
	if chunkSize <= 0 {
		chunkSize = DefaultMinChunkSize
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		lines = make([]string, 0, chunkSize)
		index int
		// groups whose first fragment has been read but not their last
		open = make(map[string]struct{})
	)
	emit := func() error {
		select {
		case out <- Chunk{Index: index, Lines: lines}:
		case <-ctx.Done():
			return ctx.Err()
		}
		index++
		lines = make([]string, 0, chunkSize)
		clear(open)
		return nil
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if ref, ok := ais.Fragment(line); ok && ref.Count > 1 {
			switch ref.Number {
			case 1:
				open[ref.Key] = struct{}{}
			case ref.Count:
				delete(open, ref.Key)
			}
		}
		if len(lines) >= chunkSize && (len(open) == 0 || len(lines) >= chunkSize+maxGroupOverflow) {
			if err := emit(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading lines: %w", err)
	}
	if len(lines) > 0 {
		return emit()
	}
	return nil
}
