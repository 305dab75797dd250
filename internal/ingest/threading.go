package ingest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"runtime"
)

// Defaults used when the threading layout of a file cannot be derived.
const (
	DefaultThreads      = 4
	DefaultMinChunkSize = 500
	DefaultAvgLineBytes = 90
)

// EstimateLinesBySize estimates the number of lines in a file from its
// decompressed size.
func EstimateLinesBySize(path string, avgBytesPerLine int) (int, error) {
	if avgBytesPerLine <= 0 {
		avgBytesPerLine = DefaultAvgLineBytes
	}
	size, err := contentSize(path)
	if err != nil {
		return 0, err
	}
	return int(size / int64(avgBytesPerLine)), nil
}

// contentSize returns the size of the file's text. For gzip input that is the
// length recorded in the gzip trailer, which holds the size modulo 4 GiB, so
// the compressed size is used as a floor.
func contentSize(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	size := fi.Size()

	head := make([]byte, 2)
	if size < 18 {
		return size, nil
	}
	if _, err := io.ReadFull(f, head); err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	if !bytes.Equal(head, gzipMagic) {
		return size, nil
	}

	trailer := make([]byte, 4)
	if _, err := f.ReadAt(trailer, size-4); err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return max(int64(binary.LittleEndian.Uint32(trailer)), size), nil
}

// CountLines counts newline-terminated lines, plus a final unterminated one.
// Gzip input is counted after decompression.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	src, closeSrc, err := maybeGunzip(f)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer closeSrc()

	r := bufio.NewReaderSize(src, 256*1024)
	buf := make([]byte, 256*1024)
	count := 0
	last := byte('\n')
	for {
		n, err := r.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}

// LinesPerFile returns the exact line count when useLineCount is set and a
// size based estimate otherwise.
func LinesPerFile(path string, avgBytesPerLine int, useLineCount bool) (int, error) {
	if useLineCount {
		return CountLines(path)
	}
	return EstimateLinesBySize(path, avgBytesPerLine)
}

// ThreadingOptions tunes OptimalThreadingStats.
type ThreadingOptions struct {
	CPUCores     int // runtime.NumCPU() when zero
	MinChunkSize int
	AvgLineBytes int
	UseLineCount bool
}

// OptimalThreadingStats picks a worker count and chunk size for a file.
// Small files get fewer workers so that no chunk drops below the minimum
// size; workers never exceed the core count. Any failure falls back to
// DefaultThreads and DefaultMinChunkSize.
func OptimalThreadingStats(path string, opts ThreadingOptions) (threads, chunkSize int) {
	cores := opts.CPUCores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	minChunk := opts.MinChunkSize
	if minChunk <= 0 {
		minChunk = DefaultMinChunkSize
	}

	total, err := LinesPerFile(path, opts.AvgLineBytes, opts.UseLineCount)
	if err != nil {
		return DefaultThreads, DefaultMinChunkSize
	}

	maxChunks := min(total/minChunk, cores*4)
	threads = min(cores, maxChunks)
	if threads <= 0 {
		return DefaultThreads, DefaultMinChunkSize
	}
	return threads, max(minChunk, total/threads)
}
