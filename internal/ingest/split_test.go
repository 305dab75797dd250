package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/maritimeviz/maritimeviz/internal/ais"
	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string, chunkSize int) []Chunk {
	t.Helper()
	out := make(chan Chunk, 100)
	require.NoError(t, SplitFile(context.Background(), strings.NewReader(input), chunkSize, out))
	close(out)

	var chunks []Chunk
	for c := range out {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestSplitFile_FixedSize(t *testing.T) {
	input := strings.Repeat(type1Line+"\n", 7)

	chunks := collect(t, input, 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Lines, 3)
	assert.Len(t, chunks[1].Lines, 3)
	assert.Len(t, chunks[2].Lines, 1, "final partial chunk is emitted")
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplitFile_KeepsGroupsTogether(t *testing.T) {
	lines := []string{type1Line, type1Line, type1Line, type1Line, type5Part1, type5Part2, type1Line}

	chunks := collect(t, strings.Join(lines, "\n"), 5)
	require.Len(t, chunks, 2)
	assert.Equal(t, lines[:6], chunks[0].Lines)
	assert.Equal(t, []string{type1Line}, chunks[1].Lines)
}

func TestSplitFile_TagBlockGroups(t *testing.T) {
	lines := []string{type1Line, tagBlockFirst + type5Part1, tagBlockSecond + type5Part2}

	chunks := collect(t, strings.Join(lines, "\n"), 2)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Lines, 3)
}

func TestSplitFile_InterleavedGroups(t *testing.T) {
	otherPart1 := strings.Replace(type5Part1, ",1,A,", ",2,B,", 1)
	otherPart2 := strings.Replace(type5Part2, ",1,A,", ",2,B,", 1)

	tests := []struct {
		name       string
		lines      []string
		chunkSize  int
		wantChunks [][]string
	}{
		{
			name:      "single sentence between fragments",
			lines:     []string{type5Part1, type1Line, type5Part2, type1Line},
			chunkSize: 2,
			wantChunks: [][]string{
				{type5Part1, type1Line, type5Part2},
				{type1Line},
			},
		},
		{
			name:      "two groups open at once",
			lines:     []string{type5Part1, otherPart1, type5Part2, type1Line, otherPart2, type1Line},
			chunkSize: 2,
			wantChunks: [][]string{
				{type5Part1, otherPart1, type5Part2, type1Line, otherPart2},
				{type1Line},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := collect(t, strings.Join(tt.lines, "\n"), tt.chunkSize)
			require.Len(t, chunks, len(tt.wantChunks))
			for i, want := range tt.wantChunks {
				assert.Equal(t, want, chunks[i].Lines)
			}
		})
	}
}

func TestSplitFile_InterleavedGroupDecodesPerChunk(t *testing.T) {
	lines := []string{type5Part1, type1Line, type5Part2, type1Line}

	var static int
	for _, c := range collect(t, strings.Join(lines, "\n"), 2) {
		for _, msg := range ais.NewDecoder().DecodeLines(c.Lines) {
			if _, ok := msg.(*models.StaticVoyage); ok {
				static++
			}
		}
	}
	assert.Equal(t, 1, static)
}

func TestSplitFile_OverflowIsBounded(t *testing.T) {
	// A first fragment that never gets its second part must not hold the
	// chunk open forever.
	lines := []string{type5Part1}
	for i := 0; i < 40; i++ {
		lines = append(lines, type5Part1)
	}

	chunks := collect(t, strings.Join(lines, "\n"), 2)
	for _, c := range chunks[:len(chunks)-1] {
		assert.LessOrEqual(t, len(c.Lines), 2+maxGroupOverflow)
	}
}

func TestSplitFile_DropsBlankLines(t *testing.T) {
	chunks := collect(t, "\n"+type1Line+"\r\n\n  \n"+type3Line+"\n", 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{type1Line, type3Line}, chunks[0].Lines)
}

func TestSplitFile_Empty(t *testing.T) {
	assert.Empty(t, collect(t, "", 10))
}

func TestSplitFile_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Chunk) // nobody reads
	err := SplitFile(ctx, strings.NewReader(type1Line+"\n"), 1, out)
	assert.ErrorIs(t, err, context.Canceled)
}
