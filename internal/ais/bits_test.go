package ais

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitBuffer(t *testing.T) {
	t.Run("armour values", func(t *testing.T) {
		b, err := newBitBuffer("0W`w", 0)
		require.NoError(t, err)
		assert.Equal(t, 24, b.Len())
		assert.Equal(t, uint64(0), b.Uint(0, 6))
		assert.Equal(t, uint64(39), b.Uint(6, 6))
		assert.Equal(t, uint64(40), b.Uint(12, 6))
		assert.Equal(t, uint64(63), b.Uint(18, 6))
	})

	t.Run("fill bits shorten the buffer", func(t *testing.T) {
		b, err := newBitBuffer("ww", 2)
		require.NoError(t, err)
		assert.Equal(t, 10, b.Len())
		// bits past the end read as zero
		assert.Equal(t, uint64(0b111111111100), b.Uint(0, 12))
	})

	t.Run("signed values", func(t *testing.T) {
		b, err := newBitBuffer("w0", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(-1), b.Int(0, 6))
		assert.Equal(t, int64(0), b.Int(6, 6))
		assert.Equal(t, int64(-64), b.Int(0, 12))
	})

	t.Run("invalid character", func(t *testing.T) {
		_, err := newBitBuffer("0X0", 0)
		assert.ErrorIs(t, err, ErrArmor)
	})

	t.Run("text trims padding", func(t *testing.T) {
		// "AB" followed by '@' padding and then garbage
		b, err := newBitBuffer("12000", 0)
		require.NoError(t, err)
		assert.Equal(t, "AB", b.Text(0, 30))
	})
}
