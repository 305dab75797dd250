package ais

import (
	"errors"
	"fmt"
	"strings"
)

// ErrArmor is returned for payload characters outside the AIS six-bit alphabet.
var ErrArmor = errors.New("invalid payload character")

// sixbitText is the AIS six-bit ASCII table used for text fields.
const sixbitText = "@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_ !\"#$%&'()*+,-./0123456789:;<=>?"

// bitBuffer holds a de-armoured payload as a sequence of six-bit values.
// Reads past the end yield zero bits.
type bitBuffer struct {
	sixes []byte
	n     int
}

func newBitBuffer(payload string, fill int) (*bitBuffer, error) {
	sixes := make([]byte, len(payload))
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		if c < '0' || c > 'w' || (c > 'W' && c < '`') {
			return nil, fmt.Errorf("%w: %q at %d", ErrArmor, c, i)
		}
		v := c - '0'
		if v > 40 {
			v -= 8
		}
		sixes[i] = v
	}
	n := len(payload)*6 - fill
	if n < 0 {
		n = 0
	}
	return &bitBuffer{sixes: sixes, n: n}, nil
}

// Len returns the number of payload bits.
func (b *bitBuffer) Len() int {
	return b.n
}

func (b *bitBuffer) bit(i int) uint64 {
	if i < 0 || i >= b.n {
		return 0
	}
	return uint64(b.sixes[i/6]>>(5-i%6)) & 1
}

// Uint reads width bits starting at start as an unsigned integer.
func (b *bitBuffer) Uint(start, width int) uint64 {
	var v uint64
	for i := start; i < start+width; i++ {
		v = v<<1 | b.bit(i)
	}
	return v
}

// Int reads width bits starting at start as a two's complement integer.
func (b *bitBuffer) Int(start, width int) int64 {
	v := b.Uint(start, width)
	if width > 0 && v&(1<<(width-1)) != 0 {
		return int64(v) - int64(1)<<width
	}
	return int64(v)
}

// Bool reads a single bit.
func (b *bitBuffer) Bool(pos int) bool {
	return b.bit(pos) == 1
}

// Text reads width/6 six-bit characters and trims "@" padding and trailing spaces.
func (b *bitBuffer) Text(start, width int) string {
	var sb strings.Builder
	for i := 0; i+6 <= width; i += 6 {
		sb.WriteByte(sixbitText[b.Uint(start+i, 6)])
	}
	s := sb.String()
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	return strings.TrimRight(s, " ")
}
