package ais

import (
	"errors"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

// Error reasons reported in Stats.Errors.
const (
	ReasonNotAIS    = "not_ais"
	ReasonChecksum  = "checksum"
	ReasonMalformed = "malformed"
	ReasonArmor     = "armor"
	ReasonBitCount  = "bit_count"
)

// Stats counts what a Decoder has seen.
type Stats struct {
	Lines     int            `json:"lines"`
	Sentences int            `json:"sentences"`
	Decoded   map[int]int    `json:"decoded"`
	Skipped   int            `json:"skipped"`
	Errors    map[string]int `json:"errors"`
}

func newStats() Stats {
	return Stats{
		Decoded: make(map[int]int),
		Errors:  make(map[string]int),
	}
}

// Merge adds the counts of other into s.
func (s *Stats) Merge(other Stats) {
	if s.Decoded == nil {
		s.Decoded = make(map[int]int)
	}
	if s.Errors == nil {
		s.Errors = make(map[string]int)
	}
	s.Lines += other.Lines
	s.Sentences += other.Sentences
	s.Skipped += other.Skipped
	for k, v := range other.Decoded {
		s.Decoded[k] += v
	}
	for k, v := range other.Errors {
		s.Errors[k] += v
	}
}

// ErrorCount returns the total number of failed lines.
func (s *Stats) ErrorCount() int {
	n := 0
	for _, v := range s.Errors {
		n += v
	}
	return n
}

// Decoder turns lines of NMEA text into AIS messages. Decoding keeps going
// past bad lines; failures are only counted. A Decoder is not safe for
// concurrent use; run one per goroutine.
type Decoder struct {
	assembler *Assembler
	wanted    map[int]bool
	stats     Stats
}

// NewDecoder creates a decoder. When types is non-empty only those message
// ids are decoded; others are counted as skipped.
func NewDecoder(types ...int) *Decoder {
	d := &Decoder{
		assembler: NewAssembler(DefaultMaxPending),
		stats:     newStats(),
	}
	if len(types) > 0 {
		d.wanted = make(map[int]bool, len(types))
		for _, t := range types {
			d.wanted[t] = true
		}
	}
	return d
}

// DecodeLine decodes one line. It returns (nil, nil) for a fragment that does
// not yet complete a message and for skipped message types.
func (d *Decoder) DecodeLine(line string) (Message, error) {
	d.stats.Lines++

	s, err := ParseSentence(line)
	if err != nil {
		d.countError(err)
		return nil, err
	}
	d.stats.Sentences++

	payload, fill, tb, ok := d.assembler.Add(s)
	if !ok {
		return nil, nil
	}

	if d.wanted != nil {
		id, err := MessageType(payload)
		if err != nil {
			d.countError(err)
			return nil, err
		}
		if !d.wanted[id] {
			d.stats.Skipped++
			return nil, nil
		}
	}

	msg, err := DecodePayload(payload, fill)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			d.stats.Skipped++
			return nil, nil
		}
		d.countError(err)
		return nil, err
	}

	switch m := msg.(type) {
	case *models.PositionReport:
		m.TagBlock = tb
	case *models.StaticVoyage:
		m.TagBlock = tb
	}
	d.stats.Decoded[msg.MessageID()]++
	return msg, nil
}

// DecodeLines decodes a chunk of lines and returns every complete message.
func (d *Decoder) DecodeLines(lines []string) []Message {
	out := make([]Message, 0, len(lines))
	for _, line := range lines {
		msg, err := d.DecodeLine(line)
		if err != nil || msg == nil {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Stats returns a snapshot of the counters.
func (d *Decoder) Stats() Stats {
	snap := newStats()
	snap.Merge(d.stats)
	return snap
}

func (d *Decoder) countError(err error) {
	switch {
	case errors.Is(err, ErrNotAIS):
		d.stats.Errors[ReasonNotAIS]++
	case errors.Is(err, ErrChecksum):
		d.stats.Errors[ReasonChecksum]++
	case errors.Is(err, ErrArmor):
		d.stats.Errors[ReasonArmor]++
	case errors.Is(err, ErrBitCount):
		d.stats.Errors[ReasonBitCount]++
	default:
		d.stats.Errors[ReasonMalformed]++
	}
}
