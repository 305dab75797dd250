// Package ais decodes AIS messages carried in NMEA 0183 !AIVDM/!AIVDO sentences,
// including NMEA 4.0 tag blocks and multi-sentence reassembly.
package ais

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

var (
	// ErrNotAIS is returned for lines that carry no AIVDM/AIVDO sentence.
	ErrNotAIS = errors.New("not an AIS sentence")
	// ErrChecksum is returned when a sentence or tag block checksum does not match.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrMalformed is returned when a sentence has the wrong shape.
	ErrMalformed = errors.New("malformed sentence")
)

// Sentence is one parsed !AIVDM/!AIVDO line.
type Sentence struct {
	TagBlock       models.TagBlock
	HasTagBlock    bool
	Talker         string // "AI", "AB", ...
	Format         string // "VDM" or "VDO"
	FragmentCount  int
	FragmentNumber int
	SequenceID     string
	Channel        string
	Payload        string
	FillBits       int
}

// Multipart reports whether the sentence is one fragment of a longer message.
func (s Sentence) Multipart() bool {
	return s.FragmentCount > 1
}

// ParseSentence parses a single line. Anything after the sentence checksum
// (receiver metadata appended by some feeds) is ignored.
func ParseSentence(line string) (Sentence, error) {
	var s Sentence
	line = strings.TrimSpace(line)
	if line == "" {
		return s, ErrNotAIS
	}

	if line[0] == '\\' {
		end := strings.IndexByte(line[1:], '\\')
		if end < 0 {
			return s, fmt.Errorf("%w: unterminated tag block", ErrMalformed)
		}
		tb, err := parseTagBlock(line[1 : end+1])
		if err != nil {
			return s, err
		}
		s.TagBlock = tb
		s.HasTagBlock = true
		line = line[end+2:]
	}

	start := strings.IndexByte(line, '!')
	if start < 0 {
		return s, ErrNotAIS
	}
	body := line[start:]

	star := strings.IndexByte(body, '*')
	if star < 0 || len(body) < star+3 {
		return s, fmt.Errorf("%w: missing checksum", ErrMalformed)
	}
	want, err := strconv.ParseUint(body[star+1:star+3], 16, 8)
	if err != nil {
		return s, fmt.Errorf("%w: bad checksum digits", ErrMalformed)
	}
	if got := checksum(body[1:star]); got != byte(want) {
		return s, fmt.Errorf("%w: got %02X want %02X", ErrChecksum, got, want)
	}

	fields := strings.Split(body[1:star], ",")
	if len(fields) != 7 {
		return s, fmt.Errorf("%w: %d fields", ErrMalformed, len(fields))
	}
	if len(fields[0]) != 5 {
		return s, ErrNotAIS
	}
	s.Talker = fields[0][:2]
	s.Format = fields[0][2:]
	if s.Format != "VDM" && s.Format != "VDO" {
		return s, ErrNotAIS
	}

	if s.FragmentCount, err = strconv.Atoi(fields[1]); err != nil || s.FragmentCount < 1 || s.FragmentCount > 9 {
		return s, fmt.Errorf("%w: fragment count %q", ErrMalformed, fields[1])
	}
	if s.FragmentNumber, err = strconv.Atoi(fields[2]); err != nil || s.FragmentNumber < 1 || s.FragmentNumber > s.FragmentCount {
		return s, fmt.Errorf("%w: fragment number %q", ErrMalformed, fields[2])
	}
	s.SequenceID = fields[3]
	s.Channel = fields[4]
	s.Payload = fields[5]
	if s.Payload == "" {
		return s, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if s.FillBits, err = strconv.Atoi(fields[6]); err != nil || s.FillBits < 0 || s.FillBits > 5 {
		return s, fmt.Errorf("%w: fill bits %q", ErrMalformed, fields[6])
	}

	return s, nil
}

// parseTagBlock parses the content between the two backslashes, e.g.
// "g:1-2-73874,n:157036,s:r003669945,c:1241544035*4A".
func parseTagBlock(raw string) (models.TagBlock, error) {
	var tb models.TagBlock

	content := raw
	if star := strings.LastIndexByte(raw, '*'); star >= 0 {
		content = raw[:star]
		digits := raw[star+1:]
		if len(digits) != 2 {
			return tb, fmt.Errorf("%w: tag block checksum needs two hex digits, got %q", ErrMalformed, digits)
		}
		want, err := strconv.ParseUint(digits, 16, 8)
		if err != nil {
			return tb, fmt.Errorf("%w: bad tag block checksum digits", ErrMalformed)
		}
		if got := checksum(content); got != byte(want) {
			return tb, fmt.Errorf("%w: tag block", ErrChecksum)
		}
	}

	for _, field := range strings.Split(content, ",") {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		switch key {
		case "c":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return tb, fmt.Errorf("%w: tag block time %q", ErrMalformed, value)
			}
			// Some receivers report milliseconds.
			if ts >= 100_000_000_000 {
				ts /= 1000
			}
			tb.Timestamp = ts
		case "s":
			tb.Station = value
		case "n":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return tb, fmt.Errorf("%w: tag block line count %q", ErrMalformed, value)
			}
			tb.LineCount = int32(n)
		case "r":
			r, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return tb, fmt.Errorf("%w: tag block relative time %q", ErrMalformed, value)
			}
			tb.RelativeTime = r
		case "d":
			tb.Destination = value
		case "t":
			tb.Text = value
		case "g":
			parts := strings.Split(value, "-")
			if len(parts) != 3 {
				return tb, fmt.Errorf("%w: tag block group %q", ErrMalformed, value)
			}
			var nums [3]int
			for i, p := range parts {
				n, err := strconv.Atoi(p)
				if err != nil {
					return tb, fmt.Errorf("%w: tag block group %q", ErrMalformed, value)
				}
				nums[i] = n
			}
			tb.Group = &models.TagGroup{Sentence: nums[0], SentenceTot: nums[1], GroupID: nums[2]}
		}
	}
	return tb, nil
}

func checksum(s string) byte {
	var sum byte
	for i := 0; i < len(s); i++ {
		sum ^= s[i]
	}
	return sum
}

// FragmentRef identifies one fragment of a possibly multi-sentence message.
type FragmentRef struct {
	Number int
	Count  int
	// Key groups the fragments of one message the same way the Assembler does.
	Key string
}

// Fragment reports the fragment position and group key of a line without
// verifying its checksum or payload. It is meant for cheap scans that only
// need to know which multi-sentence messages are still open.
func Fragment(line string) (FragmentRef, bool) {
	var ref FragmentRef
	if len(line) > 0 && line[0] == '\\' {
		end := strings.IndexByte(line[1:], '\\')
		if end < 0 {
			return ref, false
		}
		line = line[end+2:]
	}
	start := strings.IndexByte(line, '!')
	if start < 0 {
		return ref, false
	}
	fields := strings.SplitN(line[start+1:], ",", 6)
	if len(fields) < 6 || len(fields[0]) != 5 {
		return ref, false
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil || count < 1 {
		return ref, false
	}
	number, err := strconv.Atoi(fields[2])
	if err != nil || number < 1 || number > count {
		return ref, false
	}
	ref.Number, ref.Count = number, count
	ref.Key = fields[4] + "|" + fields[3] + "|" + fields[1]
	return ref, true
}
