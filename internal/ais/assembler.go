package ais

import "github.com/maritimeviz/maritimeviz/internal/models"

// DefaultMaxPending bounds the number of incomplete multi-sentence groups.
const DefaultMaxPending = 1024

type fragmentKey struct {
	channel  string
	sequence string
	count    int
}

type fragmentGroup struct {
	tagBlock models.TagBlock
	payloads []string
	fill     int
	order    uint64
}

// Assembler joins the fragments of multi-sentence messages.
// It is not safe for concurrent use.
type Assembler struct {
	pending    map[fragmentKey]*fragmentGroup
	maxPending int
	counter    uint64
	dropped    int
}

// NewAssembler creates an assembler holding at most maxPending open groups.
func NewAssembler(maxPending int) *Assembler {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Assembler{
		pending:    make(map[fragmentKey]*fragmentGroup),
		maxPending: maxPending,
	}
}

// Add feeds one sentence. When it completes a message the joined payload,
// fill bits and the tag block of the first fragment are returned with ok=true.
func (a *Assembler) Add(s Sentence) (payload string, fill int, tb models.TagBlock, ok bool) {
	if s.FragmentCount == 1 {
		return s.Payload, s.FillBits, s.TagBlock, true
	}

	key := fragmentKey{channel: s.Channel, sequence: s.SequenceID, count: s.FragmentCount}

	if s.FragmentNumber == 1 {
		if _, exists := a.pending[key]; exists {
			a.dropped++
		} else if len(a.pending) >= a.maxPending {
			a.evictOldest()
		}
		a.counter++
		a.pending[key] = &fragmentGroup{
			tagBlock: s.TagBlock,
			payloads: []string{s.Payload},
			order:    a.counter,
		}
		return "", 0, tb, false
	}

	g, exists := a.pending[key]
	if !exists {
		a.dropped++
		return "", 0, tb, false
	}
	if s.FragmentNumber != len(g.payloads)+1 {
		delete(a.pending, key)
		a.dropped++
		return "", 0, tb, false
	}

	g.payloads = append(g.payloads, s.Payload)
	if len(g.payloads) < s.FragmentCount {
		return "", 0, tb, false
	}

	delete(a.pending, key)
	joined := 0
	for _, p := range g.payloads {
		joined += len(p)
	}
	buf := make([]byte, 0, joined)
	for _, p := range g.payloads {
		buf = append(buf, p...)
	}
	return string(buf), s.FillBits, g.tagBlock, true
}

// Pending returns the number of incomplete groups.
func (a *Assembler) Pending() int {
	return len(a.pending)
}

// Dropped returns the number of fragments discarded as orphaned or out of order.
func (a *Assembler) Dropped() int {
	return a.dropped
}

func (a *Assembler) evictOldest() {
	var oldestKey fragmentKey
	var oldest uint64
	found := false
	for k, g := range a.pending {
		if !found || g.order < oldest {
			oldestKey, oldest, found = k, g.order, true
		}
	}
	if found {
		delete(a.pending, oldestKey)
		a.dropped++
	}
}
