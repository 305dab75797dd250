package models

// IngestStats summarises one file ingest.
type IngestStats struct {
	Lines         int            `json:"lines"`
	Sentences     int            `json:"sentences"`
	Decoded       map[int]int    `json:"decoded"` // by message type
	Skipped       int            `json:"skipped"`
	Errors        map[string]int `json:"errors"` // by reason
	Rows123       int64          `json:"rows_123"`
	Rows5         int64          `json:"rows_5"`
	PublishErrors int            `json:"publish_errors,omitempty"`
	Threads       int            `json:"threads"`
	ChunkSize     int            `json:"chunk_size"`
	DurationMs    int64          `json:"duration_ms"`
}

// ErrorCount returns the number of lines that failed to decode.
func (s *IngestStats) ErrorCount() int {
	n := 0
	for _, v := range s.Errors {
		n += v
	}
	return n
}
