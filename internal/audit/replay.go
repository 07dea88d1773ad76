package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// ReplayFilter selects entries for Replay. Zero fields match everything.
type ReplayFilter struct {
	TraceID string
	Kind    string
	From    time.Time
	To      time.Time
}

// ReplaySummary counts outcomes among the replayed entries.
type ReplaySummary struct {
	Total             int            `json:"total"`
	ByKind            map[string]int `json:"by_kind"`
	ProducerCancelled int            `json:"producer_cancelled"`
	FirstTimestamp    string         `json:"first_timestamp"`
	LastTimestamp     string         `json:"last_timestamp"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	Filter  string        `json:"filter"`
	Entries []AuditEntry  `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
// Malformed lines are skipped; use Verify to detect them.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{
		Filter:  filter.String(),
		Summary: ReplaySummary{ByKind: map[string]int{}},
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !filter.matches(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		result.Summary.add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}
	return result, nil
}

func (f ReplayFilter) matches(e AuditEntry) bool {
	if f.TraceID != "" && e.TraceID != f.TraceID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func (f ReplayFilter) String() string {
	switch {
	case f.TraceID != "":
		return "trace " + f.TraceID
	case f.Kind != "":
		return "kind " + f.Kind
	default:
		return "all"
	}
}

func (s *ReplaySummary) add(e AuditEntry) {
	s.Total++
	s.ByKind[e.Kind]++
	if e.ProducerCancelled {
		s.ProducerCancelled++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
