package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/guardrace/internal/race"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Audit: %s | No entries found.\n", result.Filter)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Audit: %s | %s–%s UTC\n", result.Filter,
		formatTime(result.Summary.FirstTimestamp, "2006-01-02 15:04:05"),
		formatTime(result.Summary.LastTimestamp, "15:04:05"))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		detail := e.Reason
		if detail == "" {
			detail = e.Error
		}
		cancelled := ""
		if e.ProducerCancelled {
			cancelled = "  [cancelled]"
		}
		fmt.Fprintf(&b, "%-10s %-16s %-20s %6dms  %s%s\n",
			formatTime(e.Timestamp, "15:04:05"), e.TraceID, strings.ToUpper(e.Kind),
			e.ElapsedMS, truncate(detail, 40), cancelled)
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatTime(ts, layout string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format(layout)
}

func formatSummary(s ReplaySummary) string {
	var parts []string
	for _, k := range race.Kinds {
		if n := s.ByKind[string(k)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	return fmt.Sprintf("Summary: %s | Producers cancelled: %d\n", strings.Join(parts, ", "), s.ProducerCancelled)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
