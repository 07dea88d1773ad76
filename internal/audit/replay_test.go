package audit

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReplayFiltersByKindAndSummarises(t *testing.T) {
	l, path := newTestLog(t)
	for _, e := range []AuditEntry{
		{TraceID: "t-a", Kind: "completed"},
		{TraceID: "t-b", Kind: "blocked", Reason: "content policy violation", ProducerCancelled: true},
		{TraceID: "t-c", Kind: "blocked", Reason: "content policy violation", ProducerCancelled: true},
		{TraceID: "t-d", Kind: "cancellation_failed", Error: "producer did not confirm cancellation"},
	} {
		if err := l.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	l.Close()

	all, err := Replay(path, ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if all.Summary.Total != 4 || all.Summary.ByKind["blocked"] != 2 || all.Summary.ProducerCancelled != 2 {
		t.Errorf("unexpected summary: %+v", all.Summary)
	}

	blocked, err := Replay(path, ReplayFilter{Kind: "blocked"})
	if err != nil {
		t.Fatal(err)
	}
	if len(blocked.Entries) != 2 || blocked.Filter != "kind blocked" {
		t.Errorf("expected 2 blocked entries, got %d (%s)", len(blocked.Entries), blocked.Filter)
	}
}

func TestReplayTimeRange(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(AuditEntry{Timestamp: "2026-01-01T10:00:00.000Z", Kind: "completed"})
	l.Record(AuditEntry{Timestamp: "2026-01-01T12:00:00.000Z", Kind: "completed"})
	l.Close()

	res, err := Replay(path, ReplayFilter{From: time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Timestamp != "2026-01-01T12:00:00.000Z" {
		t.Errorf("unexpected entries: %+v", res.Entries)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := Replay(filepath.Join(t.TempDir(), "none.jsonl"), ReplayFilter{}); err == nil {
		t.Fatal("expected error for missing log")
	}
}

func TestFormatTimeline(t *testing.T) {
	res := &ReplayResult{
		Filter: "all",
		Entries: []AuditEntry{
			{Timestamp: "2026-01-01T10:00:00.000Z", TraceID: "t-a", Kind: "completed", ElapsedMS: 900},
			{Timestamp: "2026-01-01T10:00:05.000Z", TraceID: "t-b", Kind: "blocked", Reason: "content policy violation", ProducerCancelled: true},
		},
		Summary: ReplaySummary{
			Total:             2,
			ByKind:            map[string]int{"completed": 1, "blocked": 1},
			ProducerCancelled: 1,
			FirstTimestamp:    "2026-01-01T10:00:00.000Z",
			LastTimestamp:     "2026-01-01T10:00:05.000Z",
		},
	}

	out := FormatTimeline(res)
	for _, want := range []string{"BLOCKED", "[cancelled]", "1 completed, 1 blocked", "Producers cancelled: 1", "2026-01-01 10:00:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("timeline missing %q:\n%s", want, out)
		}
	}

	empty := FormatTimeline(&ReplayResult{Filter: "trace t-x"})
	if !strings.Contains(empty, "No entries found") {
		t.Errorf("unexpected empty timeline: %s", empty)
	}
}
