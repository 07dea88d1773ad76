package tracer

import (
	"sync"
	"time"

	"github.com/ppiankov/guardrace/internal/race"
)

// Event is a JSON-serializable record of one coordinator state transition.
type Event struct {
	Timestamp    string     `json:"ts"`
	TraceID      string     `json:"trace_id"`
	SpanID       string     `json:"span_id"`
	ParentSpanID string     `json:"parent_span_id,omitempty"`
	From         race.State `json:"from"`
	To           race.State `json:"to"`
	OffsetMS     int64      `json:"offset_ms"`
}

// Recorder collects the transitions of one race as linked events. Observe
// is safe to pass as race.Options.Observer.
type Recorder struct {
	traceID string
	now     func() time.Time

	mu     sync.Mutex
	events []Event
}

// NewRecorder creates a Recorder for traceID.
func NewRecorder(traceID string) *Recorder {
	return &Recorder{traceID: traceID, now: time.Now}
}

// TraceID returns the trace this recorder belongs to.
func (r *Recorder) TraceID() string {
	return r.traceID
}

// Observe records t, chaining it to the previous event.
func (r *Recorder) Observe(t race.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := Event{
		Timestamp: FormatTime(r.now()),
		TraceID:   r.traceID,
		SpanID:    NewSpanID(),
		From:      t.From,
		To:        t.To,
		OffsetMS:  t.At.Milliseconds(),
	}
	if n := len(r.events); n > 0 {
		ev.ParentSpanID = r.events[n-1].SpanID
	}
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Path renders the visited states, e.g. "idle>racing>awaiting>terminal".
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	path := string(r.events[0].From)
	for _, ev := range r.events {
		path += ">" + string(ev.To)
	}
	return path
}
