package gate

import (
	"errors"
	"time"

	"github.com/ppiankov/guardrace/internal/alert"
	"github.com/ppiankov/guardrace/internal/audit"
	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/race"
	"github.com/ppiankov/guardrace/internal/runstore"
	"github.com/ppiankov/guardrace/internal/tracer"
)

// Result is the JSON-friendly form of one race outcome. Content is set only
// when Kind is completed.
type Result struct {
	TraceID           string         `json:"trace_id"`
	RequestID         string         `json:"request_id,omitempty"`
	Prompt            string         `json:"prompt,omitempty"`
	Kind              race.Kind      `json:"kind"`
	Content           string         `json:"content,omitempty"`
	Model             string         `json:"model,omitempty"`
	FinishReason      string         `json:"finish_reason,omitempty"`
	OutputTokens      int            `json:"output_tokens,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	Error             string         `json:"error,omitempty"`
	Stage             race.Stage     `json:"stage,omitempty"`
	Timeout           bool           `json:"timeout,omitempty"`
	ProducerCancelled bool           `json:"producer_cancelled"`
	ElapsedMS         int64          `json:"elapsed_ms"`
	Path              string         `json:"path"`
	Events            []tracer.Event `json:"events,omitempty"`
}

// NewResult flattens outcome. rec may be nil.
func NewResult(traceID, requestID string, outcome race.Outcome[model.Artifact], rec *tracer.Recorder) Result {
	res := Result{
		TraceID:           traceID,
		RequestID:         requestID,
		Kind:              outcome.Kind,
		Reason:            outcome.Reason,
		ProducerCancelled: outcome.ProducerCancelled,
		ElapsedMS:         outcome.Elapsed.Milliseconds(),
		Path:              path(outcome.Transitions),
	}
	if outcome.OK() {
		res.Content = outcome.Artifact.Content
		res.Model = outcome.Artifact.Model
		res.FinishReason = outcome.Artifact.FinishReason
		res.OutputTokens = outcome.Artifact.OutputTokens
	}
	if outcome.Err != nil {
		res.Error = outcome.Err.Error()
		res.Timeout = race.IsTimeout(outcome.Err)
		var se *race.StageError
		if errors.As(outcome.Err, &se) {
			res.Stage = se.Stage
		}
	}
	if rec != nil {
		res.Events = rec.Events()
	}
	return res
}

// OK reports whether Content may be used.
func (r Result) OK() bool {
	return r.Kind == race.Completed
}

// Decision maps the outcome onto allow/deny for external surfaces.
func (r Result) Decision() model.Decision {
	if r.OK() {
		return model.Allow
	}
	return model.Deny
}

// AuditEntry converts the result to an audit log entry without content.
func (r Result) AuditEntry(configHash string) audit.AuditEntry {
	return audit.AuditEntry{
		TraceID:           r.TraceID,
		RequestID:         r.RequestID,
		Kind:              string(r.Kind),
		Reason:            r.Reason,
		Error:             r.Error,
		ElapsedMS:         r.ElapsedMS,
		ProducerCancelled: r.ProducerCancelled,
		Path:              r.Path,
		Model:             r.Model,
		ConfigHash:        configHash,
	}
}

// Run converts the result to a run store record.
func (r Result) Run() runstore.Run {
	return runstore.Run{
		TraceID:           r.TraceID,
		RequestID:         r.RequestID,
		Prompt:            r.Prompt,
		Kind:              string(r.Kind),
		Reason:            r.Reason,
		Error:             r.Error,
		ElapsedMS:         r.ElapsedMS,
		ProducerCancelled: r.ProducerCancelled,
		Path:              r.Path,
		Model:             r.Model,
		OutputTokens:      r.OutputTokens,
		CreatedAt:         time.Now(),
	}
}

// AlertEvent converts the result to a webhook payload.
func (r Result) AlertEvent(configHash string) alert.AlertEvent {
	return alert.AlertEvent{
		Timestamp:         tracer.UTCNowISO(),
		TraceID:           r.TraceID,
		RequestID:         r.RequestID,
		Kind:              string(r.Kind),
		Reason:            r.Reason,
		Error:             r.Error,
		ElapsedMS:         r.ElapsedMS,
		ProducerCancelled: r.ProducerCancelled,
		ConfigHash:        configHash,
	}
}

func path(ts []race.Transition) string {
	if len(ts) == 0 {
		return ""
	}
	p := string(ts[0].From)
	for _, t := range ts {
		p += ">" + string(t.To)
	}
	return p
}
