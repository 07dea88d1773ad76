package alert

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack"
	Events  []string          `yaml:"events"  json:"events"` // outcome kinds, e.g. ["blocked", "cancellation_failed"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints for one race outcome.
type AlertEvent struct {
	Timestamp         string `json:"timestamp"`
	TraceID           string `json:"trace_id"`
	RequestID         string `json:"request_id,omitempty"`
	Kind              string `json:"kind"`
	Reason            string `json:"reason,omitempty"`
	Error             string `json:"error,omitempty"`
	ElapsedMS         int64  `json:"elapsed_ms"`
	ProducerCancelled bool   `json:"producer_cancelled"`
	ConfigHash        string `json:"config_hash,omitempty"`
}
