package audit

// AuditEntry is one line in the hash-chained JSONL audit log, one per race.
// All fields are scalars so json.Marshal output is deterministic for hashing.
// Generated content is never recorded.
type AuditEntry struct {
	Timestamp         string `json:"ts"`
	TraceID           string `json:"trace_id"`
	RequestID         string `json:"request_id,omitempty"`
	Kind              string `json:"kind"`
	Reason            string `json:"reason,omitempty"`
	Error             string `json:"error,omitempty"`
	ElapsedMS         int64  `json:"elapsed_ms"`
	ProducerCancelled bool   `json:"producer_cancelled"`
	Path              string `json:"path"`
	Model             string `json:"model,omitempty"`
	ConfigHash        string `json:"config_hash"`
	PrevHash          string `json:"prev_hash"`
}
