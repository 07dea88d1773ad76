package tracer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewTraceID generates a trace ID of the form "t-<12 hex>", one per race.
func NewTraceID() string {
	return prefixedID("t", 12)
}

// NewSpanID generates a span ID of the form "s-<8 hex>", one per transition.
func NewSpanID() string {
	return prefixedID("s", 8)
}

// UTCNowISO returns the current UTC time in ISO format with Z suffix.
func UTCNowISO() string {
	return FormatTime(time.Now())
}

// FormatTime renders t the way every guardrace record does.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func prefixedID(prefix string, hexLen int) string {
	b := make([]byte, (hexLen+1)/2)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s-%x", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b)[:hexLen])
}
