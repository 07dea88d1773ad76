package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	default:
		return json.Marshal(event)
	}
}

func formatSlack(event AlertEvent) ([]byte, error) {
	detail := event.Reason
	if detail == "" {
		detail = event.Error
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("%s guardrace: %s", severityIcon(event.Kind), event.Kind),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Trace:* %s", event.TraceID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Elapsed:* %dms", event.ElapsedMS)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Producer cancelled:* %t", event.ProducerCancelled)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Detail:* %s", detail)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func severityIcon(kind string) string {
	switch kind {
	case "cancellation_failed":
		return ":rotating_light:"
	case "guard_failed", "producer_failed":
		return ":warning:"
	case "blocked":
		return ":no_entry:"
	default:
		return ":information_source:"
	}
}
