package alert

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ppiankov/guardrace/internal/logging"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
)

var (
	httpClient = &http.Client{Timeout: requestTimeout}
	retryDelay = time.Second
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []AlertConfig
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []AlertConfig) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs, log: logging.Discard()}
}

// WithLogger sets where failed deliveries are reported. Safe on a nil
// Dispatcher.
func (d *Dispatcher) WithLogger(log *slog.Logger) *Dispatcher {
	if d != nil && log != nil {
		d.log = log
	}
	return d
}

// Dispatch sends the event to all webhooks whose Events list contains
// event.Kind. Sends run in the background; use Wait to drain them.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg AlertConfig) {
			defer d.wg.Done()
			if err := Send(cfg, event); err != nil {
				d.log.Error("alert delivery failed", "url", cfg.URL, "trace_id", event.TraceID, "kind", event.Kind, "err", err)
			}
		}(cfg)
	}
}

// Wait blocks until every in-flight send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		if e == event.Kind || e == "*" {
			return true
		}
	}
	return false
}

// attempts returns how many deliveries an event is worth. Completed races
// are informational and get a single try; failures and blocks are retried.
func attempts(event AlertEvent) int {
	if event.Kind == "completed" {
		return 1
	}
	return maxAttempts
}

// Send posts an alert event to a webhook endpoint, retrying 5xx responses
// and transport errors for every kind except completed.
func Send(cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("alert: format payload: %w", err)
	}

	n := attempts(event)
	var lastErr error
	for attempt := 0; attempt < n; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * retryDelay)
		}

		req, err := http.NewRequest(http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("alert: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Guardrace-Kind", event.Kind)
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return fmt.Errorf("alert: webhook rejected %s event: HTTP %d", event.Kind, resp.StatusCode)
		}
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("alert: %s event failed after %d attempts: %w", event.Kind, n, lastErr)
}
