// Package producer provides race.Producer implementations that generate a
// model.Artifact for a request: streaming chat completions, AWS Bedrock,
// and a checkpointed step simulator.
package producer

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/guardrace/internal/llm"
	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/race"
)

// Producer is the producer contract specialised to chat requests.
type Producer = race.Producer[model.Request, model.Artifact]

// Chat streams a completion from an OpenAI-compatible endpoint. Each
// streamed chunk is a cancellation checkpoint.
type Chat struct {
	Client      *llm.Client
	Temperature float64
	// OnDelta, if set, receives streamed text as it arrives. Deltas are not
	// an artifact: the caller must not commit them before the outcome.
	OnDelta func(string)
}

var _ Producer = (*Chat)(nil)

// Produce streams the completion for req.Messages.
func (c *Chat) Produce(ctx context.Context, req model.Request) (model.Artifact, error) {
	return c.Client.Stream(ctx, req.Messages, c.Temperature, c.OnDelta)
}

// Steps simulates an expensive generation as a sequence of checkpointed
// steps, checking for cancellation between each one.
type Steps struct {
	Steps  int
	Delay  time.Duration
	Result string
	// Err, if set, is returned after the last step instead of Result.
	Err error
	// Linger keeps working this long after cancellation and then returns
	// Result anyway, modelling a producer slow to honour the signal.
	Linger time.Duration
	// OnCancel is called with the number of completed steps when the
	// producer acknowledges cancellation.
	OnCancel func(completed int)
}

var _ Producer = (*Steps)(nil)

// Produce runs the steps.
func (s *Steps) Produce(ctx context.Context, _ model.Request) (model.Artifact, error) {
	for i := 0; i < s.Steps; i++ {
		t := time.NewTimer(s.Delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			if s.Linger > 0 {
				time.Sleep(s.Linger)
				return s.artifact(), nil
			}
			if s.OnCancel != nil {
				s.OnCancel(i)
			}
			return model.Artifact{}, ctx.Err()
		}
	}
	if s.Err != nil {
		return model.Artifact{}, s.Err
	}
	return s.artifact(), nil
}

func (s *Steps) artifact() model.Artifact {
	return model.Artifact{
		Content:      s.Result,
		Model:        "steps",
		FinishReason: "stop",
		OutputTokens: s.Steps,
	}
}

// RetryConfig controls Retry.
type RetryConfig struct {
	MaxAttempts int
	ShouldRetry func(error) bool
}

// Retry wraps next with error-only retries. Context errors are never retried
// so a cancelled producer stops at once.
func Retry(next Producer, cfg RetryConfig) Producer {
	if next == nil {
		return nil
	}
	return &retrying{next: next, cfg: cfg}
}

type retrying struct {
	next Producer
	cfg  RetryConfig
}

func (r *retrying) Produce(ctx context.Context, req model.Request) (model.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return model.Artifact{}, err
	}

	attempts := r.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		art, err := r.next.Produce(ctx, req)
		if err == nil {
			return art, nil
		}
		lastErr = err
		if attempt == attempts || !r.shouldRetry(ctx, err) {
			break
		}
	}
	return model.Artifact{}, lastErr
}

func (r *retrying) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.cfg.ShouldRetry == nil {
		return true
	}
	return r.cfg.ShouldRetry(err)
}
