package guard

import (
	"context"

	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/race"
	"github.com/ppiankov/guardrace/internal/ratelimit"
)

// RateLimit rejects requests once the limiter's window is full.
type RateLimit struct {
	limiter *ratelimit.Limiter
	// Key picks the counter a request is charged to. Nil charges every
	// request to one shared counter.
	Key func(model.Request) string
}

var _ Guard = (*RateLimit)(nil)

// NewRateLimit creates a rate limiting guard.
func NewRateLimit(l *ratelimit.Limiter) *RateLimit {
	return &RateLimit{limiter: l}
}

// Evaluate charges req to its key and rejects it when over the limit.
func (g *RateLimit) Evaluate(ctx context.Context, req model.Request) (race.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return race.Verdict{}, err
	}
	key := "*"
	if g.Key != nil {
		key = g.Key(req)
	}
	if r := g.limiter.Allow(key); r.Exceeded {
		return race.Reject(r.Reason), nil
	}
	return race.Accept(), nil
}
