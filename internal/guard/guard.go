// Package guard provides race.Guard implementations over model.Request:
// a pattern denylist, an LLM judge, ordered chains and fixed test verdicts.
package guard

import (
	"context"
	"time"

	"github.com/ppiankov/guardrace/internal/denylist"
	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/race"
)

// Guard is the guard contract specialised to chat requests.
type Guard = race.Guard[model.Request]

// Denylist rejects requests whose last user message matches a content
// pattern. A reload builds a new Denylist guard rather than mutating one.
type Denylist struct {
	dl *denylist.Denylist
}

var _ Guard = (*Denylist)(nil)

// NewDenylist wraps dl. A nil dl uses the built-in patterns.
func NewDenylist(dl *denylist.Denylist) *Denylist {
	if dl == nil {
		dl = denylist.NewDefault()
	}
	return &Denylist{dl: dl}
}

// Evaluate checks the last user message against the denylist.
func (g *Denylist) Evaluate(ctx context.Context, req model.Request) (race.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return race.Verdict{}, err
	}

	if blocked, reason := g.dl.IsBlocked(req.LastUserContent()); blocked {
		return race.Reject("content policy violation: " + reason), nil
	}
	return race.Accept(), nil
}

// Chain evaluates guards in order. The first rejection or error wins; the
// request is accepted only when every guard accepts.
type Chain []Guard

var _ Guard = Chain(nil)

// Evaluate runs each guard in turn.
func (c Chain) Evaluate(ctx context.Context, req model.Request) (race.Verdict, error) {
	for _, g := range c {
		v, err := g.Evaluate(ctx, req)
		if err != nil {
			return race.Verdict{}, err
		}
		if !v.Accepted {
			return v, nil
		}
	}
	return race.Accept(), nil
}

// Fixed returns a preset verdict (or error) after Delay. It stands in for a
// real evaluator in demos and scenario files.
type Fixed struct {
	Delay   time.Duration
	Verdict race.Verdict
	Err     error
}

var _ Guard = Fixed{}

// Evaluate waits for Delay, honouring ctx, then returns the preset result.
func (f Fixed) Evaluate(ctx context.Context, _ model.Request) (race.Verdict, error) {
	if f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return race.Verdict{}, ctx.Err()
		}
	}
	if f.Err != nil {
		return race.Verdict{}, f.Err
	}
	return f.Verdict, nil
}
