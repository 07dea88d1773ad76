// Package gate runs guarded generations: every request races its guard
// against its producer, and the outcome is traced, audited, stored and
// alerted on.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ppiankov/guardrace/internal/alert"
	"github.com/ppiankov/guardrace/internal/audit"
	"github.com/ppiankov/guardrace/internal/guard"
	"github.com/ppiankov/guardrace/internal/logging"
	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/producer"
	"github.com/ppiankov/guardrace/internal/race"
	"github.com/ppiankov/guardrace/internal/redact"
	"github.com/ppiankov/guardrace/internal/runstore"
	"github.com/ppiankov/guardrace/internal/tracer"
)

const promptPreviewLen = 120

// Options configures a Gate. Audit, Store and Alerts are optional.
type Options struct {
	Race       race.Options
	Audit      *audit.Log
	Store      *runstore.Store
	Alerts     *alert.Dispatcher
	Logger     *slog.Logger
	ConfigHash string
}

// Gate owns the active guard, producer and race options.
type Gate struct {
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	active active
}

// active is the configuration one race runs with. It is replaced as a
// whole so that configHash always names the settings in effect.
type active struct {
	guard      guard.Guard
	producer   producer.Producer
	race       race.Options
	configHash string
}

// New creates a Gate.
func New(g guard.Guard, p producer.Producer, opts Options) *Gate {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	opts.Race.Observer = nil
	return &Gate{
		opts: opts,
		log:  log,
		active: active{
			guard:      g,
			producer:   p,
			race:       opts.Race,
			configHash: opts.ConfigHash,
		},
	}
}

// SetGuard swaps only the guard used by subsequent requests. Races already
// in flight keep the guard they started with. The config hash is unchanged.
func (g *Gate) SetGuard(next guard.Guard) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active.guard = next
}

// Reconfigure replaces the guard, producer and race options in one step and
// records configHash as their source.
func (g *Gate) Reconfigure(gd guard.Guard, p producer.Producer, opts race.Options, configHash string) {
	opts.Observer = nil
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = active{guard: gd, producer: p, race: opts, configHash: configHash}
}

// RaceOptions returns the race options new requests run with.
func (g *Gate) RaceOptions() race.Options {
	return g.snapshot().race
}

func (g *Gate) snapshot() active {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Generate races the guard against the producer for req. An error is
// returned only for a request that cannot be raced; every race yields a
// Result, including blocked and failed ones.
func (g *Gate) Generate(ctx context.Context, req model.Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, fmt.Errorf("gate: %w", err)
	}

	cur := g.snapshot()
	traceID := tracer.NewTraceID()
	if req.ID == "" {
		req.ID = traceID
	}

	rec := tracer.NewRecorder(traceID)
	opts := cur.race
	opts.Observer = rec.Observe

	outcome := race.Run(ctx, req, cur.guard, cur.producer, opts)

	res := NewResult(traceID, req.ID, outcome, rec)
	res.Prompt = redact.Preview(req.LastUserContent(), promptPreviewLen)
	g.logOutcome(res)
	g.persist(ctx, res, cur.configHash)
	return res, nil
}

// Check evaluates the guard alone against text without generating anything.
func (g *Gate) Check(ctx context.Context, text string) (race.Verdict, error) {
	req := model.NewRequest(text, "")
	if err := req.Validate(); err != nil {
		return race.Verdict{}, fmt.Errorf("gate: %w", err)
	}
	cur := g.snapshot()
	if cur.guard == nil {
		return race.Verdict{}, fmt.Errorf("gate: %w", race.ErrNilCollaborator)
	}

	if t := cur.race.GuardTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	v, err := cur.guard.Evaluate(ctx, req)
	if err != nil {
		return race.Verdict{}, fmt.Errorf("gate: check: %w", err)
	}
	return v, nil
}

// Close waits for in-flight alert deliveries.
func (g *Gate) Close() {
	if g.opts.Alerts != nil {
		g.opts.Alerts.Wait()
	}
}

func (g *Gate) logOutcome(res Result) {
	attrs := []any{
		"trace_id", res.TraceID,
		"kind", res.Kind,
		"elapsed_ms", res.ElapsedMS,
		"producer_cancelled", res.ProducerCancelled,
		"path", res.Path,
	}
	switch res.Kind {
	case race.Completed:
		g.log.Info("race completed", attrs...)
	case race.Blocked:
		g.log.Info("race blocked", append(attrs, "reason", res.Reason)...)
	case race.CancellationFailed:
		g.log.Error("producer did not stop", append(attrs, "err", res.Error)...)
	default:
		g.log.Warn("race failed", append(attrs, "err", res.Error)...)
	}
}

// persist writes the outcome to the audit log and run store and dispatches
// alerts. Persistence failures are logged and never change the outcome.
func (g *Gate) persist(ctx context.Context, res Result, configHash string) {
	if g.opts.Audit != nil {
		if err := g.opts.Audit.Record(res.AuditEntry(configHash)); err != nil {
			g.log.Error("audit write failed", "trace_id", res.TraceID, "err", err)
		}
	}
	if g.opts.Store != nil {
		if err := g.opts.Store.Save(context.WithoutCancel(ctx), res.Run()); err != nil {
			g.log.Error("run store write failed", "trace_id", res.TraceID, "err", err)
		}
	}
	if g.opts.Alerts != nil {
		g.opts.Alerts.Dispatch(res.AlertEvent(configHash))
	}
}
