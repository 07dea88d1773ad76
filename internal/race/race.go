package race

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultCancelGrace bounds how long Run waits for a cancelled producer to stop.
const DefaultCancelGrace = 5 * time.Second

// Options configures one Run. Zero timeouts mean no bound.
type Options struct {
	// GuardTimeout caps guard latency. Exceeding it yields GuardFailed.
	GuardTimeout time.Duration
	// ProducerTimeout is an absolute cap measured from the start of Run. It
	// is enforced on the producer even before the guard resolves.
	ProducerTimeout time.Duration
	// CancelGrace bounds the wait for a cancelled producer to terminate.
	CancelGrace time.Duration
	// Observer, if set, is called synchronously on every state transition.
	Observer func(Transition)
}

func (o Options) withDefaults() Options {
	if o.CancelGrace <= 0 {
		o.CancelGrace = DefaultCancelGrace
	}
	return o
}

type guardResult struct {
	verdict Verdict
	err     error
}

type producerResult[O any] struct {
	artifact O
	err      error
}

// handle owns the producer's execution for one Run.
type handle[O any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan producerResult[O]
}

type run[I, O any] struct {
	ctx  context.Context
	opts Options
	m    *machine
	h    *handle[O]
}

// Run races guard against producer for req and returns exactly one Outcome.
//
// The producer's artifact is returned only when the guard accepted. Whenever
// the guard rejects or fails, the producer is cancelled and Run waits (up to
// CancelGrace) for it to terminate before returning.
func Run[I, O any](ctx context.Context, req I, guard Guard[I], producer Producer[I, O], opts Options) Outcome[O] {
	opts = opts.withDefaults()
	r := &run[I, O]{ctx: ctx, opts: opts, m: newMachine(opts.Observer)}

	if guard == nil || producer == nil {
		r.m.to(Terminal)
		stage := StageGuard
		kind := GuardFailed
		if guard != nil {
			stage, kind = StageProducer, ProducerFailed
		}
		return r.finish(Outcome[O]{Kind: kind, Err: &StageError{Stage: stage, Err: ErrNilCollaborator}})
	}

	guardCtx, cancelGuard := withOptionalTimeout(ctx, opts.GuardTimeout)
	defer cancelGuard()

	r.m.to(Racing)
	guardDone := make(chan guardResult, 1)
	go func() {
		v, err := evaluate(guardCtx, guard, req)
		guardDone <- guardResult{verdict: v, err: err}
	}()
	r.h = start(ctx, producer, req, opts.ProducerTimeout)
	defer r.h.cancel()

	gr := r.awaitGuard(guardCtx, guardDone)
	if gr.err != nil {
		r.m.to(Blocking)
		return r.block(GuardFailed, "", gr.err)
	}
	if !gr.verdict.Accepted {
		r.m.to(Blocking)
		return r.block(Blocked, gr.verdict.Reason, nil)
	}

	r.m.to(Awaiting)
	return r.awaitProducer()
}

// awaitGuard suspends until the guard answers, its timeout fires, or the
// parent context ends. The producer is never observed here.
func (r *run[I, O]) awaitGuard(guardCtx context.Context, done <-chan guardResult) guardResult {
	var timeout <-chan time.Time
	if r.opts.GuardTimeout > 0 {
		t := time.NewTimer(r.opts.GuardTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case gr := <-done:
		if gr.err != nil {
			gr.err = r.guardError(guardCtx, gr.err)
		}
		return gr
	case <-timeout:
		return guardResult{err: &StageError{Stage: StageGuard, Timeout: true, Err: ErrGuardTimeout}}
	case <-r.ctx.Done():
		return guardResult{err: &StageError{Stage: StageGuard, Err: r.ctx.Err()}}
	}
}

func (r *run[I, O]) guardError(guardCtx context.Context, err error) error {
	if r.opts.GuardTimeout > 0 && r.ctx.Err() == nil && errors.Is(guardCtx.Err(), context.DeadlineExceeded) {
		return &StageError{Stage: StageGuard, Timeout: true, Err: fmt.Errorf("%w: %w", ErrGuardTimeout, err)}
	}
	return &StageError{Stage: StageGuard, Err: err}
}

// block cancels the producer, waits for it to confirm termination and
// discards whatever it produced.
func (r *run[I, O]) block(kind Kind, reason string, cause error) Outcome[O] {
	cancelled, confirmed := r.cancelAndConfirm()
	r.m.to(Terminal)
	if !confirmed {
		return r.finish(r.cancellationFailed(reason, cause))
	}
	return r.finish(Outcome[O]{Kind: kind, Reason: reason, Err: cause, ProducerCancelled: cancelled})
}

// awaitProducer waits for the producer after the guard accepted.
func (r *run[I, O]) awaitProducer() Outcome[O] {
	var deadline <-chan time.Time
	if r.opts.ProducerTimeout > 0 {
		t := time.NewTimer(r.opts.ProducerTimeout - r.m.elapsed())
		defer t.Stop()
		deadline = t.C
	}

	// A result already delivered wins over a deadline that fired meanwhile.
	select {
	case res := <-r.h.done:
		return r.complete(res)
	default:
	}

	select {
	case res := <-r.h.done:
		return r.complete(res)

	case <-deadline:
		cause := &StageError{Stage: StageProducer, Timeout: true, Err: ErrProducerTimeout}
		return r.abandon(cause)

	case <-r.ctx.Done():
		cause := &StageError{Stage: StageProducer, Err: r.ctx.Err()}
		return r.abandon(cause)
	}
}

func (r *run[I, O]) complete(res producerResult[O]) Outcome[O] {
	r.m.to(Terminal)
	if res.err != nil {
		return r.finish(Outcome[O]{Kind: ProducerFailed, Err: r.producerError(res.err)})
	}
	return r.finish(Outcome[O]{Kind: Completed, Artifact: res.artifact})
}

// abandon stops a producer that was accepted but must not finish.
func (r *run[I, O]) abandon(cause error) Outcome[O] {
	cancelled, confirmed := r.cancelAndConfirm()
	r.m.to(Terminal)
	if !confirmed {
		return r.finish(r.cancellationFailed("", cause))
	}
	return r.finish(Outcome[O]{Kind: ProducerFailed, Err: cause, ProducerCancelled: cancelled})
}

func (r *run[I, O]) producerError(err error) error {
	if r.opts.ProducerTimeout > 0 && r.ctx.Err() == nil && errors.Is(r.h.ctx.Err(), context.DeadlineExceeded) {
		return &StageError{Stage: StageProducer, Timeout: true, Err: fmt.Errorf("%w: %w", ErrProducerTimeout, err)}
	}
	return &StageError{Stage: StageProducer, Err: err}
}

// cancelAndConfirm signals the producer and waits up to CancelGrace for its
// goroutine to return. cancelled is false when the producer had already
// delivered a result before the signal.
func (r *run[I, O]) cancelAndConfirm() (cancelled, confirmed bool) {
	select {
	case <-r.h.done:
		r.h.cancel()
		return false, true
	default:
	}

	r.h.cancel()
	t := time.NewTimer(r.opts.CancelGrace)
	defer t.Stop()
	select {
	case <-r.h.done:
		return true, true
	case <-t.C:
		return true, false
	}
}

func (r *run[I, O]) cancellationFailed(reason string, cause error) Outcome[O] {
	leak := &StageError{
		Stage: StageProducer,
		Err:   fmt.Errorf("%w within %s", ErrCancellationTimeout, r.opts.CancelGrace),
	}
	return Outcome[O]{
		Kind:              CancellationFailed,
		Reason:            reason,
		Err:               errors.Join(leak, cause),
		ProducerCancelled: true,
	}
}

func (r *run[I, O]) finish(o Outcome[O]) Outcome[O] {
	o.Elapsed = r.m.elapsed()
	o.Transitions = r.m.log
	return o
}

// start launches the producer under its own cancellable context. The done
// channel is buffered so a producer finishing after Run returned never blocks.
func start[I, O any](ctx context.Context, p Producer[I, O], req I, timeout time.Duration) *handle[O] {
	pctx, cancel := withOptionalTimeout(ctx, timeout)
	h := &handle[O]{ctx: pctx, cancel: cancel, done: make(chan producerResult[O], 1)}
	go func() {
		out, err := produce(pctx, p, req)
		h.done <- producerResult[O]{artifact: out, err: err}
	}()
	return h
}

func evaluate[I any](ctx context.Context, g Guard[I], req I) (v Verdict, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()
	return g.Evaluate(ctx, req)
}

func produce[I, O any](ctx context.Context, p Producer[I, O], req I) (out O, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero O
			out, err = zero, fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()
	return p.Produce(ctx, req)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
