package race

import (
	"context"
	"fmt"
	"time"
)

// Verdict is the guard's decision about a request.
type Verdict struct {
	Accepted bool
	Reason   string
}

// Accept returns a passing verdict.
func Accept() Verdict {
	return Verdict{Accepted: true}
}

// Reject returns a failing verdict carrying the reason shown to the caller.
func Reject(reason string) Verdict {
	return Verdict{Reason: reason}
}

func (v Verdict) String() string {
	if v.Accepted {
		return "accepted"
	}
	return "rejected: " + v.Reason
}

// Guard evaluates a request. It must be safe to run alongside an in-flight
// Producer and should return quickly relative to it.
type Guard[I any] interface {
	Evaluate(ctx context.Context, req I) (Verdict, error)
}

// GuardFunc adapts a function to the Guard interface.
type GuardFunc[I any] func(ctx context.Context, req I) (Verdict, error)

// Evaluate calls f.
func (f GuardFunc[I]) Evaluate(ctx context.Context, req I) (Verdict, error) {
	return f(ctx, req)
}

// Producer performs the expensive work. Implementations must check ctx at
// safe points and return without committing anything once it is cancelled.
type Producer[I, O any] interface {
	Produce(ctx context.Context, req I) (O, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc[I, O any] func(ctx context.Context, req I) (O, error)

// Produce calls f.
func (f ProducerFunc[I, O]) Produce(ctx context.Context, req I) (O, error) {
	return f(ctx, req)
}

// Kind identifies which Outcome variant Run returned.
type Kind string

const (
	Completed          Kind = "completed"
	Blocked            Kind = "blocked"
	ProducerFailed     Kind = "producer_failed"
	GuardFailed        Kind = "guard_failed"
	CancellationFailed Kind = "cancellation_failed"
)

// Kinds lists every outcome kind in a stable order.
var Kinds = []Kind{Completed, Blocked, ProducerFailed, GuardFailed, CancellationFailed}

// Outcome is the single result of one Run.
//
// Artifact is set only when Kind is Completed. Reason carries the guard's
// rejection reason for Blocked (and for CancellationFailed following a
// rejection). Err carries the failure cause for the failure kinds.
type Outcome[O any] struct {
	Kind     Kind
	Artifact O
	Reason   string
	Err      error

	// ProducerCancelled reports that the coordinator signalled cancellation
	// to a producer that had not yet delivered a result.
	ProducerCancelled bool

	Elapsed     time.Duration
	Transitions []Transition
}

// OK reports whether the artifact may be used.
func (o Outcome[O]) OK() bool {
	return o.Kind == Completed
}

func (o Outcome[O]) String() string {
	switch o.Kind {
	case Completed:
		return fmt.Sprintf("completed in %s", o.Elapsed)
	case Blocked:
		return fmt.Sprintf("blocked: %s", o.Reason)
	default:
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	}
}
