package race

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// unit is one abstract time unit for timing assertions.
const unit = 10 * time.Millisecond

var errEvaluator = errors.New("evaluator exploded")

func guardAfter(d time.Duration, v Verdict) GuardFunc[string] {
	return func(ctx context.Context, _ string) (Verdict, error) {
		select {
		case <-time.After(d):
			return v, nil
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		}
	}
}

// stepProducer returns result after steps*unit, checking ctx between steps.
// acked is set when it observes cancellation.
func stepProducer(steps int, result string, acked *atomic.Bool) ProducerFunc[string, string] {
	return func(ctx context.Context, _ string) (string, error) {
		for i := 0; i < steps; i++ {
			select {
			case <-time.After(unit):
			case <-ctx.Done():
				if acked != nil {
					acked.Store(true)
				}
				return "", ctx.Err()
			}
		}
		return result, nil
	}
}

func TestScenarioA_RejectionStopsLongProducer(t *testing.T) {
	var acked atomic.Bool
	out := Run(context.Background(), "X",
		guardAfter(unit, Reject("content policy violation")),
		stepProducer(30, "AI Response", &acked),
		Options{})

	if out.Kind != Blocked {
		t.Fatalf("expected blocked, got %s (%v)", out.Kind, out.Err)
	}
	if out.Reason != "content policy violation" {
		t.Errorf("unexpected reason %q", out.Reason)
	}
	if out.Artifact != "" {
		t.Errorf("artifact leaked: %q", out.Artifact)
	}
	if !out.ProducerCancelled {
		t.Error("expected producer to be cancelled")
	}
	if !acked.Load() {
		t.Error("producer did not acknowledge cancellation before Run returned")
	}
	if out.Elapsed > 10*unit {
		t.Errorf("expected ~1 unit, took %s", out.Elapsed)
	}
}

func TestScenarioB_AcceptedPassesArtifactThrough(t *testing.T) {
	out := Run(context.Background(), "X",
		guardAfter(unit, Accept()),
		stepProducer(2, "ok", nil),
		Options{})

	if out.Kind != Completed {
		t.Fatalf("expected completed, got %s (%v)", out.Kind, out.Err)
	}
	if out.Artifact != "ok" {
		t.Errorf("expected artifact \"ok\", got %q", out.Artifact)
	}
	if !out.OK() {
		t.Error("OK() should be true for completed")
	}
	if out.Elapsed < 2*unit {
		t.Errorf("completed before the producer could have finished: %s", out.Elapsed)
	}
	if out.Elapsed > 10*unit {
		t.Errorf("expected ~2 units, took %s", out.Elapsed)
	}
}

func TestScenarioC_GuardErrorCancelsHealthyProducer(t *testing.T) {
	var acked atomic.Bool
	guard := GuardFunc[string](func(ctx context.Context, _ string) (Verdict, error) {
		return Verdict{}, errEvaluator
	})

	out := Run(context.Background(), "X", guard, stepProducer(30, "AI Response", &acked), Options{})

	if out.Kind != GuardFailed {
		t.Fatalf("expected guard_failed, got %s", out.Kind)
	}
	if !errors.Is(out.Err, errEvaluator) {
		t.Errorf("expected evaluator error, got %v", out.Err)
	}
	if IsTimeout(out.Err) {
		t.Error("evaluator error must not be reported as timeout")
	}
	if !acked.Load() {
		t.Error("producer was not cancelled")
	}
}

func TestRejectionDiscardsArtifactProducedFirst(t *testing.T) {
	producer := ProducerFunc[string, string](func(ctx context.Context, _ string) (string, error) {
		return "early artifact", nil
	})

	out := Run(context.Background(), "X", guardAfter(2*unit, Reject("nope")), producer, Options{})

	if out.Kind != Blocked {
		t.Fatalf("expected blocked, got %s", out.Kind)
	}
	if out.Artifact != "" {
		t.Errorf("artifact leaked: %q", out.Artifact)
	}
	if out.ProducerCancelled {
		t.Error("producer had already finished; cancellation should not be reported")
	}
}

func TestRejectionRacingProducerCompletionNeverLeaks(t *testing.T) {
	for i := 0; i < 200; i++ {
		decided := make(chan struct{})
		guard := GuardFunc[string](func(ctx context.Context, _ string) (Verdict, error) {
			close(decided)
			return Reject("raced"), nil
		})
		producer := ProducerFunc[string, string](func(ctx context.Context, _ string) (string, error) {
			<-decided
			return "late artifact", nil
		})

		out := Run(context.Background(), "X", guard, producer, Options{})
		if out.Kind != Blocked {
			t.Fatalf("iteration %d: expected blocked, got %s", i, out.Kind)
		}
		if out.Artifact != "" {
			t.Fatalf("iteration %d: artifact leaked: %q", i, out.Artifact)
		}
	}
}

func TestProducerIgnoringCancellationBrieflyIsDiscarded(t *testing.T) {
	var finished atomic.Bool
	producer := ProducerFunc[string, string](func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		// Keeps working for a moment after the signal, then "commits".
		time.Sleep(2 * unit)
		finished.Store(true)
		return "stubborn artifact", nil
	})

	out := Run(context.Background(), "X", guardAfter(unit, Reject("blocked")), producer, Options{CancelGrace: 50 * unit})

	if out.Kind != Blocked {
		t.Fatalf("expected blocked, got %s", out.Kind)
	}
	if out.Artifact != "" {
		t.Errorf("artifact leaked: %q", out.Artifact)
	}
	if !finished.Load() {
		t.Error("Run returned before the producer reached a terminal state")
	}
}

func TestGuardTimeoutCancelsProducer(t *testing.T) {
	var acked atomic.Bool
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// This guard ignores its context entirely.
	guard := GuardFunc[string](func(ctx context.Context, _ string) (Verdict, error) {
		<-release
		return Accept(), nil
	})

	out := Run(context.Background(), "X", guard, stepProducer(30, "x", &acked), Options{GuardTimeout: 2 * unit})

	if out.Kind != GuardFailed {
		t.Fatalf("expected guard_failed, got %s", out.Kind)
	}
	if !errors.Is(out.Err, ErrGuardTimeout) || !IsTimeout(out.Err) {
		t.Errorf("expected guard timeout, got %v", out.Err)
	}
	if !acked.Load() {
		t.Error("producer not cancelled after guard timeout")
	}
}

func TestGuardHonoringDeadlineReportsTimeout(t *testing.T) {
	out := Run(context.Background(), "X",
		guardAfter(20*unit, Accept()),
		stepProducer(30, "x", nil),
		Options{GuardTimeout: 2 * unit})

	if out.Kind != GuardFailed {
		t.Fatalf("expected guard_failed, got %s", out.Kind)
	}
	if !IsTimeout(out.Err) {
		t.Errorf("expected timeout classification, got %v", out.Err)
	}
}

func TestProducerTimeoutAfterAccept(t *testing.T) {
	out := Run(context.Background(), "X",
		guardAfter(unit, Accept()),
		stepProducer(30, "x", nil),
		Options{ProducerTimeout: 4 * unit})

	if out.Kind != ProducerFailed {
		t.Fatalf("expected producer_failed, got %s", out.Kind)
	}
	if !errors.Is(out.Err, ErrProducerTimeout) || !IsTimeout(out.Err) {
		t.Errorf("expected producer timeout, got %v", out.Err)
	}
	if out.Elapsed > 15*unit {
		t.Errorf("producer timeout not enforced: %s", out.Elapsed)
	}
}

func TestProducerTimeoutBeforeGuardStillDefersToGuard(t *testing.T) {
	out := Run(context.Background(), "X",
		guardAfter(5*unit, Reject("unsafe")),
		stepProducer(30, "x", nil),
		Options{ProducerTimeout: unit})

	if out.Kind != Blocked {
		t.Fatalf("expected guard rejection to win, got %s (%v)", out.Kind, out.Err)
	}
}

func TestProducerTimeoutBeforeGuardAccept(t *testing.T) {
	out := Run(context.Background(), "X",
		guardAfter(5*unit, Accept()),
		stepProducer(30, "x", nil),
		Options{ProducerTimeout: unit})

	if out.Kind != ProducerFailed || !IsTimeout(out.Err) {
		t.Fatalf("expected producer timeout, got %s (%v)", out.Kind, out.Err)
	}
}

func TestProducerErrorAfterAccept(t *testing.T) {
	errGen := errors.New("model overloaded")
	producer := ProducerFunc[string, string](func(ctx context.Context, _ string) (string, error) {
		return "", errGen
	})

	out := Run(context.Background(), "X", guardAfter(unit, Accept()), producer, Options{})

	if out.Kind != ProducerFailed {
		t.Fatalf("expected producer_failed, got %s", out.Kind)
	}
	if !errors.Is(out.Err, errGen) {
		t.Errorf("expected wrapped generation error, got %v", out.Err)
	}
	if IsTimeout(out.Err) {
		t.Error("generation error must not be reported as timeout")
	}
}

func TestCancellationFailedIsSurfaced(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	producer := ProducerFunc[string, string](func(ctx context.Context, _ string) (string, error) {
		<-release
		return "never seen", nil
	})

	out := Run(context.Background(), "X", guardAfter(unit, Reject("unsafe")), producer, Options{CancelGrace: 2 * unit})

	if out.Kind != CancellationFailed {
		t.Fatalf("expected cancellation_failed, got %s", out.Kind)
	}
	if !errors.Is(out.Err, ErrCancellationTimeout) {
		t.Errorf("expected cancellation timeout, got %v", out.Err)
	}
	if out.Reason != "unsafe" {
		t.Errorf("rejection reason lost: %q", out.Reason)
	}
	if out.Artifact != "" {
		t.Errorf("artifact leaked: %q", out.Artifact)
	}
}

func TestCancellationFailedKeepsGuardCause(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	guard := GuardFunc[string](func(ctx context.Context, _ string) (Verdict, error) {
		return Verdict{}, errEvaluator
	})
	producer := ProducerFunc[string, string](func(ctx context.Context, _ string) (string, error) {
		<-release
		return "", nil
	})

	out := Run(context.Background(), "X", guard, producer, Options{CancelGrace: unit})

	if out.Kind != CancellationFailed {
		t.Fatalf("expected cancellation_failed, got %s", out.Kind)
	}
	if !errors.Is(out.Err, errEvaluator) || !errors.Is(out.Err, ErrCancellationTimeout) {
		t.Errorf("expected both causes, got %v", out.Err)
	}
}

func TestGuardPanicIsRecovered(t *testing.T) {
	guard := GuardFunc[string](func(ctx context.Context, _ string) (Verdict, error) {
		panic("boom")
	})

	out := Run(context.Background(), "X", guard, stepProducer(30, "x", nil), Options{})

	if out.Kind != GuardFailed || !errors.Is(out.Err, ErrPanic) {
		t.Fatalf("expected recovered guard panic, got %s (%v)", out.Kind, out.Err)
	}
}

func TestProducerPanicIsRecovered(t *testing.T) {
	producer := ProducerFunc[string, string](func(ctx context.Context, _ string) (string, error) {
		panic("boom")
	})

	out := Run(context.Background(), "X", guardAfter(unit, Accept()), producer, Options{})

	if out.Kind != ProducerFailed || !errors.Is(out.Err, ErrPanic) {
		t.Fatalf("expected recovered producer panic, got %s (%v)", out.Kind, out.Err)
	}
}

func TestParentCancelWhileRacing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var acked atomic.Bool

	go func() {
		time.Sleep(unit)
		cancel()
	}()

	out := Run(ctx, "X", guardAfter(20*unit, Accept()), stepProducer(30, "x", &acked), Options{})

	if out.Kind != GuardFailed {
		t.Fatalf("expected guard_failed, got %s", out.Kind)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", out.Err)
	}
	if !acked.Load() {
		t.Error("producer not stopped on parent cancel")
	}
}

func TestParentCancelWhileAwaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := Options{Observer: func(tr Transition) {
		if tr.To == Awaiting {
			go cancel()
		}
	}}

	out := Run(ctx, "X", guardAfter(unit, Accept()), stepProducer(30, "x", nil), opts)

	if out.Kind != ProducerFailed {
		t.Fatalf("expected producer_failed, got %s", out.Kind)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", out.Err)
	}
}

func TestTransitionsFollowStateMachine(t *testing.T) {
	var seen []Transition
	opts := Options{Observer: func(tr Transition) { seen = append(seen, tr) }}

	out := Run(context.Background(), "X", guardAfter(unit, Accept()), stepProducer(1, "ok", nil), opts)
	wantAccepted := []State{Racing, Awaiting, Terminal}
	assertStates(t, out.Transitions, wantAccepted)
	assertStates(t, seen, wantAccepted)

	out = Run(context.Background(), "X", guardAfter(unit, Reject("no")), stepProducer(30, "ok", nil), Options{})
	assertStates(t, out.Transitions, []State{Racing, Blocking, Terminal})
}

func TestNilCollaborators(t *testing.T) {
	out := Run[string, string](context.Background(), "X", nil, stepProducer(1, "ok", nil), Options{})
	if out.Kind != GuardFailed || !errors.Is(out.Err, ErrNilCollaborator) {
		t.Fatalf("expected guard_failed for nil guard, got %s (%v)", out.Kind, out.Err)
	}

	out = Run[string, string](context.Background(), "X", guardAfter(0, Accept()), nil, Options{})
	if out.Kind != ProducerFailed || !errors.Is(out.Err, ErrNilCollaborator) {
		t.Fatalf("expected producer_failed for nil producer, got %s (%v)", out.Kind, out.Err)
	}
}

func TestProducerStartsWithoutWaitingForGuard(t *testing.T) {
	started := make(chan struct{})
	guard := GuardFunc[string](func(ctx context.Context, _ string) (Verdict, error) {
		select {
		case <-started:
			return Accept(), nil
		case <-time.After(20 * unit):
			return Reject("producer never overlapped the guard"), nil
		}
	})
	producer := ProducerFunc[string, string](func(ctx context.Context, _ string) (string, error) {
		close(started)
		return "ok", nil
	})

	out := Run(context.Background(), "X", guard, producer, Options{})
	if out.Kind != Completed {
		t.Fatalf("expected overlap, got %s: %s", out.Kind, out.Reason)
	}
}

func assertStates(t *testing.T, got []Transition, want []State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(got), got)
	}
	prev := Idle
	for i, tr := range got {
		if tr.From != prev || tr.To != want[i] {
			t.Errorf("transition %d: expected %s -> %s, got %s -> %s", i, prev, want[i], tr.From, tr.To)
		}
		prev = tr.To
	}
}
