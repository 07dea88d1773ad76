package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/guardrace/internal/guard"
	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/producer"
	"github.com/ppiankov/guardrace/internal/race"
	"github.com/ppiankov/guardrace/internal/tracer"
)

var demoUnit time.Duration

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().DurationVar(&demoUnit, "unit", 100*time.Millisecond, "Length of one time unit")
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through the three reference races",
	Long: "A: the guard rejects after 1 unit while generation would take 30.\n" +
		"B: the guard accepts after 1 unit and generation finishes after 2.\n" +
		"C: the guard fails and a healthy generation is cancelled anyway.",
	Args: cobra.NoArgs,
	RunE: runDemo,
}

type demoCase struct {
	title    string
	prompt   string
	guard    guard.Fixed
	steps    int
	expected race.Kind
}

func demoCases(unit time.Duration) []demoCase {
	return []demoCase{
		{
			title:    "A: fast rejection",
			prompt:   "Write something that violates policy",
			guard:    guard.Fixed{Delay: unit, Verdict: race.Reject("Content policy violation")},
			steps:    30,
			expected: race.Blocked,
		},
		{
			title:    "B: accepted generation",
			prompt:   "Hello",
			guard:    guard.Fixed{Delay: unit, Verdict: race.Accept()},
			steps:    2,
			expected: race.Completed,
		},
		{
			title:    "C: guard failure",
			prompt:   "Hello",
			guard:    guard.Fixed{Err: errors.New("evaluator unavailable")},
			steps:    30,
			expected: race.GuardFailed,
		},
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== guardrace demo ===")
	fmt.Fprintf(out, "One unit = %s. Generation produces one step per unit.\n\n", demoUnit)

	failed := 0
	for _, dc := range demoCases(demoUnit) {
		if !runDemoCase(cmd.Context(), out, dc) {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d demo race(s) ended unexpectedly", failed)
	}
	fmt.Fprintln(out, "All races ended as expected.")
	return nil
}

func runDemoCase(ctx context.Context, out io.Writer, dc demoCase) bool {
	fmt.Fprintf(out, "--- %s ---\n", dc.title)
	fmt.Fprintf(out, "Prompt: %q  (generation needs %d units)\n", dc.prompt, dc.steps)

	acked := int64(-1)
	p := &producer.Steps{
		Steps:  dc.steps,
		Delay:  demoUnit,
		Result: "ok",
		OnCancel: func(completed int) {
			atomic.StoreInt64(&acked, int64(completed))
		},
	}

	rec := tracer.NewRecorder(tracer.NewTraceID())
	outcome := race.Run[model.Request, model.Artifact](ctx, model.NewRequest(dc.prompt, ""), dc.guard, p, race.Options{
		CancelGrace: 10 * demoUnit,
		Observer:    rec.Observe,
	})

	for _, ev := range rec.Events() {
		fmt.Fprintf(out, "  %6dms  %s -> %s\n", ev.OffsetMS, ev.From, ev.To)
	}

	switch outcome.Kind {
	case race.Completed:
		fmt.Fprintf(out, "Result: completed, output %q\n", outcome.Artifact.Content)
	case race.Blocked:
		fmt.Fprintf(out, "Result: blocked, reason %q\n", outcome.Reason)
	default:
		fmt.Fprintf(out, "Result: %s, %v\n", outcome.Kind, outcome.Err)
	}
	if n := atomic.LoadInt64(&acked); n >= 0 {
		fmt.Fprintf(out, "Generation cancelled after %d of %d steps, %d units saved.\n", n, dc.steps, int64(dc.steps)-n)
	}
	fmt.Fprintf(out, "Elapsed: %s (trace %s)\n\n", outcome.Elapsed.Round(time.Millisecond), rec.TraceID())

	if outcome.Kind != dc.expected {
		fmt.Fprintf(out, "UNEXPECTED: wanted %s\n\n", dc.expected)
		return false
	}
	return true
}
