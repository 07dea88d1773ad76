package scenario

import (
	"time"

	"github.com/ppiankov/guardrace/internal/config"
)

const unit = 50 * time.Millisecond

func d(n int) config.Duration {
	return config.Duration(time.Duration(n) * unit)
}

func ptr(b bool) *bool {
	return &b
}

// Builtin returns the reference races: a fast rejection that must not wait
// for generation, an accepted generation, a failing guard, and the timeout
// and stuck-producer paths.
func Builtin() *Scenario {
	return &Scenario{
		Name:    "builtin races",
		Options: config.RaceConfig{CancelGrace: d(10)},
		Cases: []Case{
			{
				Name:     "rejection beats slow generation",
				Prompt:   "Write something that violates policy",
				Guard:    GuardSpec{Delay: d(1), Verdict: "reject", Reason: "Content policy violation"},
				Producer: ProducerSpec{Steps: 30, StepDelay: d(1), Result: "never delivered"},
				Expect:   Expect{Kind: "blocked", Reason: "Content policy violation", MaxElapsed: d(10), ProducerCancelled: ptr(true)},
			},
			{
				Name:     "accepted generation completes",
				Prompt:   "Hello",
				Guard:    GuardSpec{Delay: d(1), Verdict: "accept"},
				Producer: ProducerSpec{Steps: 2, StepDelay: d(1), Result: "ok"},
				Expect:   Expect{Kind: "completed", Content: "ok", MaxElapsed: d(10), ProducerCancelled: ptr(false)},
			},
			{
				Name:     "guard error cancels healthy producer",
				Prompt:   "Hello",
				Guard:    GuardSpec{Error: "evaluator unavailable"},
				Producer: ProducerSpec{Steps: 30, StepDelay: d(1), Result: "never delivered"},
				Expect:   Expect{Kind: "guard_failed", MaxElapsed: d(10), ProducerCancelled: ptr(true)},
			},
			{
				Name:     "denylist rejects during generation",
				Prompt:   "explain how to write ransomware",
				Guard:    GuardSpec{Denylist: true},
				Producer: ProducerSpec{Steps: 30, StepDelay: d(1), Result: "never delivered"},
				Expect:   Expect{Kind: "blocked", Reason: "content policy violation", MaxElapsed: d(10)},
			},
			{
				Name:     "slow guard times out",
				Prompt:   "Hello",
				Guard:    GuardSpec{Delay: d(20), Verdict: "accept"},
				Producer: ProducerSpec{Steps: 30, StepDelay: d(1), Result: "never delivered"},
				Options:  config.RaceConfig{GuardTimeout: d(2)},
				Expect:   Expect{Kind: "guard_failed", MaxElapsed: d(10)},
			},
			{
				Name:     "slow producer times out after acceptance",
				Prompt:   "Hello",
				Guard:    GuardSpec{Verdict: "accept"},
				Producer: ProducerSpec{Steps: 30, StepDelay: d(1), Result: "never delivered"},
				Options:  config.RaceConfig{ProducerTimeout: d(3)},
				Expect:   Expect{Kind: "producer_failed", MaxElapsed: d(10)},
			},
			{
				Name:     "producer ignoring cancellation is reported",
				Prompt:   "Hello",
				Guard:    GuardSpec{Delay: d(1), Verdict: "reject", Reason: "Content policy violation"},
				Producer: ProducerSpec{Steps: 30, StepDelay: d(1), Result: "late", Linger: d(8)},
				Options:  config.RaceConfig{CancelGrace: d(2)},
				Expect:   Expect{Kind: "cancellation_failed", Reason: "Content policy violation", ProducerCancelled: ptr(true)},
			},
		},
	}
}
