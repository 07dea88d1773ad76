package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/guardrace/internal/config"
	"github.com/ppiankov/guardrace/internal/guard"
	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/producer"
	"github.com/ppiankov/guardrace/internal/race"
)

// Run executes every case of s through race.Run. Cases are independent and
// run one after another so elapsed times are not skewed.
func Run(ctx context.Context, s *Scenario) *RunResult {
	result := &RunResult{Name: s.Name, Total: len(s.Cases)}

	for i, c := range s.Cases {
		cr := runCase(ctx, i+1, c, mergeOptions(s.Options, c.Options))
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}
	return result
}

func runCase(ctx context.Context, index int, c Case, opts race.Options) CaseResult {
	p := &producer.Steps{
		Steps:  c.Producer.Steps,
		Delay:  c.Producer.StepDelay.Std(),
		Result: c.Producer.Result,
		Linger: c.Producer.Linger.Std(),
	}
	if c.Producer.Error != "" {
		p.Err = errors.New(c.Producer.Error)
	}

	prompt := c.Prompt
	if prompt == "" {
		prompt = c.Name
	}
	out := race.Run(ctx, model.NewRequest(prompt, ""), buildGuard(c.Guard), producer.Producer(p), opts)

	cr := CaseResult{
		Index:     index,
		Name:      c.Name,
		Expected:  strings.ToLower(c.Expect.Kind),
		Actual:    string(out.Kind),
		ElapsedMS: out.Elapsed.Milliseconds(),
	}
	switch {
	case out.OK():
		cr.Detail = out.Artifact.Content
	case out.Reason != "":
		cr.Detail = out.Reason
	case out.Err != nil:
		cr.Detail = out.Err.Error()
	}

	cr.Failure = check(c.Expect, out)
	cr.Passed = cr.Failure == ""
	return cr
}

func check(e Expect, out race.Outcome[model.Artifact]) string {
	if !strings.EqualFold(e.Kind, string(out.Kind)) {
		return fmt.Sprintf("expected %s, got %s", e.Kind, out.Kind)
	}
	if e.Content != "" && out.Artifact.Content != e.Content {
		return fmt.Sprintf("expected content %q, got %q", e.Content, out.Artifact.Content)
	}
	if e.Reason != "" && !strings.Contains(out.Reason, e.Reason) {
		return fmt.Sprintf("expected reason containing %q, got %q", e.Reason, out.Reason)
	}
	if max := e.MaxElapsed.Std(); max > 0 && out.Elapsed > max {
		return fmt.Sprintf("elapsed %s exceeds %s", out.Elapsed.Round(time.Millisecond), max)
	}
	if e.ProducerCancelled != nil && *e.ProducerCancelled != out.ProducerCancelled {
		return fmt.Sprintf("expected producer_cancelled=%t, got %t", *e.ProducerCancelled, out.ProducerCancelled)
	}
	return ""
}

func buildGuard(g GuardSpec) guard.Guard {
	if g.Denylist {
		return guard.NewDenylist(nil)
	}
	if g.Panic {
		return race.GuardFunc[model.Request](func(ctx context.Context, _ model.Request) (race.Verdict, error) {
			panic("guard panicked")
		})
	}
	f := guard.Fixed{Delay: g.Delay.Std(), Verdict: race.Accept()}
	if strings.EqualFold(g.Verdict, "reject") {
		f.Verdict = race.Reject(g.Reason)
	}
	if g.Error != "" {
		f.Err = errors.New(g.Error)
	}
	return f
}

func mergeOptions(base, override config.RaceConfig) race.Options {
	if override.GuardTimeout != 0 {
		base.GuardTimeout = override.GuardTimeout
	}
	if override.ProducerTimeout != 0 {
		base.ProducerTimeout = override.ProducerTimeout
	}
	if override.CancelGrace != 0 {
		base.CancelGrace = override.CancelGrace
	}
	return base.Options()
}

// Load parses a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if len(s.Cases) == 0 {
		return nil, fmt.Errorf("scenario %s: no cases", path)
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and runs it.
func LoadAndRun(ctx context.Context, path string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result := Run(ctx, s)
	result.File = path
	return result, nil
}
