package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuiltinPasses(t *testing.T) {
	result := Run(context.Background(), Builtin())
	if result.Failed != 0 {
		t.Fatalf("builtin scenario failed:\n%s", FormatText([]*RunResult{result}))
	}
	if result.Passed != len(Builtin().Cases) {
		t.Errorf("expected all cases to pass, got %d", result.Passed)
	}
}

func TestLoadAndRunFromYAML(t *testing.T) {
	path := writeScenario(t, `
name: yaml races
options:
  cancel_grace: 500ms
cases:
  - name: quick accept
    guard: {delay: 10ms, verdict: accept}
    producer: {steps: 2, step_delay: 10ms, result: ok}
    expect: {kind: completed, content: ok, max_elapsed: 500ms}
  - name: producer error after accept
    guard: {verdict: accept}
    producer: {steps: 1, step_delay: 10ms, error: model overloaded}
    expect: {kind: producer_failed}
  - name: panicking guard
    guard: {panic: true}
    producer: {steps: 50, step_delay: 10ms}
    expect: {kind: guard_failed, producer_cancelled: true}
`)

	result, err := LoadAndRun(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if result.File != path || result.Name != "yaml races" {
		t.Errorf("unexpected result header: %+v", result)
	}
	if result.Failed != 0 {
		t.Fatalf("expected all cases to pass:\n%s", FormatText([]*RunResult{result}))
	}
	if result.Cases[1].Detail == "" || !strings.Contains(result.Cases[1].Detail, "model overloaded") {
		t.Errorf("expected producer error in detail, got %q", result.Cases[1].Detail)
	}
}

func TestFailedExpectationDetected(t *testing.T) {
	s := &Scenario{
		Name: "wrong expectation",
		Cases: []Case{{
			Name:     "expects completion but guard rejects",
			Guard:    GuardSpec{Verdict: "reject", Reason: "no"},
			Producer: ProducerSpec{Steps: 5, StepDelay: d(0), Result: "x"},
			Expect:   Expect{Kind: "completed"},
		}},
	}

	result := Run(context.Background(), s)
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", result.Failed)
	}
	if !strings.Contains(result.Cases[0].Failure, "expected completed, got blocked") {
		t.Errorf("unexpected failure message %q", result.Cases[0].Failure)
	}

	text := FormatText([]*RunResult{result})
	if !strings.Contains(text, "FAIL") || !strings.Contains(text, "1 of 1 scenarios failed") {
		t.Errorf("unexpected text output:\n%s", text)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeScenario(t, "name: empty\ncases: []\n")); err == nil {
		t.Error("expected error for scenario without cases")
	}
	if _, err := Load(writeScenario(t, "cases: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON([]*RunResult{{Name: "x", Total: 1, Passed: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "x"`) {
		t.Errorf("unexpected json: %s", out)
	}
}
