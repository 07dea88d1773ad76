package scenario

import (
	"github.com/ppiankov/guardrace/internal/config"
)

// GuardSpec describes the guard used by a case. Denylist uses the built-in
// content denylist instead of a fixed verdict.
type GuardSpec struct {
	Delay    config.Duration `yaml:"delay"`
	Verdict  string          `yaml:"verdict"` // "accept" or "reject"
	Reason   string          `yaml:"reason,omitempty"`
	Error    string          `yaml:"error,omitempty"`
	Panic    bool            `yaml:"panic,omitempty"`
	Denylist bool            `yaml:"denylist,omitempty"`
}

// ProducerSpec describes the simulated producer used by a case.
type ProducerSpec struct {
	Steps     int             `yaml:"steps"`
	StepDelay config.Duration `yaml:"step_delay"`
	Result    string          `yaml:"result"`
	Error     string          `yaml:"error,omitempty"`
	Linger    config.Duration `yaml:"linger,omitempty"`
}

// Expect is what a case asserts about the outcome. Empty fields are not
// checked.
type Expect struct {
	Kind              string          `yaml:"kind"`
	Content           string          `yaml:"content,omitempty"`
	Reason            string          `yaml:"reason,omitempty"`
	MaxElapsed        config.Duration `yaml:"max_elapsed,omitempty"`
	ProducerCancelled *bool           `yaml:"producer_cancelled,omitempty"`
}

// Case is one race within a scenario.
type Case struct {
	Name     string            `yaml:"name"`
	Prompt   string            `yaml:"prompt"`
	Guard    GuardSpec         `yaml:"guard"`
	Producer ProducerSpec      `yaml:"producer"`
	Options  config.RaceConfig `yaml:"options,omitempty"`
	Expect   Expect            `yaml:"expect"`
}

// Scenario is a named collection of race cases. Options apply to every case
// unless the case overrides them.
type Scenario struct {
	Name    string            `yaml:"name"`
	Options config.RaceConfig `yaml:"options,omitempty"`
	Cases   []Case            `yaml:"cases"`
}

// CaseResult is the outcome of running one case.
type CaseResult struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Detail    string `json:"detail,omitempty"`
	Failure   string `json:"failure,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario.
type RunResult struct {
	File   string       `json:"file,omitempty"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
