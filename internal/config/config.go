// Package config loads the guardrace YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/guardrace/internal/alert"
	"github.com/ppiankov/guardrace/internal/race"
)

// Producer kinds.
const (
	ProducerOpenAI  = "openai"
	ProducerBedrock = "bedrock"
	ProducerSteps   = "steps"
)

// Duration is a time.Duration written as a Go duration string in YAML ("750ms").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RaceConfig bounds one guarded generation.
type RaceConfig struct {
	GuardTimeout    Duration `yaml:"guard_timeout"`
	ProducerTimeout Duration `yaml:"producer_timeout"`
	CancelGrace     Duration `yaml:"cancel_grace"`
}

// Options converts the config into race options.
func (r RaceConfig) Options() race.Options {
	return race.Options{
		GuardTimeout:    r.GuardTimeout.Std(),
		ProducerTimeout: r.ProducerTimeout.Std(),
		CancelGrace:     r.CancelGrace.Std(),
	}
}

// JudgeConfig enables the LLM content judge. Empty APIURL disables it.
type JudgeConfig struct {
	APIURL    string `yaml:"api_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// RateLimitConfig caps how many requests the guard accepts per window.
// Zero values disable it.
type RateLimitConfig struct {
	MaxRequests int      `yaml:"max_requests"`
	Window      Duration `yaml:"window"`
}

// GuardConfig selects the guards chained in front of every request.
type GuardConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Denylist  string          `yaml:"denylist"`
	Judge     JudgeConfig     `yaml:"judge"`
}

// ProducerConfig selects and configures the producer.
type ProducerConfig struct {
	Kind      string   `yaml:"kind"`
	APIURL    string   `yaml:"api_url"`
	Model     string   `yaml:"model"`
	APIKeyEnv string   `yaml:"api_key_env"`
	MaxTokens int      `yaml:"max_tokens"`
	Region    string   `yaml:"region"`
	Retries   int      `yaml:"retries"`
	Steps     int      `yaml:"steps"`
	StepDelay Duration `yaml:"step_delay"`
}

// AuditConfig locates the audit log. Empty path disables auditing.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig locates the run history database. Empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Config is the full guardrace configuration.
type Config struct {
	Race     RaceConfig          `yaml:"race"`
	Guard    GuardConfig         `yaml:"guard"`
	Producer ProducerConfig      `yaml:"producer"`
	Audit    AuditConfig         `yaml:"audit"`
	Store    StoreConfig         `yaml:"store"`
	Alerts   []alert.AlertConfig `yaml:"alerts"`
}

// DefaultConfig returns the built-in configuration: a local Ollama producer,
// the default denylist and a 2s guard budget.
func DefaultConfig() *Config {
	return &Config{
		Race: RaceConfig{
			GuardTimeout:    Duration(2 * time.Second),
			ProducerTimeout: Duration(2 * time.Minute),
			CancelGrace:     Duration(race.DefaultCancelGrace),
		},
		Producer: ProducerConfig{
			Kind:      ProducerOpenAI,
			APIURL:    "http://localhost:11434/v1/chat/completions",
			Model:     "llama3.2",
			APIKeyEnv: "GUARDRACE_API_KEY",
			MaxTokens: 1024,
			Retries:   1,
			Steps:     20,
			StepDelay: Duration(100 * time.Millisecond),
		},
		Audit: AuditConfig{Path: filepath.Join(Dir(), "audit.jsonl")},
		Store: StoreConfig{Path: filepath.Join(Dir(), "runs.db")},
	}
}

// Dir returns ~/.guardrace, or ".guardrace" when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guardrace"
	}
	return filepath.Join(home, ".guardrace")
}

// DefaultPath returns ~/.guardrace/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads configuration from a YAML file.
// Empty path falls back to ~/.guardrace/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns the SHA-256 of the raw bytes
// on disk. When no file exists the hash is that of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashOf(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, hashOf(data), nil
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Validate rejects configurations the gate cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Race.GuardTimeout < 0 || c.Race.ProducerTimeout < 0 || c.Race.CancelGrace < 0 {
		errs = append(errs, errors.New("race timeouts must not be negative"))
	}
	if rl := c.Guard.RateLimit; rl.MaxRequests < 0 || rl.Window < 0 {
		errs = append(errs, errors.New("guard.rate_limit values must not be negative"))
	}
	switch c.Producer.Kind {
	case ProducerOpenAI:
		if c.Producer.APIURL == "" {
			errs = append(errs, errors.New("producer.api_url is required for openai producer"))
		}
	case ProducerBedrock:
		if c.Producer.Model == "" {
			errs = append(errs, errors.New("producer.model is required for bedrock producer"))
		}
	case ProducerSteps:
		if c.Producer.Steps < 1 {
			errs = append(errs, errors.New("producer.steps must be at least 1"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown producer kind %q", c.Producer.Kind))
	}
	for i, a := range c.Alerts {
		if a.URL == "" {
			errs = append(errs, fmt.Errorf("alerts[%d]: url is required", i))
		}
	}
	return errors.Join(errs...)
}

// APIKey resolves an API key from the named environment variable.
func APIKey(env string) string {
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}
