package denylist

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Patterns holds the raw pattern strings organized by category.
type Patterns struct {
	Phrases []string `yaml:"phrases"`
	Globs   []string `yaml:"globs"`
	Regexes []string `yaml:"regexes"`
}

// Denylist holds compiled patterns for fast matching against prompt text.
type Denylist struct {
	phrases []string // substring matching (case-insensitive)
	globs   []*regexp.Regexp
	regexes []*regexp.Regexp
	raw     Patterns
}

// New creates a Denylist from raw patterns. Patterns that fail to compile
// are skipped; use Compile for patterns read from user files.
func New(p Patterns) *Denylist {
	d, _ := build(p, false)
	return d
}

// Compile creates a Denylist and fails on the first glob or regex that does
// not compile, so a typo cannot silently disable a rule.
func Compile(p Patterns) (*Denylist, error) {
	return build(p, true)
}

func build(p Patterns, strict bool) (*Denylist, error) {
	d := &Denylist{raw: p}

	for _, ph := range p.Phrases {
		d.phrases = append(d.phrases, strings.ToLower(ph))
	}
	for _, g := range p.Globs {
		compiled, err := regexp.Compile("(?i)" + globToRegex(g))
		if err != nil {
			if strict {
				return nil, fmt.Errorf("compile glob %q: %w", g, err)
			}
			continue
		}
		d.globs = append(d.globs, compiled)
	}
	for _, r := range p.Regexes {
		compiled, err := regexp.Compile("(?i)" + r)
		if err != nil {
			if strict {
				return nil, fmt.Errorf("compile regex %q: %w", r, err)
			}
			continue
		}
		d.regexes = append(d.regexes, compiled)
	}

	return d, nil
}

// NewDefault creates a Denylist with the built-in patterns.
func NewDefault() *Denylist {
	return New(DefaultPatterns)
}

// DefaultPath returns ~/.guardrace/denylist.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".guardrace", "denylist.yaml")
}

// Load reads a denylist from a YAML file. Falls back to defaults if the file
// doesn't exist. Empty path means DefaultPath.
func Load(path string) (*Denylist, error) {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return NewDefault(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, fmt.Errorf("read denylist: %w", err)
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse denylist: %w", err)
	}

	d, err := Compile(p)
	if err != nil {
		return nil, fmt.Errorf("denylist %s: %w", path, err)
	}
	return d, nil
}

// IsBlocked checks text against every category. Returns (blocked, reason).
func (d *Denylist) IsBlocked(text string) (bool, string) {
	lower := strings.ToLower(text)

	for _, ph := range d.phrases {
		if ph != "" && strings.Contains(lower, ph) {
			return true, "phrase blocked: " + ph
		}
	}

	for _, re := range d.globs {
		if re.MatchString(lower) {
			return true, "pattern blocked: " + re.String()
		}
	}

	for _, re := range d.regexes {
		if re.MatchString(text) {
			return true, "regex blocked: " + re.String()
		}
	}

	// Structural instruction-override detection
	if isInstructionOverride(lower) {
		return true, "instruction override detected"
	}

	return false, ""
}

// ToMap returns the raw patterns as a map for serialization.
func (d *Denylist) ToMap() map[string]any {
	return map[string]any{
		"phrases": d.raw.Phrases,
		"globs":   d.raw.Globs,
		"regexes": d.raw.Regexes,
	}
}

// Len returns the number of active patterns.
func (d *Denylist) Len() int {
	return len(d.phrases) + len(d.globs) + len(d.regexes)
}

// globToRegex converts a simple glob-like pattern to a regex.
// * matches within a sentence, ** matches across anything.
func globToRegex(pattern string) string {
	escaped := regexp.QuoteMeta(strings.ToLower(pattern))
	escaped = strings.ReplaceAll(escaped, `\*\*`, ".*")
	escaped = strings.ReplaceAll(escaped, `\*`, "[^.!?\n]*")
	return escaped
}

// isInstructionOverride detects "ignore ... previous/prior/above ... instructions"
// style attempts to override the system prompt.
func isInstructionOverride(text string) bool {
	verbs := []string{"ignore", "disregard", "forget"}
	scopes := []string{"previous", "prior", "above", "earlier", "all"}
	targets := []string{"instructions", "rules", "system prompt", "guidelines"}

	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		if containsAny(sentence, verbs) && containsAny(sentence, scopes) && containsAny(sentence, targets) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
