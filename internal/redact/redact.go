// Package redact masks sensitive values in prompt text before it is kept in
// run history.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// PatternType identifies the category of sensitive data.
type PatternType string

const (
	PatternCred  PatternType = "CRED"
	PatternKey   PatternType = "KEY"
	PatternEmail PatternType = "EMAIL"
	PatternIP    PatternType = "IP"
	PatternPath  PatternType = "PATH"
	PatternCard  PatternType = "CARD"
)

// Match is a single occurrence of sensitive data in text.
type Match struct {
	Type  PatternType
	Value string
	Start int
	End   int
}

type pattern struct {
	typ PatternType
	re  *regexp.Regexp
}

// Order matters: earlier patterns claim overlapping spans first.
var patterns = []pattern{
	{PatternKey, regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?(?:-----END [A-Z ]*PRIVATE KEY-----|$)`)},
	{PatternKey, regexp.MustCompile(`\b(?:AKIA[0-9A-Z]{16}|sk-[A-Za-z0-9_\-]{20,}|gh[pousr]_[A-Za-z0-9]{30,})\b`)},
	{PatternCred, regexp.MustCompile(`(?i)\b(?:password|passwd|secret|token|api_key|apikey|auth)[ \t]*[=:][ \t]*\S+`)},
	{PatternEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)},
	{PatternCard, regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{PatternIP, regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
	{PatternPath, regexp.MustCompile(`/(?:home|root|Users)/[^\s/]+`)},
}

// Scan returns non-overlapping matches ordered by position.
func Scan(text string) []Match {
	var found []Match
	taken := func(start, end int) bool {
		for _, m := range found {
			if start < m.End && end > m.Start {
				return true
			}
		}
		return false
	}

	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if taken(loc[0], loc[1]) {
				continue
			}
			found = append(found, Match{Type: p.typ, Value: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Start < found[j].Start })
	return found
}

// Mask replaces every match with a <TYPE> placeholder.
func Mask(text string) string {
	matches := Scan(text)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString("<" + string(m.Type) + ">")
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Preview masks text, collapses whitespace and cuts it to at most max runes.
func Preview(text string, max int) string {
	s := strings.Join(strings.Fields(Mask(text)), " ")
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
