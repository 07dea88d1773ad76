package denylist

// DefaultPatterns contains the built-in content patterns.
// These cover requests that are never worth spending a generation on.
var DefaultPatterns = Patterns{
	Phrases: []string{
		"violates policy",
		"build a bomb",
		"make a pipe bomb",
		"synthesize nerve agent",
		"write ransomware",
		"credit card dump",
		"steal credentials",
		"bypass the paywall",
		"jailbreak mode",
		"developer mode enabled",
	},
	Globs: []string{
		"how to make * explosive*",
		"generate * malware*",
		"write a keylogger*",
		"** without getting caught",
	},
	Regexes: []string{
		`\b(?:\d[ -]?){13,16}\b`,       // payment card numbers
		`\b\d{3}-\d{2}-\d{4}\b`,        // US SSN
		`AKIA[0-9A-Z]{16}`,             // AWS access key id
		`-----BEGIN [A-Z ]*PRIVATE KEY`, // pasted private keys
	},
}
