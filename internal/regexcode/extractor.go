// Package regexcode extracts a registry code (BPOM/PIRT style identifier)
// from free text via a configurable set of regular expressions, with a
// blacklist for obviously-fake samples ("DEMO", "SAMPLE") and a confidence
// score derived from match length.
package regexcode

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAllowPrefix lists the code prefixes Extract accepts a match
// under; a pattern match whose text doesn't start with one of these is
// rejected even if the pattern itself matched (guards against a loose
// pattern accepting an unrelated numeric string).
var DefaultAllowPrefix = []string{"DKL", "DBL", "DKI", "ML", "MD", "BPOM", "PIRT", "P-IRT"}

// DefaultPatterns is the built-in pattern set, checked in order.
var DefaultPatterns = []string{
	`(?:DKL|DBL|DKI)\d{8,14}`,
	`(?:ML|MD)\d{12,15}`,
	`BPOM(?:RI)?(?:ML|MD)\d{12,15}`,
	`P-?IRT\d{12,17}`,
}

// DefaultBlacklist flags text that should never be treated as a real code
// regardless of pattern match, e.g. packaging samples and demo labels.
var DefaultBlacklist = []string{`(?i)SAMPLE`, `(?i)DEMO`}

// fileConfig is the YAML shape Extract's configuration file follows.
type fileConfig struct {
	AllowPrefix []string `yaml:"allow_prefix"`
	Patterns    []string `yaml:"patterns"`
	Blacklist   []string `yaml:"blacklist"`
}

// Match is a successful extraction.
type Match struct {
	Code       string
	Confidence float64
	PatternID  string
}

// Extractor matches registry codes out of free text using a compiled
// pattern/blacklist/allow-prefix set.
type Extractor struct {
	allowPrefix []string
	patterns    []*regexp.Regexp
	blacklist   []*regexp.Regexp
}

// NewDefault builds an Extractor from the built-in pattern set.
func NewDefault() *Extractor {
	ex, _ := build(DefaultAllowPrefix, DefaultPatterns, DefaultBlacklist)
	return ex
}

// LoadConfig builds an Extractor from a YAML file at path. Any failure to
// read or parse the file — missing file, invalid YAML, invalid regex — is
// logged to stderr and falls back to NewDefault, matching the reference
// validator's "never let a config problem take the scanner down" posture.
func LoadConfig(path string) *Extractor {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "regexcode: load %s failed: %v — using defaults\n", path, err)
		return NewDefault()
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "regexcode: parse %s failed: %v — using defaults\n", path, err)
		return NewDefault()
	}

	allowPrefix := cfg.AllowPrefix
	if allowPrefix == nil {
		allowPrefix = DefaultAllowPrefix
	}
	patterns := cfg.Patterns
	if patterns == nil {
		patterns = DefaultPatterns
	}
	blacklist := cfg.Blacklist
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}

	ex, err := build(allowPrefix, patterns, blacklist)
	if err != nil {
		fmt.Fprintf(os.Stderr, "regexcode: compile patterns from %s failed: %v — using defaults\n", path, err)
		return NewDefault()
	}
	return ex
}

func build(allowPrefix, patterns, blacklist []string) (*Extractor, error) {
	compiledPatterns := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		compiledPatterns = append(compiledPatterns, re)
	}

	compiledBlacklist := make([]*regexp.Regexp, 0, len(blacklist))
	for _, p := range blacklist {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile blacklist pattern %q: %w", p, err)
		}
		compiledBlacklist = append(compiledBlacklist, re)
	}

	return &Extractor{
		allowPrefix: allowPrefix,
		patterns:    compiledPatterns,
		blacklist:   compiledBlacklist,
	}, nil
}

// Extract searches text for a registry code. It returns ok=false if
// nothing matched, or if the text is blacklisted.
func (e *Extractor) Extract(text string) (Match, bool) {
	s := strings.ToUpper(strings.ReplaceAll(text, " ", ""))

	for _, bl := range e.blacklist {
		if bl.MatchString(s) {
			return Match{}, false
		}
	}

	for i, pat := range e.patterns {
		loc := pat.FindString(s)
		if loc == "" {
			continue
		}
		if len(e.allowPrefix) > 0 && !hasAnyPrefix(loc, e.allowPrefix) {
			continue
		}
		conf := 0.6 + 0.02*float64(len(loc))
		if conf > 0.99 {
			conf = 0.99
		}
		return Match{Code: loc, Confidence: conf, PatternID: fmt.Sprintf("pat_%d", i)}, true
	}

	return Match{}, false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
