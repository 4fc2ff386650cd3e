package alerting

import (
	"fmt"
	"regexp"
	"strings"

	"decision-workers/internal/models"
)

type PatternKind int

const (
	PatternLiteral PatternKind = iota
	PatternWildcard
	PatternRegex
)

func (k PatternKind) String() string {
	switch k {
	case PatternWildcard:
		return "wildcard"
	case PatternRegex:
		return "regex"
	default:
		return "literal"
	}
}

// regexEdge are the characters that turn an entry into a regular expression when they
// open or close it. '*' is absent: a leading or trailing '*' is a wildcard.
const regexEdge = `^$.+?()[]{}|\`

// Pattern is one compiled entry of the ordered alert type-pattern list.
type Pattern struct {
	Raw      string
	Kind     PatternKind
	Severity models.Severity
	re       *regexp.Regexp
}

// CompilePattern classifies raw as literal, wildcard or regex and compiles it.
func CompilePattern(raw string, severity models.Severity) (Pattern, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Pattern{}, fmt.Errorf("empty alert pattern")
	}
	if !severity.Valid() {
		return Pattern{}, fmt.Errorf("pattern %q: invalid severity %q", raw, severity)
	}

	p := Pattern{Raw: raw, Severity: severity}

	switch {
	case strings.ContainsRune(regexEdge, rune(raw[0])) || strings.ContainsRune(regexEdge, rune(raw[len(raw)-1])):
		re, err := regexp.Compile(raw)
		if err != nil {
			return Pattern{}, fmt.Errorf("pattern %q: %w", raw, err)
		}
		p.Kind = PatternRegex
		p.re = re

	case strings.Contains(raw, "*"):
		parts := strings.Split(raw, "*")
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}
		p.Kind = PatternWildcard
		p.re = regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")

	default:
		p.Kind = PatternLiteral
	}

	return p, nil
}

// Match reports whether eventType satisfies the pattern. Regex entries are unanchored
// unless they anchor themselves.
func (p Pattern) Match(eventType string) bool {
	if p.Kind == PatternLiteral {
		return p.Raw == eventType
	}
	return p.re.MatchString(eventType)
}
