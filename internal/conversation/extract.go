package conversation

import (
	"regexp"
	"strings"
)

// Extractor pulls list items out of an assistant output block.
type Extractor interface {
	Name() string
	Extract(text string) []string
}

// DefaultExtractors is the ordered strategy list. The first strategy that yields at least
// one item wins.
var DefaultExtractors = []Extractor{
	lineExtractor{name: "numbered", re: regexp.MustCompile(`^\s*\d{1,3}[.)]\s+(.+)$`)},
	lineExtractor{name: "bullets", re: regexp.MustCompile(`^\s*(?:[-*]|•)\s+(.+)$`)},
	sentenceExtractor{},
	fallbackExtractor{minLength: 10},
}

// ExtractItems runs extractors in order over text.
func ExtractItems(text string, extractors []Extractor) []string {
	for _, ex := range extractors {
		if items := ex.Extract(text); len(items) > 0 {
			return items
		}
	}
	return nil
}

type lineExtractor struct {
	name string
	re   *regexp.Regexp
}

func (e lineExtractor) Name() string { return e.name }

func (e lineExtractor) Extract(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		m := e.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if item := cleanItem(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// sentenceExtractor takes whole lines that end a sentence.
type sentenceExtractor struct{}

func (sentenceExtractor) Name() string { return "sentences" }

func (sentenceExtractor) Extract(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || hasBoilerplatePrefix(line) {
			continue
		}
		if strings.HasSuffix(line, ".") || strings.HasSuffix(line, "!") || strings.HasSuffix(line, "?") {
			if item := cleanItem(line); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}

// fallbackExtractor keeps every substantive line.
type fallbackExtractor struct {
	minLength int
}

func (fallbackExtractor) Name() string { return "fallback" }

func (e fallbackExtractor) Extract(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = cleanItem(line)
		if len(line) <= e.minLength || hasBoilerplatePrefix(line) {
			continue
		}
		items = append(items, line)
	}
	return items
}

var boilerplatePrefixes = []string{
	"here are",
	"here is",
	"based on",
	"i recommend",
	"i suggest",
	"recommendations",
	"recommended actions",
	"next steps",
	"in summary",
	"to summarize",
	"note:",
	"let me know",
}

func hasBoilerplatePrefix(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, p := range boilerplatePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func cleanItem(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.Trim(strings.TrimSpace(s), "*_`")
	return strings.TrimSpace(s)
}
