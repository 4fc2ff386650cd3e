package alerting

import (
	"fmt"
	"sort"

	"decision-workers/internal/common/config"
	"decision-workers/internal/models"
	"decision-workers/pkg/registry"
)

// RuleFunc maps an event to a severity. Rules are pure: no I/O, no shared state.
type RuleFunc func(ev models.Event) (models.Severity, error)

// Registry holds the classifier's static configuration: rule functions by id, the exact
// event type → rule id table, the ordered pattern list and the monitored streams.
// It is built once and only read afterwards.
type Registry struct {
	rules    map[string]RuleFunc
	byType   map[string]string
	patterns []Pattern
	streams  map[string]struct{}
	order    []string
}

// NewRegistry returns an empty registry. Build is the usual constructor.
func NewRegistry() *Registry {
	return &Registry{
		rules:   make(map[string]RuleFunc),
		byType:  make(map[string]string),
		streams: make(map[string]struct{}),
	}
}

// RegisterRule adds a rule function under id. Ids are unique; registering one twice fails.
func (r *Registry) RegisterRule(id string, fn RuleFunc) error {
	if id == "" || fn == nil {
		return fmt.Errorf("rule id and function are required")
	}
	if _, exists := r.rules[id]; exists {
		return fmt.Errorf("rule %s already registered", id)
	}
	r.rules[id] = fn
	return nil
}

// Bind maps eventType to a registered rule. Rebinding replaces the previous rule.
func (r *Registry) Bind(eventType, ruleID string) error {
	if _, ok := r.rules[ruleID]; !ok {
		return fmt.Errorf("event type %s: unknown rule %s", eventType, ruleID)
	}
	r.byType[eventType] = ruleID
	return nil
}

// AddPattern compiles raw (literal, wildcard or regex) and appends it to the ordered
// pattern list.
func (r *Registry) AddPattern(raw string, severity models.Severity) error {
	p, err := CompilePattern(raw, severity)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, p)
	return nil
}

// AddStream adds a monitored stream name.
func (r *Registry) AddStream(name string) {
	if _, ok := r.streams[name]; ok {
		return
	}
	r.streams[name] = struct{}{}
	r.order = append(r.order, name)
}

// Lookup returns the rule bound to eventType.
func (r *Registry) Lookup(eventType string) (string, RuleFunc, bool) {
	id, ok := r.byType[eventType]
	if !ok {
		return "", nil, false
	}
	return id, r.rules[id], true
}

// MatchPattern returns the first pattern, in configured order, that matches eventType.
func (r *Registry) MatchPattern(eventType string) (Pattern, bool) {
	for _, p := range r.patterns {
		if p.Match(eventType) {
			return p, true
		}
	}
	return Pattern{}, false
}

// Monitors reports whether source is a monitored stream. An empty stream list monitors
// everything.
func (r *Registry) Monitors(source string) bool {
	if len(r.streams) == 0 {
		return true
	}
	_, ok := r.streams[source]
	return ok
}

func (r *Registry) Streams() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Patterns() []Pattern {
	return append([]Pattern(nil), r.patterns...)
}

// Bindings returns the exact-type table sorted by event type.
func (r *Registry) Bindings() []registry.RuleEntry {
	out := make([]registry.RuleEntry, 0, len(r.byType))
	for eventType, id := range r.byType {
		out = append(out, registry.RuleEntry{EventType: eventType, RuleID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventType < out[j].EventType })
	return out
}

// RuleIDs lists every registered rule id, sorted.
func (r *Registry) RuleIDs() []string {
	out := make([]string, 0, len(r.rules))
	for id := range r.rules {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Definition is the declarative part of a registry, from config or a registry file.
type Definition struct {
	Streams  []string
	Patterns []registry.PatternEntry
	Rules    []registry.RuleEntry
}

func DefinitionFromConfig(cfg config.AlertsConfig) Definition {
	def := Definition{Streams: cfg.Streams}
	for _, p := range cfg.Patterns {
		def.Patterns = append(def.Patterns, registry.PatternEntry{Pattern: p.Pattern, Severity: p.Severity})
	}
	for _, r := range cfg.Rules {
		def.Rules = append(def.Rules, registry.RuleEntry{EventType: r.EventType, RuleID: r.RuleID})
	}
	return def
}

func DefinitionFromFile(reg *registry.RuleRegistry) Definition {
	return Definition{
		Streams:  reg.Streams,
		Patterns: reg.Patterns,
		Rules:    reg.Rules,
	}
}

// Merge overlays other on def: streams and patterns are replaced when other has any,
// rule bindings are appended (later bindings win).
func (def Definition) Merge(other Definition) Definition {
	out := def
	if len(other.Streams) > 0 {
		out.Streams = other.Streams
	}
	if len(other.Patterns) > 0 {
		out.Patterns = other.Patterns
	}
	out.Rules = append(append([]registry.RuleEntry(nil), def.Rules...), other.Rules...)
	return out
}

// Build registers the built-in rules and their default bindings, then applies def.
func Build(def Definition) (*Registry, error) {
	r := NewRegistry()
	for _, b := range builtinRules {
		if err := r.RegisterRule(b.id, b.fn); err != nil {
			return nil, err
		}
		if err := r.Bind(b.eventType, b.id); err != nil {
			return nil, err
		}
	}

	for _, s := range def.Streams {
		if s == "" {
			return nil, fmt.Errorf("empty stream name")
		}
		r.AddStream(s)
	}

	for _, p := range def.Patterns {
		sev := models.SeverityMedium
		if p.Severity != "" {
			parsed, err := models.ParseSeverity(p.Severity)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", p.Pattern, err)
			}
			sev = parsed
		}
		if err := r.AddPattern(p.Pattern, sev); err != nil {
			return nil, err
		}
	}

	for _, b := range def.Rules {
		if err := r.Bind(b.EventType, b.RuleID); err != nil {
			return nil, err
		}
	}

	return r, nil
}
