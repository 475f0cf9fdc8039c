// Package adapters holds the per-category criterion extractors used by the
// pattern parser backend.
package adapters

import (
	"regexp"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/segment"
)

// Criterion is one sentence handed to the adapters with its effective polarity
type Criterion struct {
	Text     string
	Offset   int
	Polarity model.Polarity
}

// NewCriterion resolves a segmented sentence into a criterion
func NewCriterion(g segment.Grouped) Criterion {
	return Criterion{Text: g.Text, Offset: g.Offset, Polarity: g.Resolved()}
}

// Adapter defines the interface for category-specific extractors
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// Extract returns the rules this adapter recognizes in the criterion.
	// Adapters never fail; an unrecognized criterion yields no rules.
	Extract(c Criterion) []model.EligibilityRule
}

// Registry manages category adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a registry with the built-in adapters
func NewRegistry() *Registry {
	registry := &Registry{
		adapters: make([]Adapter, 0),
	}

	// Register built-in adapters
	registry.Register(NewAgeAdapter())
	registry.Register(NewSexAdapter())
	registry.Register(NewLabAdapter())
	registry.Register(NewTermAdapter())

	// Set generic adapter as fallback
	registry.generic = NewGenericAdapter()

	return registry
}

// Register registers a new adapter
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// Names lists registered adapters in application order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return names
}

// Extract applies every adapter to the criterion and concatenates their rules.
// A criterion no adapter recognizes yields the generic fallback rule.
func (r *Registry) Extract(c Criterion) []model.EligibilityRule {
	var rules []model.EligibilityRule
	for _, adapter := range r.adapters {
		rules = append(rules, adapter.Extract(c)...)
	}
	if len(rules) == 0 {
		return r.generic.Extract(c)
	}
	return rules
}

// BaseAdapter provides common functionality for adapters
type BaseAdapter struct{}

// Rule builds an explicit rule citing the criterion sentence
func (b *BaseAdapter) Rule(c Criterion, field model.Field, op model.Operator, value ...string) model.EligibilityRule {
	return model.EligibilityRule{
		Polarity:       c.Polarity,
		Field:          field,
		Operator:       op,
		Value:          model.Value(value),
		EvidenceText:   c.Text,
		EvidenceOffset: c.Offset,
		Certainty:      model.CertaintyExplicit,
	}
}

// span is a byte range inside a criterion
type span struct{ start, end int }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// Clause returns the part of text before i that belongs to the same clause
func (b *BaseAdapter) Clause(text string, i int) string {
	prefix := text[:i]
	if j := strings.LastIndexAny(prefix, ";:"); j >= 0 {
		prefix = prefix[j+1:]
	}
	return prefix
}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

const numberWordPattern = `one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve`

var wsPattern = regexp.MustCompile(`\s+`)

// squash collapses whitespace in a matched fragment
func squash(s string) string {
	return wsPattern.ReplaceAllString(strings.TrimSpace(s), " ")
}
