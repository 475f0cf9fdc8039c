package extract

import (
	"context"

	"github.com/ppiankov/trialmatch/internal/extract/adapters"
	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/segment"
)

// PatternIdentity versions the pattern ruleset. Bump it whenever adapter
// behavior changes so stored rule sets stay comparable.
const PatternIdentity = "pattern/v1"

// PatternBackend is the deterministic, vocabulary and regex based parser
type PatternBackend struct {
	registry *adapters.Registry
}

// NewPatternBackend creates a pattern backend with the built-in adapters
func NewPatternBackend() *PatternBackend {
	return &PatternBackend{registry: adapters.NewRegistry()}
}

// Identity returns the parser identity stamped on every rule
func (p *PatternBackend) Identity() string {
	return PatternIdentity
}

// Parse runs every adapter over every sentence. It never fails.
func (p *PatternBackend) Parse(_ context.Context, segs segment.Segments) ([]model.EligibilityRule, []string, error) {
	var rules []model.EligibilityRule
	for _, s := range segs.Sentences() {
		rules = append(rules, p.registry.Extract(adapters.NewCriterion(s))...)
	}
	return rules, nil, nil
}
