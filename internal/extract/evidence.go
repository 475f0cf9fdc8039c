package extract

import (
	"fmt"

	"github.com/ppiankov/trialmatch/internal/extract/adapters"
	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/segment"
	"github.com/ppiankov/trialmatch/internal/validate"
)

// enforceEvidence keeps the rules that satisfy the contract and cite a
// verbatim quote of text, fixing their offsets. Rejected rules are described
// in the returned diagnostics.
func enforceEvidence(rules []model.EligibilityRule, text string) ([]model.EligibilityRule, []string) {
	kept := make([]model.EligibilityRule, 0, len(rules))
	var diagnostics []string

	for i, r := range rules {
		if err := validate.Rule(r); err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("rejected rule %d (%s %s): %v", i, r.Field, r.Operator, err))
			continue
		}
		offset, err := validate.Evidence(r, text)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("rejected rule %d (%s %s): %v", i, r.Field, r.Operator, err))
			continue
		}
		r.EvidenceOffset = offset
		kept = append(kept, r)
	}

	return kept, diagnostics
}

// fillFallback adds one fallback rule for every sentence no rule cites
func fillFallback(rules []model.EligibilityRule, sentences []segment.Grouped) []model.EligibilityRule {
	for _, s := range sentences {
		if !covered(rules, s.Sentence) {
			rules = append(rules, adapters.Fallback(adapters.NewCriterion(s)))
		}
	}
	return rules
}

func covered(rules []model.EligibilityRule, s segment.Sentence) bool {
	end := s.Offset + len(s.Text)
	for _, r := range rules {
		if r.EvidenceOffset >= s.Offset && r.EvidenceOffset < end {
			return true
		}
	}
	return false
}
