package adapters

import (
	"regexp"

	"github.com/ppiankov/trialmatch/internal/model"
)

var (
	bothSexes = regexp.MustCompile(`(?i)\b(?:male\s+(?:or|and)\s+female|female\s+(?:or|and)\s+male|men\s+(?:or|and)\s+women|women\s+(?:or|and)\s+men|both\s+sexes|all\s+genders|either\s+sex)\b`)

	femalePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:females?|women|woman|girls)\s+only\b`),
		regexp.MustCompile(`(?i)\bonly\s+(?:females?|women|woman|girls)\b`),
		regexp.MustCompile(`(?i)\bmust\s+be\s+(?:a\s+)?(?:female|woman)\b`),
		regexp.MustCompile(`(?i)\b(?:sex|gender)\s*[:=]\s*(?:female|f)\b`),
	}
	malePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:males?|men|man|boys)\s+only\b`),
		regexp.MustCompile(`(?i)\bonly\s+(?:males?|men|man|boys)\b`),
		regexp.MustCompile(`(?i)\bmust\s+be\s+(?:a\s+)?(?:male|man)\b`),
		regexp.MustCompile(`(?i)\b(?:sex|gender)\s*[:=]\s*(?:male|m)\b`),
	}

	// Populations that imply a sex without stating a restriction
	impliedFemale = regexp.MustCompile(`(?i)\b(?:pre|post|peri)-?menopausal\s+women\b`)
)

// SexAdapter extracts explicit sex restrictions
type SexAdapter struct {
	BaseAdapter
}

// NewSexAdapter creates a new sex adapter
func NewSexAdapter() *SexAdapter {
	return &SexAdapter{}
}

// Name returns the adapter name
func (a *SexAdapter) Name() string {
	return "sex"
}

// Extract returns at most one sex rule
func (a *SexAdapter) Extract(c Criterion) []model.EligibilityRule {
	if bothSexes.MatchString(c.Text) {
		return nil
	}

	female := matchesAny(femalePatterns, c.Text)
	male := matchesAny(malePatterns, c.Text)
	switch {
	case female && !male:
		return []model.EligibilityRule{a.Rule(c, model.FieldSex, model.OpEQ, "female")}
	case male && !female:
		return []model.EligibilityRule{a.Rule(c, model.FieldSex, model.OpEQ, "male")}
	case !female && !male && impliedFemale.MatchString(c.Text):
		rule := a.Rule(c, model.FieldSex, model.OpEQ, "female")
		rule.Certainty = model.CertaintyInferred
		return []model.EligibilityRule{rule}
	}
	return nil
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
