package adapters

import (
	"github.com/ppiankov/trialmatch/internal/model"
)

// GenericAdapter is the fallback for criteria no category adapter recognizes.
// It keeps the sentence as an evidence-only "other" rule so nothing is lost.
type GenericAdapter struct {
	BaseAdapter
}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// Extract always returns exactly one fallback rule
func (a *GenericAdapter) Extract(c Criterion) []model.EligibilityRule {
	return []model.EligibilityRule{Fallback(c)}
}

// Fallback builds the placeholder rule for an unparseable criterion
func Fallback(c Criterion) model.EligibilityRule {
	return model.EligibilityRule{
		Polarity:       c.Polarity,
		Field:          model.FieldOther,
		Operator:       model.OpExists,
		EvidenceText:   c.Text,
		EvidenceOffset: c.Offset,
	}
}
