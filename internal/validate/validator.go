// Package validate checks eligibility rules against the shared rule contract.
// The parser uses it to reject bad backend output and the matching engine uses
// it to flag malformed stored rules.
package validate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
)

var (
	// ErrMalformed marks a rule outside the closed enumerations or the field/operator table
	ErrMalformed = errors.New("malformed rule")

	// ErrEvidence marks a rule whose evidence is empty or not a verbatim quote
	ErrEvidence = errors.New("evidence not found in source text")
)

// allowedOperators is the field/operator compatibility table
var allowedOperators = map[model.Field][]model.Operator{
	model.FieldAge:        {model.OpGTE, model.OpLTE, model.OpEQ},
	model.FieldSex:        {model.OpEQ, model.OpIn},
	model.FieldCondition:  {model.OpIn, model.OpNotIn, model.OpExists, model.OpNotExists},
	model.FieldMedication: {model.OpIn, model.OpNotIn, model.OpExists, model.OpNotExists, model.OpWithinLast},
	model.FieldLab:        {model.OpGTE, model.OpLTE, model.OpEQ},
	model.FieldProcedure:  {model.OpIn, model.OpNotIn, model.OpExists, model.OpNotExists, model.OpWithinLast},
	model.FieldHistory:    {model.OpIn, model.OpNotIn, model.OpNoHistory, model.OpExists, model.OpNotExists, model.OpWithinLast},
	model.FieldOther:      {model.OpExists},
}

// Allowed reports whether op may be used with field
func Allowed(field model.Field, op model.Operator) bool {
	for _, allowed := range allowedOperators[field] {
		if allowed == op {
			return true
		}
	}
	return false
}

// Rule checks one rule. Every problem found is joined into the returned error,
// which wraps ErrMalformed or ErrEvidence.
func Rule(r model.EligibilityRule) error {
	var errs []error
	malformed := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...)))
	}

	if strings.TrimSpace(r.EvidenceText) == "" {
		errs = append(errs, fmt.Errorf("%w: empty evidence_text", ErrEvidence))
	}
	if !r.Polarity.Valid() {
		malformed("unknown polarity %q", r.Polarity)
	}
	if !r.Field.Valid() {
		malformed("unknown field %q", r.Field)
	}
	if !r.Operator.Valid() {
		malformed("unknown operator %q", r.Operator)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if !Allowed(r.Field, r.Operator) {
		malformed("operator %s not allowed for field %s", r.Operator, r.Field)
	}

	if r.Field != model.FieldOther && len(nonBlank(r.Value)) == 0 {
		malformed("empty value for field %s", r.Field)
	}

	if r.Operator.Numeric() && len(r.Value) > 0 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(r.Value.Scalar()), 64); err != nil {
			malformed("non-numeric value %q for operator %s", r.Value.Scalar(), r.Operator)
		}
	}

	if r.Field == model.FieldSex {
		for _, v := range r.Value {
			if s := strings.ToLower(strings.TrimSpace(v)); s != "male" && s != "female" {
				malformed("unknown sex %q", v)
			}
		}
	}

	if r.Operator == model.OpWithinLast {
		if _, err := model.ParseTimeWindow(r.TimeWindow); err != nil {
			malformed("%v", err)
		}
	}

	if r.Certainty != "" && r.Certainty != model.CertaintyExplicit && r.Certainty != model.CertaintyInferred {
		malformed("unknown certainty %q", r.Certainty)
	}

	return errors.Join(errs...)
}

// Evidence locates a rule's evidence in the source text. It returns the byte
// offset of the verbatim quote, preferring the rule's own offset when it
// already points at the quote.
func Evidence(r model.EligibilityRule, text string) (int, error) {
	quote := r.EvidenceText
	if strings.TrimSpace(quote) == "" {
		return 0, fmt.Errorf("%w: empty evidence_text", ErrEvidence)
	}
	if r.EvidenceOffset >= 0 && r.EvidenceOffset+len(quote) <= len(text) &&
		text[r.EvidenceOffset:r.EvidenceOffset+len(quote)] == quote {
		return r.EvidenceOffset, nil
	}
	if i := strings.Index(text, quote); i >= 0 {
		return i, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrEvidence, truncate(quote, 60))
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
