package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EligibilityRule is one atomic predicate extracted from a trial's eligibility text
type EligibilityRule struct {
	ID             string    `json:"id" yaml:"id"`                                       // Deterministic rule id
	Polarity       Polarity  `json:"polarity" yaml:"polarity"`                           // INCLUSION or EXCLUSION
	Field          Field     `json:"field" yaml:"field"`                                 // Domain category
	Operator       Operator  `json:"operator" yaml:"operator"`                           // Comparison or set operator
	Value          Value     `json:"value" yaml:"value"`                                 // Scalar or ordered list
	Subject        string    `json:"subject,omitempty" yaml:"subject,omitempty"`         // Lab analyte (e.g., "hba1c")
	Unit           string    `json:"unit,omitempty" yaml:"unit,omitempty"`               // Physical/time unit
	TimeWindow     string    `json:"time_window,omitempty" yaml:"time_window,omitempty"` // Recency qualifier for WITHIN_LAST
	EvidenceText   string    `json:"evidence_text" yaml:"evidence_text"`                 // Verbatim source sentence
	EvidenceOffset int       `json:"evidence_offset" yaml:"evidence_offset"`             // Byte offset in cleaned text
	Certainty      Certainty `json:"certainty,omitempty" yaml:"certainty,omitempty"`     // explicit or inferred
	ParserIdentity string    `json:"parser_identity" yaml:"parser_identity"`             // e.g., "pattern/v1"
}

// IsFallback reports whether the rule is an unparseable placeholder
func (r EligibilityRule) IsFallback() bool {
	return r.Field == FieldOther
}

// Polarity states whether a rule is a requirement or a disqualifier
type Polarity string

const (
	Inclusion Polarity = "INCLUSION"
	Exclusion Polarity = "EXCLUSION"
)

// Valid reports whether p is a known polarity
func (p Polarity) Valid() bool {
	return p == Inclusion || p == Exclusion
}

// Field is the domain category a rule constrains
type Field string

const (
	FieldAge        Field = "age"
	FieldSex        Field = "sex"
	FieldCondition  Field = "condition"
	FieldMedication Field = "medication"
	FieldLab        Field = "lab"
	FieldProcedure  Field = "procedure"
	FieldHistory    Field = "history"
	FieldOther      Field = "other" // Unparseable criterion, evidence only
)

// Fields lists every field in canonical order
var Fields = []Field{
	FieldAge, FieldSex, FieldCondition, FieldMedication,
	FieldLab, FieldProcedure, FieldHistory, FieldOther,
}

// Valid reports whether f belongs to the closed field enumeration
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// ParseField converts a string into a Field
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown field %q", s)
	}
	return f, nil
}

// Operator is the predicate applied to the resolved profile value
type Operator string

const (
	OpGTE        Operator = ">="
	OpLTE        Operator = "<="
	OpEQ         Operator = "="
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT_IN"
	OpNoHistory  Operator = "NO_HISTORY"
	OpExists     Operator = "EXISTS"
	OpNotExists  Operator = "NOT_EXISTS"
	OpWithinLast Operator = "WITHIN_LAST"
)

// Operators lists every operator in canonical order
var Operators = []Operator{
	OpGTE, OpLTE, OpEQ, OpIn, OpNotIn, OpNoHistory, OpExists, OpNotExists, OpWithinLast,
}

// Valid reports whether o belongs to the closed operator enumeration
func (o Operator) Valid() bool {
	for _, known := range Operators {
		if o == known {
			return true
		}
	}
	return false
}

// Negating reports whether the operator is phrased as the requirement itself
// (absence required). Negating operators are never inverted by polarity.
func (o Operator) Negating() bool {
	switch o {
	case OpNotIn, OpNoHistory, OpNotExists:
		return true
	default:
		return false
	}
}

// Numeric reports whether the operator compares numbers
func (o Operator) Numeric() bool {
	return o == OpGTE || o == OpLTE || o == OpEQ
}

// ParseOperator converts a string into an Operator
func ParseOperator(s string) (Operator, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "≥":
		s = ">="
	case "≤":
		s = "<="
	case "==":
		s = "="
	}
	o := Operator(strings.ToUpper(s))
	if !o.Valid() {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return o, nil
}

// Certainty annotates how directly a rule follows from its evidence
type Certainty string

const (
	CertaintyExplicit Certainty = "explicit" // Stated verbatim in the text
	CertaintyInferred Certainty = "inferred" // Approximated (e.g., strict bound mapped to >=)
)

// Value holds a rule's operand: one scalar or an ordered list
type Value []string

// Scalar returns the first element, or "" for an empty value
func (v Value) Scalar() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// MarshalJSON encodes a single-element value as a string and anything else as an array
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(v))
}

// UnmarshalJSON accepts a string, a number, or an array of either
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = nil
	case string:
		*v = Value{t}
	case float64:
		*v = Value{formatNumber(t)}
	case []interface{}:
		out := make(Value, 0, len(t))
		for _, item := range t {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case float64:
				out = append(out, formatNumber(it))
			default:
				return fmt.Errorf("unsupported value element %T", item)
			}
		}
		*v = out
	default:
		return fmt.Errorf("unsupported value %T", raw)
	}
	return nil
}

// UnmarshalYAML accepts a scalar or a sequence
func (v *Value) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var list []string
	if err := unmarshal(&list); err == nil {
		*v = list
		return nil
	}
	var scalar string
	if err := unmarshal(&scalar); err != nil {
		return err
	}
	*v = Value{scalar}
	return nil
}

func formatNumber(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", f), "0"), ".")
}

// Coverage summarizes how much of the eligibility text resolved into structured rules
type Coverage struct {
	Sentences int `json:"sentences" yaml:"sentences"` // Sentences seen by the parser
	Rules     int `json:"rules" yaml:"rules"`         // Rules produced (including fallback)
	Fallback  int `json:"fallback" yaml:"fallback"`   // Unparseable "other" rules
}

// RuleSet is the output of one parser identity for one trial
type RuleSet struct {
	TrialID        string            `json:"trial_id" yaml:"trial_id"`
	ParserIdentity string            `json:"parser_identity" yaml:"parser_identity"`
	SourceHash     string            `json:"source_hash" yaml:"source_hash"` // sha256 of cleaned text
	ParsedAt       time.Time         `json:"parsed_at" yaml:"parsed_at"`
	Rules          []EligibilityRule `json:"rules" yaml:"rules"`
	Coverage       Coverage          `json:"coverage" yaml:"coverage"`
	Diagnostics    []string          `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}
