package gate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/vocab"
)

// Counts are the raw comparison tallies between predicted and gold rules
type Counts struct {
	TP           int `json:"tp" yaml:"tp"`
	FP           int `json:"fp" yaml:"fp"`
	FN           int `json:"fn" yaml:"fn"`
	Predicted    int `json:"predicted" yaml:"predicted"`
	Hallucinated int `json:"hallucinated" yaml:"hallucinated"`
}

// Add accumulates other into c
func (c *Counts) Add(other Counts) {
	c.TP += other.TP
	c.FP += other.FP
	c.FN += other.FN
	c.Predicted += other.Predicted
	c.Hallucinated += other.Hallucinated
}

// Metrics are the gate quality figures
type Metrics struct {
	Precision     float64 `json:"precision" yaml:"precision"`
	Recall        float64 `json:"recall" yaml:"recall"`
	F1            float64 `json:"f1" yaml:"f1"`
	Hallucination float64 `json:"hallucination" yaml:"hallucination"`
}

// Metrics computes:
//
//	precision     = TP / (TP + FP)
//	recall        = TP / (TP + FN)
//	F1            = 2PR / (P + R)
//	hallucination = hallucinated / predicted
//
// An empty denominator yields 1 for precision and recall (nothing claimed,
// nothing missed) and 0 for hallucination.
func (c Counts) Metrics() Metrics {
	m := Metrics{Precision: 1, Recall: 1}
	if c.TP+c.FP > 0 {
		m.Precision = float64(c.TP) / float64(c.TP+c.FP)
	}
	if c.TP+c.FN > 0 {
		m.Recall = float64(c.TP) / float64(c.TP+c.FN)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	if c.Predicted > 0 {
		m.Hallucination = float64(c.Hallucinated) / float64(c.Predicted)
	}
	return m
}

// Compare scores predicted rules against gold rules for one trial.
// A predicted rule is a true positive when an unused gold rule has the same
// polarity, field, operator, subject and value at the same evidence location.
// A predicted rule is hallucinated when no gold rule of the same field and
// polarity sits at its evidence location.
func Compare(predicted, gold []model.EligibilityRule) Counts {
	c := Counts{Predicted: len(predicted)}
	used := make([]bool, len(gold))

	for _, p := range predicted {
		matched := false
		for i, g := range gold {
			if used[i] || !sameRule(p, g) {
				continue
			}
			used[i] = true
			matched = true
			break
		}
		if matched {
			c.TP++
		} else {
			c.FP++
		}

		grounded := false
		for _, g := range gold {
			if p.Field == g.Field && p.Polarity == g.Polarity && sameLocation(p.EvidenceText, g.EvidenceText) {
				grounded = true
				break
			}
		}
		if !grounded {
			c.Hallucinated++
		}
	}

	for _, u := range used {
		if !u {
			c.FN++
		}
	}
	return c
}

func sameRule(p, g model.EligibilityRule) bool {
	if p.Polarity != g.Polarity || p.Field != g.Field || p.Operator != g.Operator {
		return false
	}
	if !sameLocation(p.EvidenceText, g.EvidenceText) {
		return false
	}
	if p.Field == model.FieldLab && vocab.CanonicalLab(p.Subject) != vocab.CanonicalLab(g.Subject) {
		return false
	}
	return valueKey(p) == valueKey(g)
}

// sameLocation reports whether two evidence quotes point at the same text: one
// contains the other on word boundaries after whitespace and case normalization. Annotators often
// quote a fragment of the sentence the parser cites.
func sameLocation(a, b string) bool {
	a, b = vocab.Key(a), vocab.Key(b)
	if a == "" || b == "" {
		return false
	}
	return vocab.ContainsWord(a, b) || vocab.ContainsWord(b, a)
}

// valueKey canonicalizes a rule value: numbers by value, terms by vocabulary,
// order ignored
func valueKey(r model.EligibilityRule) string {
	keys := make([]string, 0, len(r.Value))
	for _, v := range r.Value {
		switch {
		case r.Operator.Numeric():
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				keys = append(keys, strconv.FormatFloat(f, 'f', -1, 64))
				continue
			}
			keys = append(keys, vocab.Key(v))
		case r.Field == model.FieldSex:
			keys = append(keys, strings.ToLower(strings.TrimSpace(v)))
		default:
			keys = append(keys, vocab.CanonicalTerm(v))
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}
