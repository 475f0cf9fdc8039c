package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/segment"
)

const systemPrompt = `You convert clinical trial eligibility criteria into structured rules.
You never judge whether a patient qualifies and never add criteria that are not written in the text.`

// BuildPrompt lists the sentences by number with their group and states the output contract
func BuildPrompt(sentences []segment.Grouped) string {
	var b strings.Builder

	b.WriteString(`Convert each eligibility sentence below into zero or more rules.

CRITICAL RULES:
1. Return ONLY a JSON array. No prose, no markdown.
2. Each element has these keys:
   "sentence": the sentence number the rule comes from
   "polarity": "INCLUSION" or "EXCLUSION"
   "field": one of `)
	b.WriteString(quoted(fieldNames()))
	b.WriteString(`
   "operator": one of `)
	b.WriteString(quoted(operatorNames()))
	b.WriteString(`
   "value": a string, or an array of strings for lists of terms
   "subject": the lab analyte for lab rules, else omit
   "unit": the unit of a numeric value or time window, else omit
   "time_window": e.g. "4 weeks" for WITHIN_LAST, else omit
   "evidence": an exact, character-for-character quote from that sentence
3. The evidence MUST be copied verbatim from the cited sentence. Never paraphrase it.
4. Use NO_HISTORY, NOT_IN or NOT_EXISTS when the sentence requires absence.
5. Skip a sentence you cannot express with these fields. Do not guess.

Sentences:
`)
	for i, s := range sentences {
		group := string(s.Resolved())
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, group, s.Text)
	}
	return b.String()
}

// rawRule is one element of the model's JSON answer
type rawRule struct {
	Sentence   int         `json:"sentence"`
	Polarity   string      `json:"polarity"`
	Field      string      `json:"field"`
	Operator   string      `json:"operator"`
	Value      model.Value `json:"value"`
	Subject    string      `json:"subject,omitempty"`
	Unit       string      `json:"unit,omitempty"`
	TimeWindow string      `json:"time_window,omitempty"`
	Evidence   string      `json:"evidence"`
}

// parseAnswer extracts the JSON array from a model answer, tolerating code
// fences and surrounding prose
func parseAnswer(text string) ([]rawRule, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in model answer")
	}

	var rules []rawRule
	if err := json.Unmarshal([]byte(text[start:end+1]), &rules); err != nil {
		return nil, fmt.Errorf("decode model answer: %w", err)
	}
	return rules, nil
}

func fieldNames() []string {
	var out []string
	for _, f := range model.Fields {
		if f != model.FieldOther {
			out = append(out, string(f))
		}
	}
	return out
}

func operatorNames() []string {
	out := make([]string, len(model.Operators))
	for i, o := range model.Operators {
		out[i] = string(o)
	}
	return out
}

func quoted(items []string) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = `"` + s + `"`
	}
	return strings.Join(q, ", ")
}
