package adapters

import (
	"regexp"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/vocab"
)

const (
	labNumber = `(\d+(?:\.\d+)?)`
	labUnit   = `((?:%|(?:×|x|times)\s*(?:the\s+)?(?:ULN|upper\s+limit\s+of\s+normal)|x\s*10\^?\d+\s*/\s*[a-zA-Zµμ]+|[a-zA-Zµμ]+(?:/[a-zA-Z0-9µμ.]+)*(?:²|\^?2)?)?)`
)

var (
	labComparator = regexp.MustCompile(`(?i)(≥|>=|=>|≤|<=|=<|>|<|=|` +
		`greater\s+than\s+or\s+equal\s+to|less\s+than\s+or\s+equal\s+to|` +
		`no\s+less\s+than|not\s+less\s+than|no\s+more\s+than|not\s+more\s+than|` +
		`at\s+least|at\s+most|greater\s+than|more\s+than|higher\s+than|less\s+than|lower\s+than|` +
		`above|below|over|under|exceeding)\s*` + labNumber + `\s*` + labUnit)

	labBetween = regexp.MustCompile(`(?i)\bbetween\s+` + labNumber + `\s*` + labUnit + `\s+(?:and|to)\s+` + labNumber + `\s*` + labUnit)
	labRange   = regexp.MustCompile(`(?i)^\W{0,3}(?:of\s+|level\s+|value\s+)?` + labNumber + `\s*(?:-|–|to)\s*` + labNumber + `\s*` + labUnit)

	// Only connectors between two lab names: "ALT or AST > 2.5 x ULN"
	labConnector = regexp.MustCompile(`(?i)^[\s,/]*(?:(?:and|or|and/or)[\s,/]*)?(?:\(\w+\)[\s,/]*)?$`)

	unitStopwords = map[string]bool{
		"and": true, "or": true, "to": true, "in": true, "at": true, "for": true, "with": true,
		"on": true, "the": true, "of": true, "within": true, "unless": true, "if": true,
		"is": true, "are": true, "x": true, "times": true, "per": true, "as": true,
	}
)

// LabAdapter extracts "<analyte> <comparator> <number><unit>" bounds
type LabAdapter struct {
	BaseAdapter
}

// NewLabAdapter creates a new lab adapter
func NewLabAdapter() *LabAdapter {
	return &LabAdapter{}
}

// Name returns the adapter name
func (a *LabAdapter) Name() string {
	return "lab"
}

type labBound struct {
	op        model.Operator
	value     string
	unit      string
	certainty model.Certainty
}

// Extract returns one rule per bound for every analyte mentioned
func (a *LabAdapter) Extract(c Criterion) []model.EligibilityRule {
	mentions := vocab.FindLabs(c.Text)
	if len(mentions) == 0 {
		return nil
	}

	// Bounds stated after each mention, up to the next mention or clause end
	bounds := make([][]labBound, len(mentions))
	for i, m := range mentions {
		end := len(c.Text)
		if i+1 < len(mentions) {
			end = mentions[i+1].Start
		}
		if j := strings.IndexByte(c.Text[m.End:end], ';'); j >= 0 {
			end = m.End + j
		}
		bounds[i] = labBounds(c.Text[m.End:end])
	}

	// Coordinated analytes share the bound of the last one in the list
	for i := len(mentions) - 2; i >= 0; i-- {
		if len(bounds[i]) == 0 && len(bounds[i+1]) > 0 &&
			labConnector.MatchString(c.Text[mentions[i].End:mentions[i+1].Start]) {
			bounds[i] = bounds[i+1]
		}
	}

	var rules []model.EligibilityRule
	seen := make(map[string]bool)
	for i, m := range mentions {
		for _, b := range bounds[i] {
			key := m.Entry.Canonical + "|" + string(b.op) + "|" + b.value
			if seen[key] {
				continue
			}
			seen[key] = true

			rule := a.Rule(c, model.FieldLab, b.op, b.value)
			rule.Subject = m.Entry.Canonical
			rule.Unit = b.unit
			rule.Certainty = b.certainty
			rules = append(rules, rule)
		}
	}
	return rules
}

// labBounds parses the comparator phrases that follow an analyte name
func labBounds(tail string) []labBound {
	if loc := labBetween.FindStringSubmatch(tail); loc != nil {
		unit := normalizeUnit(loc[4])
		if unit == "" {
			unit = normalizeUnit(loc[2])
		}
		return []labBound{
			{op: model.OpGTE, value: loc[1], unit: firstNonEmpty(normalizeUnit(loc[2]), unit), certainty: model.CertaintyExplicit},
			{op: model.OpLTE, value: loc[3], unit: unit, certainty: model.CertaintyExplicit},
		}
	}
	if loc := labRange.FindStringSubmatch(tail); loc != nil {
		unit := normalizeUnit(loc[3])
		return []labBound{
			{op: model.OpGTE, value: loc[1], unit: unit, certainty: model.CertaintyExplicit},
			{op: model.OpLTE, value: loc[2], unit: unit, certainty: model.CertaintyExplicit},
		}
	}

	var out []labBound
	for _, loc := range labComparator.FindAllStringSubmatch(tail, -1) {
		op, certainty := labOperator(loc[1])
		out = append(out, labBound{op: op, value: loc[2], unit: normalizeUnit(loc[3]), certainty: certainty})
	}

	// "≥ 7.0 and ≤ 10.5%": the unit stated once applies to the whole chain
	var chainUnit string
	for _, b := range out {
		if b.unit != "" {
			chainUnit = b.unit
		}
	}
	for i := range out {
		if out[i].unit == "" {
			out[i].unit = chainUnit
		}
	}
	return out
}

// labOperator maps a comparator phrase to an inclusive operator. Strict
// comparisons are approximated and marked inferred.
func labOperator(cmp string) (model.Operator, model.Certainty) {
	switch squash(strings.ToLower(cmp)) {
	case "≥", ">=", "=>", "at least", "greater than or equal to", "no less than", "not less than":
		return model.OpGTE, model.CertaintyExplicit
	case ">", "greater than", "more than", "higher than", "above", "over", "exceeding":
		return model.OpGTE, model.CertaintyInferred
	case "≤", "<=", "=<", "at most", "less than or equal to", "no more than", "not more than":
		return model.OpLTE, model.CertaintyExplicit
	case "<", "less than", "lower than", "below", "under":
		return model.OpLTE, model.CertaintyInferred
	default:
		return model.OpEQ, model.CertaintyExplicit
	}
}

func normalizeUnit(unit string) string {
	unit = squash(unit)
	lower := strings.ToLower(unit)
	if unitStopwords[lower] {
		return ""
	}
	if strings.Contains(lower, "uln") || strings.Contains(lower, "upper limit of normal") {
		return "×ULN"
	}
	return unit
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
