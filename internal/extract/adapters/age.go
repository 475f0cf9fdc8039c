package adapters

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/ppiankov/trialmatch/internal/model"
)

// agePattern is one age phrasing. Each capture group is a bound with the
// operator at the same index. Strict phrasings set shift: ages are whole
// years, so "older than N" is exactly ">= N+1".
type agePattern struct {
	re        *regexp.Regexp
	ops       []model.Operator
	certainty model.Certainty
	shift     int
}

func ageRe(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

// Patterns in priority order: ranges first, then explicit bounds, then strict
// comparisons rewritten as inclusive bounds on whole years.
var agePatterns = []agePattern{
	{ageRe(`\bbetween\s+(\d{1,3})\s+and\s+(\d{1,3})\s+years`), []model.Operator{model.OpGTE, model.OpLTE}, model.CertaintyExplicit, 0},
	{ageRe(`\b(\d{1,3})\s*(?:-|–|to)\s*(\d{1,3})\s+years`), []model.Operator{model.OpGTE, model.OpLTE}, model.CertaintyExplicit, 0},
	{ageRe(`\bage[sd]?\s+(?:of\s+)?(\d{1,3})\s*(?:-|–|to)\s*(\d{1,3})\b`), []model.Operator{model.OpGTE, model.OpLTE}, model.CertaintyExplicit, 0},

	{ageRe(`\b(\d{1,3})\s+years?(?:\s+of\s+age)?(?:\s+old)?,?\s*(?:or|and)\s+(?:older|above|over|greater)`), []model.Operator{model.OpGTE}, model.CertaintyExplicit, 0},
	{ageRe(`\b(\d{1,3})\s+years?(?:\s+of\s+age)?(?:\s+old)?,?\s*(?:or|and)\s+(?:younger|below|under|less)`), []model.Operator{model.OpLTE}, model.CertaintyExplicit, 0},
	{ageRe(`\b(?:at\s+least|minimum\s+(?:age\s+)?(?:of\s+)?|no\s+younger\s+than)\s*(\d{1,3})\s+years`), []model.Operator{model.OpGTE}, model.CertaintyExplicit, 0},
	{ageRe(`\b(?:at\s+most|maximum\s+(?:age\s+)?(?:of\s+)?|no\s+older\s+than)\s*(\d{1,3})\s+years`), []model.Operator{model.OpLTE}, model.CertaintyExplicit, 0},
	{ageRe(`\bage[sd]?\s*(?:≥|>=|=>)\s*(\d{1,3})\b`), []model.Operator{model.OpGTE}, model.CertaintyExplicit, 0},
	{ageRe(`(?:≥|>=|=>)\s*(\d{1,3})\s*(?:years|yrs)`), []model.Operator{model.OpGTE}, model.CertaintyExplicit, 0},
	{ageRe(`\bage[sd]?\s*(?:≤|<=|=<)\s*(\d{1,3})\b`), []model.Operator{model.OpLTE}, model.CertaintyExplicit, 0},
	{ageRe(`(?:≤|<=|=<)\s*(\d{1,3})\s*(?:years|yrs)`), []model.Operator{model.OpLTE}, model.CertaintyExplicit, 0},

	{ageRe(`\bage[sd]?\s*(?:>|over|above|older\s+than)\s*(\d{1,3})\b`), []model.Operator{model.OpGTE}, model.CertaintyInferred, 1},
	{ageRe(`(?:\b(?:older\s+than|over|above)\s+|>\s*)(\d{1,3})\s*(?:years|yrs)`), []model.Operator{model.OpGTE}, model.CertaintyInferred, 1},
	{ageRe(`\bage[sd]?\s*(?:<|under|below|younger\s+than)\s*(\d{1,3})\b`), []model.Operator{model.OpLTE}, model.CertaintyInferred, -1},
	{ageRe(`(?:\b(?:younger\s+than|under|below|less\s+than)\s+|<\s*)(\d{1,3})\s*(?:years|yrs)`), []model.Operator{model.OpLTE}, model.CertaintyInferred, -1},
}

var (
	// Durations that are not ages: "within 5 years", "for at least 2 years"
	durationBefore = regexp.MustCompile(`(?i)\b(?:within|for|past|last|previous|duration|since|diagnosed)\s+(?:at\s+least\s+|more\s+than\s+|the\s+)?$`)
	durationAfter  = regexp.MustCompile(`(?i)^[\s,]*(?:ago|prior|before|after|since|from|of\s+(?:treatment|therapy|follow|diagnosis|disease|duration))\b`)
)

// AgeAdapter extracts age bounds
type AgeAdapter struct {
	BaseAdapter
}

// NewAgeAdapter creates a new age adapter
func NewAgeAdapter() *AgeAdapter {
	return &AgeAdapter{}
}

// Name returns the adapter name
func (a *AgeAdapter) Name() string {
	return "age"
}

type ageBound struct {
	at        span
	pos       int
	op        model.Operator
	value     string
	certainty model.Certainty
	shift     int
}

// Extract returns one rule per age bound in the criterion
func (a *AgeAdapter) Extract(c Criterion) []model.EligibilityRule {
	var taken []span
	var bounds []ageBound

	for _, p := range agePatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(c.Text, -1) {
			at := span{loc[0], loc[1]}
			if overlapsAny(at, taken) || isDuration(c.Text, at) {
				continue
			}
			taken = append(taken, at)
			for g, op := range p.ops {
				start, end := loc[2+2*g], loc[3+2*g]
				if start < 0 {
					continue
				}
				bounds = append(bounds, ageBound{
					at: at, pos: start, op: op, value: c.Text[start:end], certainty: p.certainty, shift: p.shift,
				})
			}
		}
	}

	sort.SliceStable(bounds, func(i, j int) bool { return bounds[i].pos < bounds[j].pos })

	rules := make([]model.EligibilityRule, 0, len(bounds))
	for _, b := range bounds {
		value := b.value
		if b.shift != 0 {
			n, _ := strconv.Atoi(value)
			if n+b.shift < 0 {
				continue
			}
			value = strconv.Itoa(n + b.shift)
		}
		rule := a.Rule(c, model.FieldAge, b.op, value)
		rule.Unit = "years"
		rule.Certainty = b.certainty
		rules = append(rules, rule)
	}
	return rules
}

func overlapsAny(s span, taken []span) bool {
	for _, t := range taken {
		if s.overlaps(t) {
			return true
		}
	}
	return false
}

func isDuration(text string, at span) bool {
	return durationBefore.MatchString(text[:at.start]) || durationAfter.MatchString(text[at.end:])
}
