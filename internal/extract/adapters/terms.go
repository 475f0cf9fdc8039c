package adapters

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/vocab"
)

const negationWindow = 80

var (
	negationCue = regexp.MustCompile(`(?i)\b(?:no|not|without|never|absence\s+of|free\s+of|none|denies|negative(?:\s+for)?)\b`)

	// "no more than", "not older than" compare rather than negate
	comparativeAfterCue = regexp.MustCompile(`(?i)^\s+(?:more|less|longer|older|younger|greater|fewer|later|earlier)\b`)

	historyCue = regexp.MustCompile(`(?i)\b(?:history\s+of|prior|previous|past)\b`)

	recencyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwithin\s+(?:the\s+)?(?:last\s+|past\s+|previous\s+|preceding\s+|prior\s+)?(\d+|` + numberWordPattern + `)\s+(days?|weeks?|months?|years?)\b`),
		regexp.MustCompile(`(?i)\b(?:within|in|during)\s+the\s+(?:last|past|previous|preceding)\s+(?:(\d+|` + numberWordPattern + `)\s+)?(days?|weeks?|months?|years?)\b`),
		regexp.MustCompile(`(?i)\b(\d+|` + numberWordPattern + `)\s+(days?|weeks?|months?|years?)\s+(?:prior\s+to|before)\b`),
	}
)

// TermAdapter extracts condition, medication, procedure and history criteria
// from vocabulary mentions
type TermAdapter struct {
	BaseAdapter
}

// NewTermAdapter creates a new term adapter
func NewTermAdapter() *TermAdapter {
	return &TermAdapter{}
}

// Name returns the adapter name
func (a *TermAdapter) Name() string {
	return "terms"
}

// Extract returns one rule per distinct term mention
func (a *TermAdapter) Extract(c Criterion) []model.EligibilityRule {
	mentions := vocab.FindTerms(c.Text)
	if len(mentions) == 0 {
		return nil
	}

	var labSpans []span
	for _, m := range vocab.FindLabs(c.Text) {
		labSpans = append(labSpans, span{m.Start, m.End})
	}
	var terms []vocab.Match
	for _, m := range mentions {
		if !overlapsAny(span{m.Start, m.End}, labSpans) {
			terms = append(terms, m)
		}
	}

	windows := recencies(c.Text)

	var rules []model.EligibilityRule
	seen := make(map[string]bool)
	for i, m := range terms {
		window, unit := windowFor(c.Text, terms, i, windows)

		clause := a.Clause(c.Text, m.Start)
		field := m.Entry.Field
		if field == model.FieldCondition && (historyCue.MatchString(clause) || window != "") {
			field = model.FieldHistory
		}

		rule := a.termRule(c, field, m.Entry.Canonical, negated(clause), window)
		if window != "" {
			rule.Unit = unit
		}

		key := string(rule.Polarity) + "|" + string(rule.Field) + "|" + string(rule.Operator) + "|" + rule.Value.Scalar()
		if seen[key] {
			continue
		}
		seen[key] = true
		rules = append(rules, rule)
	}
	return rules
}

// termRule maps (polarity, negation, recency) to a normalized rule.
//
//	required present: IN (condition), EXISTS (medication, procedure, history)
//	required absent:  NOT_IN, NOT_EXISTS, NO_HISTORY
//	recency:          WITHIN_LAST on the polarity the requirement implies
//
// Double negations ("no X" under exclusion) flip polarity and are inferred.
func (a *TermAdapter) termRule(c Criterion, field model.Field, term string, neg bool, window string) model.EligibilityRule {
	crit := c
	certainty := model.CertaintyExplicit
	if neg {
		certainty = model.CertaintyInferred
	}

	if window != "" {
		if neg {
			crit.Polarity = flip(c.Polarity)
		}
		rule := a.Rule(crit, field, model.OpWithinLast, term)
		rule.TimeWindow = window
		rule.Certainty = certainty
		return rule
	}

	// Required-present when the polarity and the negation agree
	present := (c.Polarity == model.Inclusion) != neg
	if present {
		crit.Polarity = model.Inclusion
		rule := a.Rule(crit, field, presentOperator(field), term)
		rule.Certainty = certainty
		return rule
	}

	return a.Rule(crit, field, absentOperator(field), term)
}

func presentOperator(field model.Field) model.Operator {
	if field == model.FieldCondition {
		return model.OpIn
	}
	return model.OpExists
}

func absentOperator(field model.Field) model.Operator {
	switch field {
	case model.FieldCondition:
		return model.OpNotIn
	case model.FieldHistory:
		return model.OpNoHistory
	default:
		return model.OpNotExists
	}
}

func flip(p model.Polarity) model.Polarity {
	if p == model.Exclusion {
		return model.Inclusion
	}
	return model.Exclusion
}

// negated reports whether a negation cue governs the end of the clause
func negated(clause string) bool {
	if len(clause) > negationWindow {
		clause = clause[len(clause)-negationWindow:]
	}
	for _, loc := range negationCue.FindAllStringIndex(clause, -1) {
		if comparativeAfterCue.MatchString(clause[loc[1]:]) {
			continue
		}
		return true
	}
	return false
}

// recencyMatch is a "within the last N <unit>" qualifier, normalized to a
// window ("4 weeks") and its unit ("weeks")
type recencyMatch struct {
	at     span
	window string
	unit   string
}

// recencies finds every recency qualifier in text, in text order
func recencies(text string) []recencyMatch {
	var taken []span
	var out []recencyMatch
	for _, p := range recencyPatterns {
		for _, loc := range p.FindAllStringSubmatchIndex(text, -1) {
			at := span{loc[0], loc[1]}
			if overlapsAny(at, taken) {
				continue
			}
			taken = append(taken, at)

			n := 1
			if loc[2] >= 0 {
				word := text[loc[2]:loc[3]]
				if v, ok := numberWords[strings.ToLower(word)]; ok {
					n = v
				} else if v, err := strconv.Atoi(word); err == nil {
					n = v
				}
			}
			unit := strings.TrimSuffix(strings.ToLower(text[loc[4]:loc[5]]), "s")
			if n != 1 {
				unit += "s"
			}
			out = append(out, recencyMatch{at: at, window: strconv.Itoa(n) + " " + unit, unit: unit})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.start < out[j].at.start })
	return out
}

// windowFor returns the recency window that qualifies terms[i]. A trailing
// qualifier binds only the term directly before it ("pregnancy or MI within
// 6 months" dates MI alone); a qualifier that opens the clause binds every
// term after it.
func windowFor(text string, terms []vocab.Match, i int, windows []recencyMatch) (string, string) {
	m := terms[i]
	for _, w := range windows {
		if w.at.start >= m.End {
			nearest := i+1 == len(terms) || terms[i+1].Start >= w.at.start
			if nearest && !strings.ContainsAny(text[m.End:w.at.start], ";.") {
				return w.window, w.unit
			}
			continue
		}
		leading := terms[0].Start >= w.at.end
		if w.at.end <= m.Start && leading && !strings.ContainsAny(text[w.at.end:m.Start], ";.") {
			return w.window, w.unit
		}
	}
	return "", ""
}
