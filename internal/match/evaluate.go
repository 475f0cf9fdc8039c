package match

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/validate"
	"github.com/ppiankov/trialmatch/internal/vocab"
)

// check is the literal result of a rule's predicate against the profile.
// A non-empty missing token means the predicate could not be decided.
type check struct {
	satisfied  bool
	missing    string
	diagnostic string
	detail     string
}

func unresolved(missing, detail string) check {
	return check{missing: missing, detail: detail}
}

// evaluateRule resolves one rule. Order: validity, field=other, section
// presence, sub-item presence, operator, polarity.
func evaluateRule(rule model.EligibilityRule, profile model.PatientProfile, at time.Time) model.MatchVerdict {
	v := model.MatchVerdict{Rule: rule}

	if err := validate.Rule(rule); err != nil {
		v.Outcome = model.OutcomeUnknown
		v.MissingField = model.MissingManualReview
		v.Diagnostic = err.Error()
		return v
	}

	var c check
	switch rule.Field {
	case model.FieldOther:
		c = unresolved(model.MissingManualReview, "no structured predicate; criterion needs manual review")
	case model.FieldAge:
		c = checkAge(rule, profile, at)
	case model.FieldSex:
		c = checkSex(rule, profile)
	case model.FieldCondition:
		c = checkConditions(rule, profile)
	case model.FieldHistory:
		c = checkDated(rule, model.MissingHistory, datedTerms(profile.History), at)
	case model.FieldProcedure:
		c = checkDated(rule, model.MissingProcedures, datedTerms(profile.Procedures), at)
	case model.FieldMedication:
		c = checkDated(rule, model.MissingMedications, medicationTerms(profile.Medications, at), at)
	case model.FieldLab:
		c = checkLab(rule, profile)
	}

	v.Detail = c.detail
	v.Diagnostic = c.diagnostic
	if c.missing != "" {
		v.Outcome = model.OutcomeUnknown
		v.MissingField = c.missing
		return v
	}
	v.Outcome = normalize(rule, c.satisfied)
	return v
}

// normalize maps a literal predicate result onto PASS/FAIL. Negating operators
// already express the requirement; affirmative ones are inverted under EXCLUSION.
func normalize(rule model.EligibilityRule, satisfied bool) model.Outcome {
	if !rule.Operator.Negating() && rule.Polarity == model.Exclusion {
		satisfied = !satisfied
	}
	if satisfied {
		return model.OutcomePass
	}
	return model.OutcomeFail
}

func checkAge(rule model.EligibilityRule, profile model.PatientProfile, at time.Time) check {
	age, ok := profile.Demographics.AgeAt(at)
	if !ok {
		return unresolved(model.MissingAge, "no age or birth date on file")
	}
	bound := mustFloat(rule.Value.Scalar())
	satisfied := compare(math.Floor(age), rule.Operator, bound)
	return check{
		satisfied: satisfied,
		detail:    fmt.Sprintf("age %s %s %s: %t", formatFloat(age), rule.Operator, rule.Value.Scalar(), satisfied),
	}
}

func checkSex(rule model.EligibilityRule, profile model.PatientProfile) check {
	if profile.Demographics == nil || strings.TrimSpace(profile.Demographics.Sex) == "" {
		return unresolved(model.MissingSex, "no sex on file")
	}
	sex, ok := normalizeSex(profile.Demographics.Sex)
	if !ok {
		c := unresolved(model.MissingSex, "")
		c.diagnostic = fmt.Sprintf("unrecognized sex %q", profile.Demographics.Sex)
		return c
	}

	satisfied := false
	for _, want := range rule.Value {
		if normalized, _ := normalizeSex(want); normalized == sex {
			satisfied = true
		}
	}
	return check{
		satisfied: satisfied,
		detail:    fmt.Sprintf("sex %s in [%s]: %t", sex, strings.Join(rule.Value, ", "), satisfied),
	}
}

func normalizeSex(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "man", "men":
		return "male", true
	case "f", "female", "woman", "women":
		return "female", true
	}
	return "", false
}

func checkConditions(rule model.EligibilityRule, profile model.PatientProfile) check {
	if len(profile.Conditions) == 0 {
		return unresolved(model.MissingConditions, "no conditions on file")
	}
	found := matchingTerms(profile.Conditions, rule.Value)
	return setCheck(rule, "conditions", found)
}

// setCheck evaluates IN/EXISTS (some value present) and NOT_IN/NOT_EXISTS/NO_HISTORY
// (no value present) given the recorded terms that matched.
func setCheck(rule model.EligibilityRule, section string, found []string) check {
	present := len(found) > 0
	satisfied := present
	if rule.Operator.Negating() {
		satisfied = !present
	}
	detail := fmt.Sprintf("%s %s [%s]: none recorded", section, rule.Operator, strings.Join(rule.Value, ", "))
	if present {
		detail = fmt.Sprintf("%s %s [%s]: recorded %s", section, rule.Operator, strings.Join(rule.Value, ", "), strings.Join(found, ", "))
	}
	return check{satisfied: satisfied, detail: detail}
}

// termDate is a recorded term with the date it last applied, if known
type termDate struct {
	term string
	date *time.Time
}

func datedTerms(items []model.DatedTerm) []termDate {
	out := make([]termDate, 0, len(items))
	for _, it := range items {
		out = append(out, termDate{term: it.Term, date: it.Date})
	}
	return out
}

func medicationTerms(meds []model.Medication, at time.Time) []termDate {
	out := make([]termDate, 0, len(meds))
	for _, m := range meds {
		td := termDate{term: m.Term}
		if last, ok := m.LastTaken(at); ok {
			td.date = &last
		}
		out = append(out, td)
	}
	return out
}

// checkDated handles sections whose entries may carry dates
func checkDated(rule model.EligibilityRule, section string, items []termDate, at time.Time) check {
	if len(items) == 0 {
		return unresolved(section, "no "+section+" on file")
	}

	if rule.Operator != model.OpWithinLast {
		terms := make([]string, 0, len(items))
		for _, it := range items {
			terms = append(terms, it.term)
		}
		return setCheck(rule, section, matchingTerms(terms, rule.Value))
	}

	window, _ := model.ParseTimeWindow(rule.TimeWindow)
	cutoff := window.Cutoff(at)

	var matched, undated int
	var latest *time.Time
	for _, it := range items {
		if !matchesAny(it.term, rule.Value) {
			continue
		}
		matched++
		if it.date == nil || it.date.IsZero() {
			undated++
			continue
		}
		if latest == nil || it.date.After(*latest) {
			d := *it.date
			latest = &d
		}
	}

	values := strings.Join(rule.Value, ", ")
	switch {
	case matched == 0:
		return check{detail: fmt.Sprintf("%s [%s] within %s: not recorded", section, values, window)}
	case latest != nil && !latest.Before(cutoff):
		return check{
			satisfied: true,
			detail:    fmt.Sprintf("%s [%s] last on %s, within %s of %s", section, values, day(*latest), window, day(at)),
		}
	case undated > 0:
		return unresolved(model.TimelineToken(section),
			fmt.Sprintf("%s [%s] recorded without a date; window %s", section, values, window))
	default:
		return check{detail: fmt.Sprintf("%s [%s] last on %s, outside %s of %s", section, values, day(*latest), window, day(at))}
	}
}

func checkLab(rule model.EligibilityRule, profile model.PatientProfile) check {
	if len(profile.Labs) == 0 {
		return unresolved(model.MissingLabs, "no lab results on file")
	}
	if strings.TrimSpace(rule.Subject) == "" {
		c := unresolved(model.MissingManualReview, "")
		c.diagnostic = "lab rule names no analyte"
		return c
	}

	analyte := vocab.CanonicalLab(rule.Subject)
	token := model.LabToken(analyte)

	var latest *model.LabValue
	for i := range profile.Labs {
		lab := &profile.Labs[i]
		if vocab.CanonicalLab(lab.Name) != analyte {
			continue
		}
		if latest == nil || measuredAfter(lab, latest) {
			latest = lab
		}
	}
	if latest == nil {
		return unresolved(token, analyte+" not on file")
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(latest.Value)), 64)
	if err != nil {
		c := unresolved(token, "")
		c.diagnostic = fmt.Sprintf("%s value %q is not numeric", analyte, latest.Value)
		return c
	}
	if rule.Unit != "" && latest.Unit != "" && unitKey(rule.Unit) != unitKey(latest.Unit) {
		c := unresolved(token, "")
		c.diagnostic = fmt.Sprintf("%s unit mismatch: rule %s, recorded %s", analyte, rule.Unit, latest.Unit)
		return c
	}

	bound := mustFloat(rule.Value.Scalar())
	// An inferred bound may stand for a strict comparison, which an exact hit
	// cannot decide
	if rule.Certainty == model.CertaintyInferred && rule.Operator != model.OpEQ && value == bound {
		c := unresolved(model.MissingManualReview,
			fmt.Sprintf("%s %s%s equals the inferred bound %s%s", analyte, formatFloat(value), latest.Unit, rule.Value.Scalar(), rule.Unit))
		c.diagnostic = fmt.Sprintf("%s value at the boundary of strict comparison", analyte)
		return c
	}
	satisfied := compare(value, rule.Operator, bound)
	return check{
		satisfied: satisfied,
		detail: fmt.Sprintf("%s %s%s %s %s%s: %t", analyte, formatFloat(value), latest.Unit,
			rule.Operator, rule.Value.Scalar(), rule.Unit, satisfied),
	}
}

// measuredAfter orders lab results by date; undated results sort oldest
func measuredAfter(a, b *model.LabValue) bool {
	if a.MeasuredAt == nil {
		return false
	}
	if b.MeasuredAt == nil {
		return true
	}
	return a.MeasuredAt.After(*b.MeasuredAt)
}

func unitKey(u string) string {
	u = strings.ToLower(strings.Join(strings.Fields(u), ""))
	return strings.NewReplacer("×", "x", "µ", "u", "μ", "u").Replace(u)
}

func matchingTerms(recorded []string, values model.Value) []string {
	var found []string
	for _, term := range recorded {
		if matchesAny(term, values) {
			found = append(found, term)
		}
	}
	return found
}

func matchesAny(recorded string, values model.Value) bool {
	for _, v := range values {
		if vocab.TermMatches(recorded, v) {
			return true
		}
	}
	return false
}

func compare(actual float64, op model.Operator, bound float64) bool {
	switch op {
	case model.OpGTE:
		return actual >= bound
	case model.OpLTE:
		return actual <= bound
	default:
		return actual == bound
	}
}

// mustFloat parses a value already checked numeric by validate.Rule
func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}
