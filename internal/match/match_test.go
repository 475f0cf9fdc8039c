package match

import (
	"testing"
	"time"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func age(years float64) *float64 {
	return &years
}

func rule(polarity model.Polarity, field model.Field, op model.Operator, value ...string) model.EligibilityRule {
	return model.EligibilityRule{
		ID:             string(field) + "-" + string(op),
		Polarity:       polarity,
		Field:          field,
		Operator:       op,
		Value:          value,
		EvidenceText:   "criterion text",
		ParserIdentity: "pattern/v1",
	}
}

func single(t *testing.T, r model.EligibilityRule, p model.PatientProfile) model.MatchVerdict {
	t.Helper()
	res := NewEngine(DefaultPolicy()).Evaluate(model.RuleSet{TrialID: "NCT1", Rules: []model.EligibilityRule{r}}, p, evalTime)
	require.Len(t, res.Verdicts, 1)
	return res.Verdicts[0]
}

func fullProfile() model.PatientProfile {
	return model.PatientProfile{
		ID:           "p1",
		Demographics: &model.Demographics{Age: age(54), Sex: "F"},
		Conditions:   []string{"Type 2 Diabetes Mellitus", "Hypertension"},
		History:      []model.DatedTerm{{Term: "appendectomy", Date: date(2001, 5, 1)}},
		Procedures:   []model.DatedTerm{{Term: "knee surgery", Date: date(2019, 2, 1)}},
		Medications: []model.Medication{
			{Term: "Metformin", Start: date(2020, 1, 1)},
			{Term: "aspirin", Start: date(2018, 1, 1), End: date(2025, 6, 1)},
		},
		Labs: []model.LabValue{
			{Name: "HbA1c", Value: "6.1", Unit: "%", MeasuredAt: date(2025, 1, 10)},
			{Name: "Hemoglobin A1c", Value: "8.2", Unit: "%", MeasuredAt: date(2026, 2, 1)},
		},
		UpdatedAt: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestEvaluate_LabSectionAbsent(t *testing.T) {
	r := rule(model.Inclusion, model.FieldLab, model.OpGTE, "7.0")
	p := fullProfile()
	p.Labs = nil

	v := single(t, r, p)
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.Equal(t, "labs", v.MissingField)
	assert.Equal(t, "Add lab results, include units and date measured", v.RequiredAction)
}

func TestEvaluate_UndatedMedicationWindow(t *testing.T) {
	r := rule(model.Exclusion, model.FieldMedication, model.OpWithinLast, "warfarin")
	r.TimeWindow = "4 weeks"
	p := fullProfile()
	p.Medications = []model.Medication{{Term: "warfarin"}}

	v := single(t, r, p)
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.Equal(t, "medications_timeline", v.MissingField)
	assert.Contains(t, v.RequiredAction, "warfarin")
}

func TestEvaluate_MedicationWindow(t *testing.T) {
	r := rule(model.Exclusion, model.FieldMedication, model.OpWithinLast, "warfarin")
	r.TimeWindow = "4 weeks"

	tests := []struct {
		name string
		meds []model.Medication
		want model.Outcome
	}{
		{"stopped inside window", []model.Medication{{Term: "Coumadin", End: date(2026, 2, 20)}}, model.OutcomeFail},
		{"ongoing", []model.Medication{{Term: "warfarin", Start: date(2025, 1, 1)}}, model.OutcomeFail},
		{"stopped before window", []model.Medication{{Term: "warfarin", End: date(2025, 12, 1)}}, model.OutcomePass},
		{"never taken", []model.Medication{{Term: "metformin", Start: date(2025, 1, 1)}}, model.OutcomePass},
		{"dated inside beats undated", []model.Medication{{Term: "warfarin"}, {Term: "warfarin", End: date(2026, 2, 25)}}, model.OutcomeFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fullProfile()
			p.Medications = tt.meds
			assert.Equal(t, tt.want, single(t, r, p).Outcome)
		})
	}
}

func TestEvaluate_HistoryWindowInclusion(t *testing.T) {
	r := rule(model.Inclusion, model.FieldHistory, model.OpWithinLast, "myocardial infarction")
	r.TimeWindow = "1 year"
	p := fullProfile()

	p.History = []model.DatedTerm{{Term: "heart attack", Date: date(2025, 9, 1)}}
	assert.Equal(t, model.OutcomePass, single(t, r, p).Outcome)

	p.History = []model.DatedTerm{{Term: "myocardial infarction", Date: date(2020, 9, 1)}}
	assert.Equal(t, model.OutcomeFail, single(t, r, p).Outcome)

	p.History = []model.DatedTerm{{Term: "myocardial infarction"}}
	v := single(t, r, p)
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.Equal(t, "history_timeline", v.MissingField)
}

func TestEvaluate_Age(t *testing.T) {
	tests := []struct {
		name    string
		demo    *model.Demographics
		op      model.Operator
		bound   string
		want    model.Outcome
		missing string
	}{
		{"meets minimum", &model.Demographics{Age: age(54)}, model.OpGTE, "18", model.OutcomePass, ""},
		{"below minimum", &model.Demographics{Age: age(17)}, model.OpGTE, "18", model.OutcomeFail, ""},
		{"fractional below minimum", &model.Demographics{Age: age(17.9)}, model.OpGTE, "18", model.OutcomeFail, ""},
		{"at maximum", &model.Demographics{Age: age(75)}, model.OpLTE, "75", model.OutcomePass, ""},
		{"from birth date", &model.Demographics{BirthDate: date(2008, 3, 2)}, model.OpGTE, "18", model.OutcomeFail, ""},
		{"birthday reached", &model.Demographics{BirthDate: date(2008, 3, 1)}, model.OpGTE, "18", model.OutcomePass, ""},
		{"no demographics", nil, model.OpGTE, "18", model.OutcomeUnknown, "demographics.age"},
		{"sex only", &model.Demographics{Sex: "male"}, model.OpGTE, "18", model.OutcomeUnknown, "demographics.age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fullProfile()
			p.Demographics = tt.demo
			v := single(t, rule(model.Inclusion, model.FieldAge, tt.op, tt.bound), p)
			assert.Equal(t, tt.want, v.Outcome)
			assert.Equal(t, tt.missing, v.MissingField)
		})
	}
}

func TestEvaluate_Sex(t *testing.T) {
	r := rule(model.Inclusion, model.FieldSex, model.OpEQ, "female")
	p := fullProfile()

	assert.Equal(t, model.OutcomePass, single(t, r, p).Outcome)

	p.Demographics = &model.Demographics{Age: age(40), Sex: "Male"}
	assert.Equal(t, model.OutcomeFail, single(t, r, p).Outcome)

	p.Demographics = &model.Demographics{Age: age(40)}
	v := single(t, r, p)
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.Equal(t, "demographics.sex", v.MissingField)

	p.Demographics = &model.Demographics{Age: age(40), Sex: "unspecified"}
	v = single(t, r, p)
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.NotEmpty(t, v.Diagnostic)
}

func TestEvaluate_SetOperators(t *testing.T) {
	p := fullProfile()

	tests := []struct {
		name string
		r    model.EligibilityRule
		want model.Outcome
	}{
		{"condition present", rule(model.Inclusion, model.FieldCondition, model.OpIn, "type 2 diabetes"), model.OutcomePass},
		{"condition absent", rule(model.Inclusion, model.FieldCondition, model.OpIn, "asthma"), model.OutcomeFail},
		{"excluded condition absent", rule(model.Exclusion, model.FieldCondition, model.OpNotIn, "type 1 diabetes"), model.OutcomePass},
		{"excluded condition present", rule(model.Exclusion, model.FieldCondition, model.OpNotIn, "hypertension"), model.OutcomeFail},
		{"affirmative exclusion present", rule(model.Exclusion, model.FieldCondition, model.OpIn, "hypertension"), model.OutcomeFail},
		{"affirmative exclusion absent", rule(model.Exclusion, model.FieldCondition, model.OpIn, "asthma"), model.OutcomePass},
		{"medication exists", rule(model.Inclusion, model.FieldMedication, model.OpExists, "metformin"), model.OutcomePass},
		{"procedure not exists", rule(model.Exclusion, model.FieldProcedure, model.OpNotExists, "surgery"), model.OutcomeFail},
		{"no history passes", rule(model.Exclusion, model.FieldHistory, model.OpNoHistory, "stroke"), model.OutcomePass},
		{"no history fails", rule(model.Inclusion, model.FieldHistory, model.OpNoHistory, "appendectomy"), model.OutcomeFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, single(t, tt.r, p).Outcome)
		})
	}
}

func TestEvaluate_Labs(t *testing.T) {
	hba1c := rule(model.Inclusion, model.FieldLab, model.OpGTE, "7.0")
	hba1c.Subject = "hba1c"
	hba1c.Unit = "%"

	p := fullProfile()
	v := single(t, hba1c, p)
	assert.Equal(t, model.OutcomePass, v.Outcome, "latest measurement wins")
	assert.Contains(t, v.Detail, "8.2")

	egfr := rule(model.Inclusion, model.FieldLab, model.OpGTE, "60")
	egfr.Subject = "egfr"
	v = single(t, egfr, p)
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.Equal(t, "labs.egfr", v.MissingField)
	assert.Equal(t, "Add lab value: egfr, include units and date measured", v.RequiredAction)

	p.Labs = []model.LabValue{{Name: "hba1c", Value: "pending", Unit: "%"}}
	v = single(t, hba1c, p)
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.Equal(t, "labs.hba1c", v.MissingField)
	assert.Contains(t, v.Diagnostic, "not numeric")

	p.Labs = []model.LabValue{{Name: "hba1c", Value: "53", Unit: "mmol/mol"}}
	v = single(t, hba1c, p)
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.Contains(t, v.Diagnostic, "unit mismatch")

	noSubject := rule(model.Inclusion, model.FieldLab, model.OpGTE, "7.0")
	v = single(t, noSubject, fullProfile())
	assert.Equal(t, "manual_review", v.MissingField)
}

func TestEvaluate_StrictAgeBoundary(t *testing.T) {
	// "Age under 18" under exclusion and "older than 18" under inclusion
	under := rule(model.Exclusion, model.FieldAge, model.OpLTE, "17")
	under.Certainty = model.CertaintyInferred
	over := rule(model.Inclusion, model.FieldAge, model.OpGTE, "19")
	over.Certainty = model.CertaintyInferred

	tests := []struct {
		name string
		r    model.EligibilityRule
		age  float64
		want model.Outcome
	}{
		{"exclusion at bound", under, 18, model.OutcomePass},
		{"exclusion below bound", under, 17, model.OutcomeFail},
		{"inclusion at bound", over, 18, model.OutcomeFail},
		{"inclusion above bound", over, 19, model.OutcomePass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fullProfile()
			p.Demographics = &model.Demographics{Age: age(tt.age), Sex: "F"}
			assert.Equal(t, tt.want, single(t, tt.r, p).Outcome)
		})
	}
}

func TestEvaluate_StrictLabBoundary(t *testing.T) {
	labRule := func(polarity model.Polarity, certainty model.Certainty) model.EligibilityRule {
		r := rule(polarity, model.FieldLab, model.OpGTE, "10")
		r.Subject = "hba1c"
		r.Unit = "%"
		r.Certainty = certainty
		return r
	}
	withHbA1c := func(value string) model.PatientProfile {
		p := fullProfile()
		p.Labs = []model.LabValue{{Name: "HbA1c", Value: model.Quantity(value), Unit: "%", MeasuredAt: date(2026, 2, 1)}}
		return p
	}

	tests := []struct {
		name  string
		r     model.EligibilityRule
		value string
		want  model.Outcome
	}{
		{"exclusion inferred at bound", labRule(model.Exclusion, model.CertaintyInferred), "10", model.OutcomeUnknown},
		{"exclusion inferred above bound", labRule(model.Exclusion, model.CertaintyInferred), "10.1", model.OutcomeFail},
		{"exclusion inferred below bound", labRule(model.Exclusion, model.CertaintyInferred), "9.9", model.OutcomePass},
		{"inclusion inferred at bound", labRule(model.Inclusion, model.CertaintyInferred), "10", model.OutcomeUnknown},
		{"inclusion inferred above bound", labRule(model.Inclusion, model.CertaintyInferred), "10.1", model.OutcomePass},
		{"exclusion explicit at bound", labRule(model.Exclusion, model.CertaintyExplicit), "10", model.OutcomeFail},
		{"inclusion explicit at bound", labRule(model.Inclusion, model.CertaintyExplicit), "10", model.OutcomePass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := single(t, tt.r, withHbA1c(tt.value))
			assert.Equal(t, tt.want, v.Outcome)
			if tt.want == model.OutcomeUnknown {
				assert.Equal(t, "manual_review", v.MissingField)
				assert.Contains(t, v.Diagnostic, "boundary of strict comparison")
			}
		})
	}

	res := NewEngine(DefaultPolicy()).Evaluate(model.RuleSet{
		TrialID: "NCT1",
		Rules:   []model.EligibilityRule{labRule(model.Exclusion, model.CertaintyInferred)},
	}, withHbA1c("10"), evalTime)
	assert.NotEqual(t, model.TierLikelyIneligible, res.Summary.Tier, "a boundary value is no veto")
}

func TestEvaluate_OtherAlwaysUnknown(t *testing.T) {
	r := model.EligibilityRule{
		Polarity:     model.Inclusion,
		Field:        model.FieldOther,
		Operator:     model.OpExists,
		EvidenceText: "Able to comply with study procedures.",
	}
	v := single(t, r, fullProfile())
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.Equal(t, "manual_review", v.MissingField)
	assert.NotEmpty(t, v.RequiredAction)
}

func TestEvaluate_MalformedRule(t *testing.T) {
	r := rule(model.Inclusion, model.FieldAge, model.OpIn, "18")
	v := single(t, r, fullProfile())
	assert.Equal(t, model.OutcomeUnknown, v.Outcome)
	assert.Equal(t, "manual_review", v.MissingField)
	assert.Contains(t, v.Diagnostic, "not allowed")
}

func TestEvaluate_ConservativeOnMissing(t *testing.T) {
	rules := []model.EligibilityRule{
		rule(model.Inclusion, model.FieldAge, model.OpGTE, "18"),
		rule(model.Exclusion, model.FieldSex, model.OpEQ, "male"),
		rule(model.Exclusion, model.FieldCondition, model.OpNotIn, "cancer"),
		rule(model.Exclusion, model.FieldHistory, model.OpNoHistory, "stroke"),
		rule(model.Inclusion, model.FieldMedication, model.OpExists, "insulin"),
		rule(model.Exclusion, model.FieldProcedure, model.OpNotExists, "dialysis"),
		rule(model.Inclusion, model.FieldLab, model.OpLTE, "10"),
	}
	res := NewEngine(DefaultPolicy()).Evaluate(model.RuleSet{Rules: rules}, model.PatientProfile{ID: "empty"}, evalTime)

	want := []string{"demographics.age", "demographics.sex", "conditions", "history", "medications", "procedures", "labs"}
	require.Len(t, res.Verdicts, len(want))
	for i, v := range res.Verdicts {
		assert.Equal(t, model.OutcomeUnknown, v.Outcome, v.Rule.Field)
		assert.Equal(t, want[i], v.MissingField)
		assert.NotEmpty(t, v.RequiredAction)
	}
	assert.Equal(t, model.TierInsufficientData, res.Summary.Tier)
}

func TestEvaluate_HardVeto(t *testing.T) {
	rules := []model.EligibilityRule{
		rule(model.Inclusion, model.FieldAge, model.OpGTE, "18"),
		rule(model.Inclusion, model.FieldCondition, model.OpIn, "type 2 diabetes"),
		rule(model.Exclusion, model.FieldCondition, model.OpNotIn, "hypertension"),
	}
	res := NewEngine(DefaultPolicy()).Evaluate(model.RuleSet{Rules: rules}, fullProfile(), evalTime)

	assert.Equal(t, 2, res.Summary.Pass)
	assert.Equal(t, 1, res.Summary.Fail)
	assert.Equal(t, model.TierLikelyIneligible, res.Summary.Tier)
}

func TestEvaluate_AllPassIsDeterministic(t *testing.T) {
	set := model.RuleSet{
		TrialID:        "NCT2",
		ParserIdentity: "pattern/v1",
		ParsedAt:       time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Rules: []model.EligibilityRule{
			rule(model.Inclusion, model.FieldAge, model.OpGTE, "18"),
			rule(model.Inclusion, model.FieldSex, model.OpEQ, "female"),
			rule(model.Inclusion, model.FieldCondition, model.OpIn, "type 2 diabetes"),
			rule(model.Exclusion, model.FieldHistory, model.OpNoHistory, "pregnancy"),
		},
	}
	engine := NewEngine(DefaultPolicy())

	first := engine.Evaluate(set, fullProfile(), evalTime)
	second := engine.Evaluate(set, fullProfile(), evalTime)

	assert.Equal(t, model.TierLikelyEligible, first.Summary.Tier)
	assert.Equal(t, 4, first.Summary.Pass)
	assert.Equal(t, first, second)

	s := first.Summary
	assert.Equal(t, "NCT2", s.TrialID)
	assert.Equal(t, "p1", s.PatientID)
	assert.Equal(t, "pattern/v1", s.ParserIdentity)
	assert.Equal(t, evalTime, s.EvaluatedAt)
	assert.Equal(t, set.ParsedAt, s.RulesParsedAt)
}

func TestEvaluate_VerdictPerRuleInOrder(t *testing.T) {
	rules := []model.EligibilityRule{
		rule(model.Inclusion, model.FieldLab, model.OpGTE, "7"),
		rule(model.Inclusion, model.FieldAge, model.OpGTE, "18"),
		{Polarity: model.Inclusion, Field: model.FieldOther, Operator: model.OpExists, EvidenceText: "x"},
	}
	res := NewEngine(DefaultPolicy()).Evaluate(model.RuleSet{Rules: rules}, fullProfile(), evalTime)

	require.Len(t, res.Verdicts, len(rules))
	for i := range rules {
		assert.Equal(t, rules[i], res.Verdicts[i].Rule)
	}
	assert.Equal(t, len(rules), res.Summary.Total())
}

func TestEvaluate_Staleness(t *testing.T) {
	p := fullProfile()
	res := NewEngine(DefaultPolicy()).Evaluate(model.RuleSet{}, p, evalTime)

	assert.False(t, res.Summary.IsStale(p.UpdatedAt, time.Time{}))
	assert.True(t, res.Summary.IsStale(p.UpdatedAt.Add(time.Hour), time.Time{}))
}

func TestTier(t *testing.T) {
	verdict := func(polarity model.Polarity, field model.Field, outcome model.Outcome) model.MatchVerdict {
		return model.MatchVerdict{Rule: model.EligibilityRule{Polarity: polarity, Field: field}, Outcome: outcome}
	}
	pass := func(f model.Field) model.MatchVerdict { return verdict(model.Inclusion, f, model.OutcomePass) }

	tests := []struct {
		name     string
		verdicts []model.MatchVerdict
		want     model.Tier
	}{
		{"empty", nil, model.TierInsufficientData},
		{"all pass", []model.MatchVerdict{pass(model.FieldAge), pass(model.FieldCondition)}, model.TierLikelyEligible},
		{"inclusion fail", []model.MatchVerdict{pass(model.FieldAge), verdict(model.Inclusion, model.FieldCondition, model.OutcomeFail)}, model.TierPossiblyEligible},
		{"veto beats unknowns", []model.MatchVerdict{
			verdict(model.Inclusion, model.FieldAge, model.OutcomeUnknown),
			verdict(model.Exclusion, model.FieldHistory, model.OutcomeFail),
		}, model.TierLikelyIneligible},
		{"central unknown", []model.MatchVerdict{
			verdict(model.Inclusion, model.FieldAge, model.OutcomeUnknown),
			pass(model.FieldCondition), pass(model.FieldLab), pass(model.FieldHistory),
		}, model.TierInsufficientData},
		{"minority unknown", []model.MatchVerdict{
			verdict(model.Inclusion, model.FieldLab, model.OutcomeUnknown),
			pass(model.FieldAge), pass(model.FieldCondition),
		}, model.TierPossiblyEligible},
		{"half unknown is not above threshold", []model.MatchVerdict{
			verdict(model.Inclusion, model.FieldLab, model.OutcomeUnknown),
			verdict(model.Exclusion, model.FieldOther, model.OutcomeUnknown),
			pass(model.FieldAge), pass(model.FieldCondition),
		}, model.TierPossiblyEligible},
		{"majority unknown", []model.MatchVerdict{
			verdict(model.Inclusion, model.FieldLab, model.OutcomeUnknown),
			verdict(model.Inclusion, model.FieldOther, model.OutcomeUnknown),
			pass(model.FieldAge),
		}, model.TierInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultPolicy().Tier(tt.verdicts))
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(model.MatchConfig{UnknownThreshold: 0.3, CentralFields: []string{"Condition", "bogus"}})
	assert.Equal(t, 0.3, p.UnknownThreshold)
	assert.Equal(t, []model.Field{model.FieldCondition}, p.CentralFields)
	assert.Equal(t, p, NewEngine(p).Policy())
}
