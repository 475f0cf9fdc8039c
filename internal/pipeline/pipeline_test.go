package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/trialmatch/internal/cache"
	"github.com/ppiankov/trialmatch/internal/extract"
	"github.com/ppiankov/trialmatch/internal/match"
	"github.com/ppiankov/trialmatch/internal/metrics"
	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/store"
)

const diabetesTrial = `Inclusion Criteria:
- Age 18 to 75 years.
- Diagnosis of type 2 diabetes.
- HbA1c ≥ 7.0% and ≤ 10.5%.
Exclusion Criteria:
- Pregnancy or breastfeeding.
- Use of warfarin within the last 4 weeks.`

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	p     *Pipeline
	store *store.Store
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "trialmatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	p := New(Options{
		Backend:  extract.NewPatternBackend(),
		Engine:   match.NewEngine(match.DefaultPolicy()),
		Rules:    s,
		Profiles: s,
		Matches:  s,
		Cache:    cache.NewRuleSets(cache.NewMemoryCache(time.Minute, time.Minute), 0),
		Metrics:  metrics.New(),
		Clock:    c.Now,
	})
	return &fixture{p: p, store: s, clock: c}
}

func eligiblePatient() *model.PatientProfile {
	age := 54.0
	return &model.PatientProfile{
		ID:           "patient-42",
		Demographics: &model.Demographics{Age: &age, Sex: "female"},
		Conditions:   []string{"Type 2 diabetes"},
		History:      []model.DatedTerm{{Term: "appendectomy"}},
		Medications:  []model.Medication{{Term: "metformin"}},
		Labs:         []model.LabValue{{Name: "HbA1c", Value: "8.2", Unit: "%"}},
	}
}

func TestParseTrial_StoresAndActivates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	set, err := f.p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)
	assert.Equal(t, extract.PatternIdentity, set.ParserIdentity)
	assert.False(t, set.ParsedAt.IsZero())

	trial, err := f.store.Trial(ctx, "NCT01")
	require.NoError(t, err)
	assert.Equal(t, extract.PatternIdentity, trial.ActiveIdentity)

	stored, err := f.store.RuleSet(ctx, "NCT01", extract.PatternIdentity)
	require.NoError(t, err)
	require.Len(t, stored.Rules, len(set.Rules))
	for i := range set.Rules {
		assert.Equal(t, set.Rules[i].ID, stored.Rules[i].ID)
	}

	pending, err := f.p.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPending_AfterTextChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.p.PutTrial(ctx, "NCT02", "Patients must be 18 years or older.")
	require.NoError(t, err)
	_, err = f.p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)

	pending, err := f.p.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "NCT02", pending[0].ID)

	f.clock.Advance(time.Hour)
	_, err = f.p.PutTrial(ctx, "NCT01", "Patients must be 21 years or older.")
	require.NoError(t, err)
	pending, err = f.p.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	trial, err := f.store.Trial(ctx, "NCT01")
	require.NoError(t, err)
	assert.Equal(t, extract.PatternIdentity, trial.ActiveIdentity, "text update keeps activation")
}

func TestMatch_EligiblePatient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)
	require.NoError(t, f.p.PutPatient(ctx, eligiblePatient()))

	report, err := f.p.Match(ctx, "NCT01", "patient-42")
	require.NoError(t, err)
	assert.Equal(t, model.TierLikelyEligible, report.Summary.Tier)
	assert.Equal(t, "NCT01", report.Summary.TrialID)
	assert.Equal(t, extract.PatternIdentity, report.Summary.ParserIdentity)
	assert.NotEmpty(t, report.RecordID)
	assert.Equal(t, model.Disclaimer, report.Disclaimer)
	assert.False(t, report.Stale)

	history, err := f.store.Matches(ctx, "NCT01", "patient-42", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, report.RecordID, history[0].ID)
}

func TestMatch_VetoAndMissingData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)

	pregnant := eligiblePatient()
	pregnant.ID = "patient-7"
	pregnant.History = append(pregnant.History, model.DatedTerm{Term: "pregnancy"})
	require.NoError(t, f.p.PutPatient(ctx, pregnant))

	report, err := f.p.Match(ctx, "NCT01", "patient-7")
	require.NoError(t, err)
	assert.Equal(t, model.TierLikelyIneligible, report.Summary.Tier)

	noLabs := eligiblePatient()
	noLabs.ID = "patient-8"
	noLabs.Labs = nil
	require.NoError(t, f.p.PutPatient(ctx, noLabs))

	report, err = f.p.Match(ctx, "NCT01", "patient-8")
	require.NoError(t, err)
	assert.Equal(t, model.TierPossiblyEligible, report.Summary.Tier)
	assert.Equal(t, 2, report.Summary.Unknown)
	for _, v := range report.Verdicts {
		if v.Outcome == model.OutcomeUnknown {
			assert.Equal(t, model.MissingLabs, v.MissingField)
			assert.NotEmpty(t, v.RequiredAction)
		}
	}
}

func TestMatch_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.p.Match(ctx, "NCT404", "patient-42")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.p.PutTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)
	_, err = f.p.Match(ctx, "NCT01", "patient-42")
	assert.ErrorIs(t, err, store.ErrNotFound, "trial not parsed yet")

	_, err = f.p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)
	_, err = f.p.Match(ctx, "NCT01", "patient-404")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestMatchTrials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)
	_, err = f.p.ParseTrial(ctx, "NCT02", "Patients must be 60 years or older.")
	require.NoError(t, err)
	require.NoError(t, f.p.PutPatient(ctx, eligiblePatient()))

	reports, err := f.p.MatchTrials(ctx, "patient-42", []string{"NCT02", "NCT01"})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "NCT02", reports[0].Summary.TrialID)
	assert.Equal(t, model.TierPossiblyEligible, reports[0].Summary.Tier)
	assert.Equal(t, "NCT01", reports[1].Summary.TrialID)
	assert.Equal(t, model.TierLikelyEligible, reports[1].Summary.Tier)

	_, err = f.p.MatchTrials(ctx, "patient-42", []string{"NCT01", "NCT404"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHistory_Staleness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)
	patient := eligiblePatient()
	require.NoError(t, f.p.PutPatient(ctx, patient))

	f.clock.Advance(time.Minute)
	_, err = f.p.Match(ctx, "NCT01", "patient-42")
	require.NoError(t, err)

	history, err := f.p.History(ctx, "NCT01", "patient-42", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Stale)

	f.clock.Advance(time.Minute)
	patient.UpdatedAt = f.clock.Now()
	require.NoError(t, f.p.PutPatient(ctx, patient))

	history, err = f.p.History(ctx, "NCT01", "patient-42", 10)
	require.NoError(t, err)
	assert.True(t, history[0].Stale)

	none, err := f.p.History(ctx, "NCT01", "patient-404", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestActivate_OtherIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)

	err = f.p.Activate(ctx, "NCT01", "llm/openai")
	assert.ErrorIs(t, err, store.ErrNotFound)

	candidate := &model.RuleSet{
		TrialID: "NCT01", ParserIdentity: "llm/openai",
		SourceHash: extract.TextHash(diabetesTrial), ParsedAt: f.clock.Now(),
	}
	require.NoError(t, f.store.SaveRuleSet(ctx, candidate))
	require.NoError(t, f.p.Activate(ctx, "NCT01", "llm/openai"))

	set, err := f.p.Rules(ctx, "NCT01")
	require.NoError(t, err)
	assert.Equal(t, "llm/openai", set.ParserIdentity)
}

// activateOther parses diabetesTrial and makes a second identity active
func activateOther(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	_, err := f.p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)
	other := &model.RuleSet{
		TrialID: "NCT01", ParserIdentity: "llm/openai",
		SourceHash: extract.TextHash(diabetesTrial), ParsedAt: f.clock.Now(),
		Rules: []model.EligibilityRule{{
			ID: "r1", Polarity: model.Inclusion, Field: model.FieldAge, Operator: model.OpGTE,
			Value: model.Value{"18"}, EvidenceText: "Age 18 to 75 years.",
		}},
	}
	require.NoError(t, f.store.SaveRuleSet(ctx, other))
	require.NoError(t, f.p.Activate(ctx, "NCT01", "llm/openai"))
}

func TestParseTrial_ReplacesActiveSetFromEarlierText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	activateOther(t, f)

	f.clock.Advance(time.Hour)
	_, err := f.p.ParseTrial(ctx, "NCT01", "Patients must be 65 years or older.")
	require.NoError(t, err)

	trial, err := f.store.Trial(ctx, "NCT01")
	require.NoError(t, err)
	assert.Equal(t, extract.PatternIdentity, trial.ActiveIdentity)

	set, err := f.p.Rules(ctx, "NCT01")
	require.NoError(t, err)
	require.Len(t, set.Rules, 1)
	assert.Equal(t, "Patients must be 65 years or older.", set.Rules[0].EvidenceText)
	assert.Equal(t, extract.TextHash(trial.Text), set.SourceHash)

	// Re-parsing unchanged text keeps a current activation
	require.NoError(t, f.p.Activate(ctx, "NCT01", extract.PatternIdentity))
	_, err = f.p.ParseTrial(ctx, "NCT01", "Patients must be 65 years or older.")
	require.NoError(t, err)
	trial, err = f.store.Trial(ctx, "NCT01")
	require.NoError(t, err)
	assert.Equal(t, extract.PatternIdentity, trial.ActiveIdentity)
}

func TestRules_NeverServesSetsFromEarlierText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	activateOther(t, f)

	f.clock.Advance(time.Hour)
	_, err := f.p.PutTrial(ctx, "NCT01", "Patients must be 65 years or older.")
	require.NoError(t, err)

	_, err = f.p.Rules(ctx, "NCT01")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.p.ParseTrial(ctx, "NCT01", "Patients must be 65 years or older.")
	require.NoError(t, err)
	set, err := f.p.Rules(ctx, "NCT01")
	require.NoError(t, err)
	assert.Equal(t, extract.PatternIdentity, set.ParserIdentity)
}

func TestRules_FallsBackToCurrentBackend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	activateOther(t, f)

	// The active identity's set predates the text; the configured backend's does not
	f.clock.Advance(time.Hour)
	text := "Patients must be 65 years or older."
	_, err := f.p.PutTrial(ctx, "NCT01", text)
	require.NoError(t, err)
	current, err := extract.Run(ctx, extract.NewPatternBackend(), "NCT01", text)
	require.NoError(t, err)
	current.ParsedAt = f.clock.Now().Add(time.Second)
	require.NoError(t, f.store.SaveRuleSet(ctx, current))

	set, err := f.p.Rules(ctx, "NCT01")
	require.NoError(t, err)
	assert.Equal(t, extract.PatternIdentity, set.ParserIdentity)
	assert.Equal(t, extract.TextHash(text), set.SourceHash)
}

func TestMatchProfile_RecencyQualifiesOnlyItsTerm(t *testing.T) {
	f := newFixture(t)
	set, err := extract.Run(context.Background(), extract.NewPatternBackend(), "NCT09",
		"Exclusion Criteria:\n- Pregnancy or myocardial infarction within the last 6 months.")
	require.NoError(t, err)

	age := 31.0
	pregnant := &model.PatientProfile{
		ID:           "patient-7",
		Demographics: &model.Demographics{Age: &age, Sex: "female"},
		History:      []model.DatedTerm{{Term: "pregnancy"}},
	}
	report := f.p.MatchProfile(set, pregnant)
	assert.Equal(t, model.TierLikelyIneligible, report.Summary.Tier)
}

// corruptProfiles stores profiles but cannot decode them back
type corruptProfiles struct{ *store.Store }

func (corruptProfiles) Patient(_ context.Context, id string) (*model.PatientProfile, error) {
	return nil, fmt.Errorf("decoding patient %s: %w", id, store.ErrCorrupt)
}

func TestCorruptDataIsNotRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := New(Options{
		Backend:  extract.NewPatternBackend(),
		Rules:    f.store,
		Profiles: corruptProfiles{f.store},
		Matches:  f.store,
	})
	_, err := p.ParseTrial(ctx, "NCT01", diabetesTrial)
	require.NoError(t, err)

	_, err = p.Match(ctx, "NCT01", "patient-42")
	assert.ErrorIs(t, err, store.ErrCorrupt)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

// brokenStore fails every call with a driver error
type brokenStore struct{}

var errDisk = errors.New("disk I/O error")

func (brokenStore) PutTrial(context.Context, model.Trial) error {
	return errDisk
}

func (brokenStore) Trial(context.Context, string) (*model.Trial, error) {
	return nil, errDisk
}

func (brokenStore) PendingTrials(context.Context, string) ([]string, error) {
	return nil, errDisk
}

func (brokenStore) SaveRuleSet(context.Context, *model.RuleSet) error {
	return errDisk
}

func (brokenStore) RuleSet(context.Context, string, string) (*model.RuleSet, error) {
	return nil, errDisk
}

func (brokenStore) Activate(context.Context, string, string) error {
	return errDisk
}

func (brokenStore) PutPatient(context.Context, *model.PatientProfile) error {
	return errDisk
}

func (brokenStore) Patient(context.Context, string) (*model.PatientProfile, error) {
	return nil, errDisk
}

func (brokenStore) RecordMatch(context.Context, *model.MatchRecord) error {
	return errDisk
}

func (brokenStore) Matches(context.Context, string, string, int) ([]model.MatchRecord, error) {
	return nil, errDisk
}

func TestStoreFailuresAreUnavailable(t *testing.T) {
	ctx := context.Background()
	p := New(Options{
		Backend:  extract.NewPatternBackend(),
		Rules:    brokenStore{},
		Profiles: brokenStore{},
		Matches:  brokenStore{},
	})

	_, err := p.Match(ctx, "NCT01", "patient-42")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, errDisk)

	_, err = p.ParseTrial(ctx, "NCT01", diabetesTrial)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = p.PutPatient(ctx, eligiblePatient())
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = p.Pending(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRenderMarkdown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.p.ParseTrial(ctx, "NCT01", diabetesTrial+"\n- Able to attend all study visits.")
	require.NoError(t, err)

	patient := eligiblePatient()
	patient.Labs = nil
	require.NoError(t, f.p.PutPatient(ctx, patient))
	report, err := f.p.Match(ctx, "NCT01", "patient-42")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true).WriteMarkdown(&buf, report))
	md := buf.String()

	assert.Contains(t, md, "# Eligibility pre-screen: NCT01 x patient-42")
	assert.Contains(t, md, "## Inclusion criteria")
	assert.Contains(t, md, "## Exclusion criteria")
	assert.Contains(t, md, "- [x] **PASS** `age >= 18")
	assert.Contains(t, md, "> Pregnancy or breastfeeding.")
	assert.Contains(t, md, "## To complete this assessment")
	assert.Contains(t, md, "criterion needs manual review")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(md), "_"+model.Disclaimer+"_"))

	path := filepath.Join(t.TempDir(), "out", "report.md")
	require.NoError(t, NewRenderer(false).RenderMarkdown(report, path))
	require.NoError(t, NewRenderer(false).RenderJSON(report, filepath.Join(t.TempDir(), "report.json")))

	buf.Reset()
	NewRenderer(false).RenderSummary(&buf, report)
	assert.Contains(t, buf.String(), "NCT01 x patient-42: POSSIBLY_ELIGIBLE")
}
