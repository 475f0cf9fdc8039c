// Package pipeline wires parsing and matching to the stores, the rule-set
// cache and metrics. Parsing writes rule sets; matching reads them and never
// parses.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/trialmatch/internal/cache"
	"github.com/ppiankov/trialmatch/internal/extract"
	"github.com/ppiankov/trialmatch/internal/logging"
	"github.com/ppiankov/trialmatch/internal/match"
	"github.com/ppiankov/trialmatch/internal/metrics"
	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/store"
)

// ErrUnavailable marks a store failure the caller may retry
var ErrUnavailable = errors.New("store unavailable")

// RuleStore holds trial texts and the rule sets parsed from them
type RuleStore interface {
	PutTrial(ctx context.Context, trial model.Trial) error
	Trial(ctx context.Context, id string) (*model.Trial, error)
	PendingTrials(ctx context.Context, identity string) ([]string, error)
	SaveRuleSet(ctx context.Context, set *model.RuleSet) error
	RuleSet(ctx context.Context, trialID, identity string) (*model.RuleSet, error)
	Activate(ctx context.Context, trialID, identity string) error
}

// ProfileStore holds patient profile snapshots
type ProfileStore interface {
	PutPatient(ctx context.Context, profile *model.PatientProfile) error
	Patient(ctx context.Context, id string) (*model.PatientProfile, error)
}

// MatchLog records evaluations
type MatchLog interface {
	RecordMatch(ctx context.Context, rec *model.MatchRecord) error
	Matches(ctx context.Context, trialID, patientID string, limit int) ([]model.MatchRecord, error)
}

// Options configures a Pipeline. Backend, Engine and the three stores are
// required; the rest may be nil.
type Options struct {
	Backend  extract.Backend
	Engine   *match.Engine
	Rules    RuleStore
	Profiles ProfileStore
	Matches  MatchLog
	Cache    *cache.RuleSets
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Clock    func() time.Time
	Workers  int // fan-out limit for MatchTrials
}

// Pipeline orchestrates parsing and matching
type Pipeline struct {
	backend  extract.Backend
	engine   *match.Engine
	rules    RuleStore
	profiles ProfileStore
	matches  MatchLog
	cache    *cache.RuleSets
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	workers  int
}

// New creates a pipeline
func New(opts Options) *Pipeline {
	p := &Pipeline{
		backend:  opts.Backend,
		engine:   opts.Engine,
		rules:    opts.Rules,
		profiles: opts.Profiles,
		matches:  opts.Matches,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Clock,
		workers:  opts.Workers,
	}
	if p.engine == nil {
		p.engine = match.NewEngine(match.DefaultPolicy())
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	if p.workers <= 0 {
		p.workers = 4
	}
	return p
}

// Identity returns the configured parser backend's identity
func (p *Pipeline) Identity() string {
	return p.backend.Identity()
}

// PutTrial registers or updates a trial's eligibility text
func (p *Pipeline) PutTrial(ctx context.Context, trialID, text string) (*model.Trial, error) {
	trial := model.Trial{ID: trialID, Text: text, UpdatedAt: p.now()}
	if err := p.rules.PutTrial(ctx, trial); err != nil {
		return nil, p.classify(ctx, err)
	}
	return &trial, nil
}

// Trial returns a registered trial
func (p *Pipeline) Trial(ctx context.Context, trialID string) (*model.Trial, error) {
	trial, err := p.rules.Trial(ctx, trialID)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	return trial, nil
}

// ParseTrial parses text with the configured backend and stores the result.
// Unknown trials are registered first. The first rule set a trial receives
// becomes its active one; later identities are activated through the gate.
func (p *Pipeline) ParseTrial(ctx context.Context, trialID, text string) (*model.RuleSet, error) {
	start := time.Now()
	set, err := p.parse(ctx, trialID, text)
	p.metrics.ObserveParse(p.Identity(), set, err, time.Since(start))
	if err != nil {
		p.logger.Warn("parse failed", zap.String("trial", trialID), zap.String("identity", p.Identity()), zap.Error(err))
		return nil, err
	}
	p.logger.Info("parsed trial",
		zap.String("trial", trialID),
		zap.String("identity", set.ParserIdentity),
		zap.Int("rules", set.Coverage.Rules),
		zap.Int("fallback", set.Coverage.Fallback),
		zap.Int("diagnostics", len(set.Diagnostics)))
	return set, nil
}

func (p *Pipeline) parse(ctx context.Context, trialID, text string) (*model.RuleSet, error) {
	trial, err := p.rules.Trial(ctx, trialID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if trial, err = p.PutTrial(ctx, trialID, text); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, p.classify(ctx, err)
	case trial.Text != text:
		active := trial.ActiveIdentity
		if trial, err = p.PutTrial(ctx, trialID, text); err != nil {
			return nil, err
		}
		trial.ActiveIdentity = active
	}

	set, err := extract.Run(ctx, p.backend, trialID, text)
	if err != nil {
		return nil, err
	}
	set.ParsedAt = p.now()
	if !set.ParsedAt.After(trial.UpdatedAt) {
		set.ParsedAt = trial.UpdatedAt.Add(time.Nanosecond)
	}

	if err := p.rules.SaveRuleSet(ctx, set); err != nil {
		return nil, p.classify(ctx, err)
	}
	activate, err := p.activeOutdated(ctx, trial, set)
	if err != nil {
		return nil, err
	}
	if activate {
		if err := p.rules.Activate(ctx, trialID, set.ParserIdentity); err != nil {
			return nil, p.classify(ctx, err)
		}
		if trial.ActiveIdentity != "" {
			p.logger.Info("replaced outdated active rules",
				zap.String("trial", trialID),
				zap.String("previous", trial.ActiveIdentity),
				zap.String("identity", set.ParserIdentity))
		}
	}
	if p.cache != nil {
		if err := p.cache.Put(ctx, set); err != nil {
			p.logger.Debug("rule cache write failed", zap.String("trial", trialID), zap.Error(err))
		}
	}
	return set, nil
}

// activeOutdated reports whether a freshly parsed set should take over: the
// trial has no active identity, or the active set was parsed from other text
func (p *Pipeline) activeOutdated(ctx context.Context, trial *model.Trial, set *model.RuleSet) (bool, error) {
	switch trial.ActiveIdentity {
	case "":
		return true, nil
	case set.ParserIdentity:
		return false, nil
	}
	active, err := p.rules.RuleSet(ctx, trial.ID, trial.ActiveIdentity)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, p.classify(ctx, err)
	}
	return active.SourceHash != set.SourceHash, nil
}

// Pending returns trials that have no current rule set from the configured backend
func (p *Pipeline) Pending(ctx context.Context) ([]model.Trial, error) {
	ids, err := p.rules.PendingTrials(ctx, p.Identity())
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	trials := make([]model.Trial, 0, len(ids))
	for _, id := range ids {
		trial, err := p.rules.Trial(ctx, id)
		if err != nil {
			return nil, p.classify(ctx, err)
		}
		trials = append(trials, *trial)
	}
	return trials, nil
}

// Rules returns a trial's active rule set, reading the cache before the store
func (p *Pipeline) Rules(ctx context.Context, trialID string) (*model.RuleSet, error) {
	trial, err := p.rules.Trial(ctx, trialID)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	identity := trial.ActiveIdentity
	if identity == "" {
		return nil, fmt.Errorf("trial %s has not been parsed: %w", trialID, store.ErrNotFound)
	}

	// A rule set parsed from earlier text would evaluate criteria the trial
	// no longer has; the configured backend may already hold a current one
	want := extract.TextHash(trial.Text)
	candidates := []string{identity}
	if identity != p.Identity() {
		candidates = append(candidates, p.Identity())
	}
	for _, id := range candidates {
		set, err := p.currentRuleSet(ctx, trialID, id, want)
		if err != nil {
			return nil, err
		}
		if set != nil {
			return set, nil
		}
	}
	return nil, fmt.Errorf("trial %s has not been parsed since its text changed: %w", trialID, store.ErrNotFound)
}

// currentRuleSet returns the identity's rule set when it was parsed from text
// hashing to want, or nil
func (p *Pipeline) currentRuleSet(ctx context.Context, trialID, identity, want string) (*model.RuleSet, error) {
	set, err := p.RuleSet(ctx, trialID, identity)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	case set.SourceHash == want:
		return set, nil
	case p.cache == nil:
		return nil, nil
	}

	// The cached copy may predate the stored one
	set, err = p.rules.RuleSet(ctx, trialID, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, p.classify(ctx, err)
	}
	if set.SourceHash != want {
		return nil, nil
	}
	_ = p.cache.Put(ctx, set)
	return set, nil
}

// RuleSet returns the rule set one parser identity produced for a trial
func (p *Pipeline) RuleSet(ctx context.Context, trialID, identity string) (*model.RuleSet, error) {
	if p.cache != nil {
		set, ok := p.cache.Get(ctx, trialID, identity)
		p.metrics.CacheLookup(ok)
		if ok {
			return set, nil
		}
	}

	set, err := p.rules.RuleSet(ctx, trialID, identity)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	if p.cache != nil {
		_ = p.cache.Put(ctx, set)
	}
	return set, nil
}

// Activate switches the rule set matching uses for a trial
func (p *Pipeline) Activate(ctx context.Context, trialID, identity string) error {
	if err := p.rules.Activate(ctx, trialID, identity); err != nil {
		return p.classify(ctx, err)
	}
	p.logger.Info("activated parser identity", zap.String("trial", trialID), zap.String("identity", identity))
	return nil
}

// PutPatient stores a profile snapshot, stamping UpdatedAt when unset
func (p *Pipeline) PutPatient(ctx context.Context, profile *model.PatientProfile) error {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = p.now()
	}
	if err := p.profiles.PutPatient(ctx, profile); err != nil {
		return p.classify(ctx, err)
	}
	return nil
}

// Match evaluates a patient against a trial's active rules and records the result
func (p *Pipeline) Match(ctx context.Context, trialID, patientID string) (*model.Report, error) {
	set, err := p.Rules(ctx, trialID)
	if err != nil {
		return nil, err
	}
	profile, err := p.profiles.Patient(ctx, patientID)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	return p.evaluate(ctx, set, profile)
}

// MatchProfile evaluates an unsaved profile against a rule set without recording it
func (p *Pipeline) MatchProfile(set *model.RuleSet, profile *model.PatientProfile) model.Report {
	result := p.engine.Evaluate(*set, *profile, p.now())
	p.metrics.ObserveMatch(result)
	return model.NewReport(result)
}

func (p *Pipeline) evaluate(ctx context.Context, set *model.RuleSet, profile *model.PatientProfile) (*model.Report, error) {
	now := p.now()
	result := p.engine.Evaluate(*set, *profile, now)
	p.metrics.ObserveMatch(result)

	rec := &model.MatchRecord{ID: uuid.NewString(), Result: result, CreatedAt: now}
	if err := p.matches.RecordMatch(ctx, rec); err != nil {
		return nil, p.classify(ctx, err)
	}

	p.logger.Info("matched",
		zap.String("trial", set.TrialID),
		logging.Patient(profile.ID),
		zap.String("tier", string(result.Summary.Tier)),
		zap.Int("unknown", result.Summary.Unknown))

	report := model.NewReport(result)
	report.RecordID = rec.ID
	return &report, nil
}

// MatchTrials evaluates one patient against several trials concurrently.
// Reports come back in trial order; the first failure cancels the rest.
func (p *Pipeline) MatchTrials(ctx context.Context, patientID string, trialIDs []string) ([]*model.Report, error) {
	profile, err := p.profiles.Patient(ctx, patientID)
	if err != nil {
		return nil, p.classify(ctx, err)
	}

	reports := make([]*model.Report, len(trialIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, trialID := range trialIDs {
		g.Go(func() error {
			set, err := p.Rules(gctx, trialID)
			if err != nil {
				return err
			}
			report, err := p.evaluate(gctx, set, profile)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// History returns recorded reports for a pair, newest first, flagging those
// computed before the current profile or active rule set
func (p *Pipeline) History(ctx context.Context, trialID, patientID string, limit int) ([]model.Report, error) {
	records, err := p.matches.Matches(ctx, trialID, patientID, limit)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	profile, err := p.profiles.Patient(ctx, patientID)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	var rulesParsedAt time.Time
	if set, err := p.Rules(ctx, trialID); err == nil {
		rulesParsedAt = set.ParsedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	reports := make([]model.Report, 0, len(records))
	for _, rec := range records {
		report := model.NewReport(rec.Result)
		report.RecordID = rec.ID
		report.Stale = rec.Result.Summary.IsStale(profile.UpdatedAt, rulesParsedAt)
		reports = append(reports, report)
	}
	return reports, nil
}

// classify passes not-found, corrupt-data and context errors through and
// marks anything else from a store as retryable
func (p *Pipeline) classify(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, store.ErrCorrupt) {
		return err
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	p.metrics.StoreError()
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
