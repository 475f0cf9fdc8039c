// Package extract turns trial eligibility text into evidence-linked rules.
// Parser backends are interchangeable strategies behind Backend; Run applies
// the shared rule contract to whatever a backend returns.
package extract

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/segment"
)

// Backend is one parser generation. Parse receives the segmented text and
// returns rules citing its sentences, plus diagnostics for anything it had to
// discard. An error means the backend could not run at all.
type Backend interface {
	Identity() string
	Parse(ctx context.Context, segs segment.Segments) ([]model.EligibilityRule, []string, error)
}

// Run parses text with backend and enforces the rule contract:
//   - every rule passes validation and cites a verbatim quote of the text
//   - every sentence without a surviving rule gets a fallback "other" rule
//   - rules carry the backend identity and a deterministic id
//
// The returned set has a zero ParsedAt; callers stamp it.
func Run(ctx context.Context, backend Backend, trialID, text string) (*model.RuleSet, error) {
	segs := segment.Split(text)
	identity := backend.Identity()

	set := &model.RuleSet{
		TrialID:        trialID,
		ParserIdentity: identity,
		SourceHash:     SourceHash(segs.Text),
		Rules:          []model.EligibilityRule{},
	}

	sentences := segs.Sentences()
	set.Coverage.Sentences = len(sentences)
	if len(sentences) == 0 {
		return set, nil
	}

	raw, diagnostics, err := backend.Parse(ctx, segs)
	if err != nil {
		return nil, fmt.Errorf("parse %s with %s: %w", trialID, identity, err)
	}

	rules, rejected := enforceEvidence(raw, segs.Text)
	diagnostics = append(diagnostics, rejected...)
	rules = fillFallback(rules, sentences)

	for i := range rules {
		rules[i].ParserIdentity = identity
		rules[i].Value = trimValue(rules[i].Value)
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].EvidenceOffset < rules[j].EvidenceOffset })
	assignIDs(trialID, identity, rules)

	set.Rules = rules
	set.Diagnostics = diagnostics
	set.Coverage.Rules = len(rules)
	for _, r := range rules {
		if r.IsFallback() {
			set.Coverage.Fallback++
		}
	}
	return set, nil
}

// SourceHash fingerprints the cleaned eligibility text
func SourceHash(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

// TextHash is the SourceHash a rule set parsed from raw text carries
func TextHash(raw string) string {
	return SourceHash(segment.Clean(raw))
}

// assignIDs gives each rule a deterministic id. Identical rules from the same
// sentence get an ordinal so ids stay unique.
func assignIDs(trialID, identity string, rules []model.EligibilityRule) {
	seen := make(map[string]int)
	for i := range rules {
		r := &rules[i]
		id := stableID(trialID, identity, fmt.Sprint(r.EvidenceOffset), string(r.Polarity),
			string(r.Field), string(r.Operator), r.Subject, strings.Join(r.Value, "\x1f"), r.TimeWindow)
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = stableID(id, fmt.Sprint(n))
		} else {
			seen[id] = 1
		}
		r.ID = id
	}
}

// stableID is the first 12 hex characters of SHA-256 over the parts
func stableID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

func trimValue(v model.Value) model.Value {
	if v == nil {
		return nil
	}
	out := make(model.Value, 0, len(v))
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
