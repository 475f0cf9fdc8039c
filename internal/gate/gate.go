// Package gate measures a parser backend against hand-labeled gold rule sets
// and decides whether its output may supersede the active backend.
package gate

import (
	"context"
	"fmt"

	"github.com/ppiankov/trialmatch/internal/extract"
	"github.com/ppiankov/trialmatch/internal/model"
)

// CaseResult is the comparison for one gold trial
type CaseResult struct {
	TrialID     string   `json:"trial_id" yaml:"trial_id"`
	Counts      Counts   `json:"counts" yaml:"counts"`
	Metrics     Metrics  `json:"metrics" yaml:"metrics"`
	Diagnostics []string `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report aggregates a backend's results over a gold set. Aggregate metrics are
// computed from summed counts (micro-averaged).
type Report struct {
	Identity string       `json:"identity" yaml:"identity"`
	Cases    []CaseResult `json:"cases" yaml:"cases"`
	Counts   Counts       `json:"counts" yaml:"counts"`
	Metrics  Metrics      `json:"metrics" yaml:"metrics"`
}

// Evaluate parses every gold case with backend and scores the output. A case
// whose parse fails counts every gold rule as missed. Only context
// cancellation aborts the run.
func Evaluate(ctx context.Context, backend extract.Backend, gold *GoldSet) (*Report, error) {
	report := &Report{Identity: backend.Identity()}

	for _, c := range gold.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := CaseResult{TrialID: c.TrialID}
		set, err := extract.Run(ctx, backend, c.TrialID, c.Text)
		if err != nil {
			result.Error = err.Error()
			result.Counts = Counts{FN: len(c.Rules)}
		} else {
			result.Counts = Compare(set.Rules, c.Rules)
			result.Diagnostics = set.Diagnostics
		}
		result.Metrics = result.Counts.Metrics()

		report.Cases = append(report.Cases, result)
		report.Counts.Add(result.Counts)
	}

	report.Metrics = report.Counts.Metrics()
	return report, nil
}

// Decision is the gate verdict for a candidate backend
type Decision struct {
	Promote bool     `json:"promote" yaml:"promote"`
	Reasons []string `json:"reasons" yaml:"reasons"`
}

// Decide promotes a candidate when it meets every threshold and its F1 is not
// below the baseline's. A nil baseline means no backend is active yet.
func Decide(candidate Metrics, baseline *Metrics, cfg model.GateConfig) Decision {
	var reasons []string

	if candidate.Precision < cfg.MinPrecision {
		reasons = append(reasons, fmt.Sprintf("precision %.3f below minimum %.3f", candidate.Precision, cfg.MinPrecision))
	}
	if candidate.Recall < cfg.MinRecall {
		reasons = append(reasons, fmt.Sprintf("recall %.3f below minimum %.3f", candidate.Recall, cfg.MinRecall))
	}
	if candidate.Hallucination > cfg.MaxHallucination {
		reasons = append(reasons, fmt.Sprintf("hallucination rate %.3f above maximum %.3f", candidate.Hallucination, cfg.MaxHallucination))
	}
	if baseline != nil && candidate.F1 < baseline.F1 {
		reasons = append(reasons, fmt.Sprintf("F1 %.3f below baseline %.3f", candidate.F1, baseline.F1))
	}

	if len(reasons) > 0 {
		return Decision{Promote: false, Reasons: reasons}
	}

	ok := fmt.Sprintf("precision %.3f, recall %.3f, F1 %.3f, hallucination %.3f within thresholds",
		candidate.Precision, candidate.Recall, candidate.F1, candidate.Hallucination)
	return Decision{Promote: true, Reasons: []string{ok}}
}
