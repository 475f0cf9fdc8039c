package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trialmatch/internal/gate"
)

var (
	gateBackend  string
	gateBaseline string
	gateActivate bool
	gateTimeout  time.Duration
)

// gateCmd represents the gate command
var gateCmd = &cobra.Command{
	Use:   "gate <gold.yaml>",
	Short: "Measure a parser backend against gold rules before trusting it",
	Long: `Gate parses every case of a hand-labeled gold set with a candidate backend
and reports precision, recall, F1 and hallucination rate. The candidate passes
when it meets the configured thresholds and does not score below the baseline.

With --activate, a passing candidate becomes the active rule set of every
stored trial it has already parsed.

Gold file format:
  cases:
    - trial_id: NCT01234567
      text: |
        Inclusion Criteria: ...
      rules:
        - {polarity: INCLUSION, field: age, operator: ">=", value: "18", evidence_text: "..."}

Example:
  trialmatch gate gold.yaml --backend openai
  trialmatch gate gold.yaml --backend anthropic --baseline pattern --activate`,
	Args: cobra.ExactArgs(1),
	RunE: runGate,
}

func init() {
	rootCmd.AddCommand(gateCmd)

	gateCmd.Flags().StringVar(&gateBackend, "backend", "", "candidate backend (pattern, llm, openai, anthropic, ollama); default from config")
	gateCmd.Flags().StringVar(&gateBaseline, "baseline", "pattern", "baseline backend to compare against; empty for none")
	gateCmd.Flags().BoolVar(&gateActivate, "activate", false, "activate the candidate for stored trials when it passes")
	gateCmd.Flags().DurationVar(&gateTimeout, "timeout", 30*time.Minute, "gate timeout")
}

func runGate(cmd *cobra.Command, args []string) error {
	gold, err := gate.LoadGold(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if gateBackend == "" {
		gateBackend = cfg.Parser.Backend
	}

	ctx, cancel := context.WithTimeout(context.Background(), gateTimeout)
	defer cancel()

	candidate, err := newBackend(cfg, gateBackend)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "⚙️  Evaluating %s on %d gold trials...\n", candidate.Identity(), len(gold.Cases))
	report, err := gate.Evaluate(ctx, candidate, gold)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", candidate.Identity(), err)
	}

	var baseline *gate.Metrics
	if gateBaseline != "" {
		base, err := newBackend(cfg, gateBaseline)
		if err != nil {
			return err
		}
		if base.Identity() != candidate.Identity() {
			fmt.Fprintf(os.Stderr, "⚙️  Evaluating baseline %s...\n", base.Identity())
			baseReport, err := gate.Evaluate(ctx, base, gold)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", base.Identity(), err)
			}
			baseline = &baseReport.Metrics
		}
	}

	decision := gate.Decide(report.Metrics, baseline, cfg.Gate)

	out := struct {
		Report   *gate.Report  `yaml:"report"`
		Baseline *gate.Metrics `yaml:"baseline,omitempty"`
		Decision gate.Decision `yaml:"decision"`
	}{report, baseline, decision}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("error marshaling gate report: %w", err)
	}
	fmt.Print(string(data))

	if !decision.Promote {
		fmt.Fprintf(os.Stderr, "✗ %s did not pass the gate\n", report.Identity)
		return nil
	}
	fmt.Fprintf(os.Stderr, "✓ %s passed the gate\n", report.Identity)
	if !gateActivate {
		return nil
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	trials, err := a.store.TrialsParsedBy(ctx, report.Identity)
	if err != nil {
		return err
	}
	for _, id := range trials {
		if err := a.pipeline.Activate(ctx, id, report.Identity); err != nil {
			return fmt.Errorf("activate %s for %s: %w", report.Identity, id, err)
		}
	}
	fmt.Fprintf(os.Stderr, "✓ Activated %s for %d stored trials\n", report.Identity, len(trials))
	return nil
}
