package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/pipeline"
)

var (
	parseBackend string
	parseOut     string
	parseTimeout time.Duration
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <trial-id> <file|->",
	Short: "Parse a trial's eligibility text into evidence-linked rules",
	Long: `Parse splits eligibility text into inclusion and exclusion sentences and
turns each into structured rules. Every rule cites the sentence it came from;
sentences no rule covers are kept as "needs manual review" placeholders.

The rule set is stored under the trial id. The first rule set a trial gets
becomes the one matching uses.

Example:
  trialmatch parse NCT01234567 criteria.txt
  trialmatch parse NCT01234567 - < criteria.txt --out rules.json
  trialmatch parse NCT01234567 criteria.txt --backend openai`,
	Args: cobra.ExactArgs(2),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parseBackend, "backend", "", "parser backend (pattern, llm, openai, anthropic, ollama); default from config")
	parseCmd.Flags().StringVar(&parseOut, "out", "", "write the rule set JSON to this path instead of stdout")
	parseCmd.Flags().DurationVar(&parseTimeout, "timeout", 2*time.Minute, "parse timeout")
}

func runParse(cmd *cobra.Command, args []string) error {
	trialID := args[0]
	text, err := readText(args[1])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if parseBackend != "" {
		cfg.Parser.Backend = parseBackend
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), parseTimeout)
	defer cancel()

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Parsing %s with %s...\n", trialID, a.pipeline.Identity())
	}

	set, err := a.pipeline.ParseTrial(ctx, trialID, text)
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}

	printCoverage(set)

	renderer := pipeline.NewRenderer(verbose)
	if parseOut == "" {
		return renderer.WriteJSON(os.Stdout, set)
	}
	f, err := os.Create(parseOut)
	if err != nil {
		return fmt.Errorf("create %s: %w", parseOut, err)
	}
	if err := renderer.WriteJSON(f, set); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", parseOut)
	return nil
}

func printCoverage(set *model.RuleSet) {
	c := set.Coverage
	fmt.Fprintf(os.Stderr, "✓ %s: %d rules from %d sentences (%d need manual review)\n",
		set.TrialID, c.Rules, c.Sentences, c.Fallback)
	if verbose {
		for _, d := range set.Diagnostics {
			fmt.Fprintf(os.Stderr, "  ! %s\n", d)
		}
	}
}
