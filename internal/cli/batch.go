package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trialmatch/internal/pipeline"
	"github.com/ppiankov/trialmatch/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchBackend string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Parse every trial in a directory in parallel",
	Long: `Batch parses a directory of eligibility texts concurrently:
- Each <trial-id>.txt file is one trial
- Trials are parsed in parallel with configurable worker count
- One trial's failure is reported and never stops the others
- Rule sets are stored, and optionally written as <trial-id>.json

Example:
  trialmatch batch ./trials
  trialmatch batch ./trials --concurrency 10 --output-dir ./rules
  trialmatch batch ./trials --backend anthropic --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "also write each rule set as JSON into this directory")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&batchBackend, "backend", "", "parser backend (pattern, llm, openai, anthropic, ollama); default from config")
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if batchBackend != "" {
		cfg.Parser.Backend = batchBackend
	}
	cfg.Concurrency.Workers = concurrency

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  trialmatch Batch Parse\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input dir:    %s\n", dir)
	fmt.Fprintf(os.Stderr, "  Parser:       %s\n", a.pipeline.Identity())
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	if outputDir != "" {
		fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	}
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	processor := worker.NewBatchProcessor(a.pipeline, concurrency)
	results, err := processor.ProcessDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("process directory: %w", err)
	}

	renderer := pipeline.NewRenderer(verbose)
	successCount := 0
	failureCount := 0
	fallbackCount := 0

	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.TrialID, result.Error)
			continue
		}

		successCount++
		fallbackCount += result.RuleSet.Coverage.Fallback
		printCoverage(result.RuleSet)

		if outputDir == "" {
			continue
		}
		path := filepath.Join(outputDir, sanitizeFilename(result.TrialID)+".json")
		f, err := os.Create(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.TrialID, err)
			continue
		}
		err = renderer.WriteJSON(f, result.RuleSet)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.TrialID, err)
		}
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:           %d trials\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:         %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:        %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Manual review:   %d criteria\n", fallbackCount)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 {
		return fmt.Errorf("%d of %d trials failed to parse", failureCount, len(results))
	}
	return nil
}

// sanitizeFilename makes a trial id safe to use as a file name
func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	)
	s = replacer.Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		s = "trial"
	}

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
