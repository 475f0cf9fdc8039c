package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/pipeline"
)

var (
	matchJSON    string
	matchMD      string
	matchFormat  string
	matchTimeout time.Duration
	historyLimit int
)

// matchCmd represents the match command
var matchCmd = &cobra.Command{
	Use:   "match <trial-id>[,<trial-id>...] <patient-file|patient-id>",
	Short: "Match a patient against one or more parsed trials",
	Long: `Match evaluates every rule of a trial's active rule set against a patient
profile and reports PASS, FAIL or UNKNOWN per rule with the cited criterion,
plus an overall tier:

  LIKELY_ELIGIBLE     every rule passes
  POSSIBLY_ELIGIBLE   no disqualifier, some data missing
  LIKELY_INELIGIBLE   an exclusion criterion applies
  INSUFFICIENT_DATA   too much is unknown to say

The patient is a profile file (.json or .yaml), which is stored first, or the
id of a stored profile. Every evaluation is recorded for later review.

Example:
  trialmatch match NCT01234567 patient.json
  trialmatch match NCT01234567 patient-42 --format markdown
  trialmatch match NCT01234567,NCT07654321 patient.yaml --json report.json
  trialmatch match NCT01234567 patient-42 --history 5`,
	Args: cobra.ExactArgs(2),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVar(&matchJSON, "json", "", "write the JSON report to this path")
	matchCmd.Flags().StringVar(&matchMD, "md", "", "write the Markdown checklist to this path")
	matchCmd.Flags().StringVar(&matchFormat, "format", "", "stdout format (json, markdown, summary); default from config")
	matchCmd.Flags().DurationVar(&matchTimeout, "timeout", 30*time.Second, "match timeout")
	matchCmd.Flags().IntVar(&historyLimit, "history", 0, "show the last N recorded evaluations instead of evaluating")
}

func runMatch(cmd *cobra.Command, args []string) error {
	trialIDs := strings.Split(args[0], ",")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if matchFormat != "" {
		cfg.Output.Format = matchFormat
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), matchTimeout)
	defer cancel()

	patientID := args[1]
	if isFile(args[1]) {
		profile, err := readProfile(args[1])
		if err != nil {
			return err
		}
		if err := a.pipeline.PutPatient(ctx, profile); err != nil {
			return fmt.Errorf("store profile: %w", err)
		}
		patientID = profile.ID
	}

	var reports []*model.Report
	if historyLimit > 0 {
		for _, id := range trialIDs {
			history, err := a.pipeline.History(ctx, id, patientID, historyLimit)
			if err != nil {
				return fmt.Errorf("history for %s: %w", id, err)
			}
			for i := range history {
				reports = append(reports, &history[i])
			}
		}
	} else {
		reports, err = a.pipeline.MatchTrials(ctx, patientID, trialIDs)
		if err != nil {
			return fmt.Errorf("match failed: %w", err)
		}
	}

	return writeReports(reports, cfg.Output)
}

// writeReports prints reports to stdout in the chosen format and writes the
// optional files. With several reports the file paths get a trial suffix.
func writeReports(reports []*model.Report, out model.OutputConfig) error {
	renderer := pipeline.NewRenderer(out.Verbose || verbose)

	for _, report := range reports {
		if report.Stale {
			fmt.Fprintf(os.Stderr, "! %s was computed before the latest profile or rule update\n", report.Subject)
		}

		var err error
		switch out.Format {
		case "markdown", "md":
			err = renderer.WriteMarkdown(os.Stdout, report)
		case "summary":
			renderer.RenderSummary(os.Stdout, report)
		default:
			err = renderer.WriteJSON(os.Stdout, report)
		}
		if err != nil {
			return err
		}

		if matchJSON != "" {
			if err := renderer.RenderJSON(report, reportPath(matchJSON, report, len(reports))); err != nil {
				return err
			}
		}
		if matchMD != "" {
			if err := renderer.RenderMarkdown(report, reportPath(matchMD, report, len(reports))); err != nil {
				return err
			}
		}
	}
	return nil
}

func reportPath(path string, report *model.Report, n int) string {
	if n <= 1 {
		return path
	}
	dot := strings.LastIndex(path, ".")
	suffix := "-" + sanitizeFilename(report.Summary.TrialID)
	if len(report.RecordID) >= 8 {
		suffix += "-" + report.RecordID[:8]
	}
	if dot <= 0 {
		return path + suffix
	}
	return path[:dot] + suffix + path[dot:]
}
