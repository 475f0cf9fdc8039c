package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
)

// Renderer writes reports as JSON or as a Markdown checklist
type Renderer struct {
	verbose bool
}

// NewRenderer creates a renderer. Verbose Markdown adds verdict details and diagnostics.
func NewRenderer(verbose bool) *Renderer {
	return &Renderer{verbose: verbose}
}

// WriteJSON writes any value as indented JSON
func (r *Renderer) WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// RenderJSON writes a report to path
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteJSON(w, report) })
}

// RenderMarkdown writes a report checklist to path
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteMarkdown(w, report) })
}

// WriteMarkdown writes the checklist: one line per rule in rule order, the
// cited evidence under each, and the disclaimer last
func (r *Renderer) WriteMarkdown(w io.Writer, report *model.Report) error {
	var b strings.Builder
	s := report.Summary

	fmt.Fprintf(&b, "# Eligibility pre-screen: %s\n\n", report.Subject)
	fmt.Fprintf(&b, "**Tier:** %s\n\n", s.Tier)
	fmt.Fprintf(&b, "| Pass | Fail | Unknown | Total |\n|---|---|---|---|\n| %d | %d | %d | %d |\n\n",
		s.Pass, s.Fail, s.Unknown, s.Total())
	if s.ParserIdentity != "" {
		fmt.Fprintf(&b, "Rules parsed by `%s`", s.ParserIdentity)
		if !s.RulesParsedAt.IsZero() {
			fmt.Fprintf(&b, " at %s", s.RulesParsedAt.Format("2006-01-02 15:04 MST"))
		}
		fmt.Fprintf(&b, ". Evaluated %s.\n\n", s.EvaluatedAt.Format("2006-01-02 15:04 MST"))
	}
	if report.Stale {
		b.WriteString("> **Stale:** the patient profile or the trial rules changed after this evaluation.\n\n")
	}

	for _, section := range []struct {
		title    string
		polarity model.Polarity
	}{
		{"Inclusion criteria", model.Inclusion},
		{"Exclusion criteria", model.Exclusion},
	} {
		var rows []model.MatchVerdict
		for _, v := range report.Verdicts {
			if v.Rule.Polarity == section.polarity {
				rows = append(rows, v)
			}
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", section.title)
		for _, v := range rows {
			r.writeVerdict(&b, v)
		}
		b.WriteString("\n")
	}

	if actions := requiredActions(report.Verdicts); len(actions) > 0 {
		b.WriteString("## To complete this assessment\n\n")
		for _, a := range actions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\n_%s_\n", report.Disclaimer)

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) writeVerdict(b *strings.Builder, v model.MatchVerdict) {
	box := " "
	if v.Outcome == model.OutcomePass {
		box = "x"
	}
	fmt.Fprintf(b, "- [%s] **%s** %s\n", box, v.Outcome, ruleLabel(v.Rule))
	fmt.Fprintf(b, "  > %s\n", v.Rule.EvidenceText)
	if v.Outcome == model.OutcomeUnknown && v.RequiredAction != "" {
		fmt.Fprintf(b, "  - Needed: %s\n", v.RequiredAction)
	}
	if r.verbose {
		if v.Detail != "" {
			fmt.Fprintf(b, "  - Detail: %s\n", v.Detail)
		}
		if v.Diagnostic != "" {
			fmt.Fprintf(b, "  - Diagnostic: %s\n", v.Diagnostic)
		}
	}
}

func ruleLabel(rule model.EligibilityRule) string {
	if rule.IsFallback() {
		return "criterion needs manual review"
	}
	parts := []string{string(rule.Field)}
	if rule.Subject != "" {
		parts = append(parts, rule.Subject)
	}
	parts = append(parts, string(rule.Operator))
	if len(rule.Value) > 0 {
		parts = append(parts, strings.Join(rule.Value, ", "))
	}
	if rule.Unit != "" && rule.TimeWindow == "" {
		parts = append(parts, rule.Unit)
	}
	if rule.TimeWindow != "" {
		parts = append(parts, rule.TimeWindow)
	}
	return "`" + strings.Join(parts, " ") + "`"
}

// requiredActions lists each distinct action once, in verdict order
func requiredActions(verdicts []model.MatchVerdict) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range verdicts {
		if v.RequiredAction == "" || seen[v.RequiredAction] {
			continue
		}
		seen[v.RequiredAction] = true
		out = append(out, v.RequiredAction)
	}
	return out
}

// RenderSummary prints a one-line summary per report
func (r *Renderer) RenderSummary(w io.Writer, report *model.Report) {
	s := report.Summary
	fmt.Fprintf(w, "%s: %s (pass %d, fail %d, unknown %d)\n", report.Subject, s.Tier, s.Pass, s.Fail, s.Unknown)
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return write(f)
}
