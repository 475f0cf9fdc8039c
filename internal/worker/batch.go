package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
)

// Parser parses and stores one trial's eligibility text
type Parser interface {
	ParseTrial(ctx context.Context, trialID, text string) (*model.RuleSet, error)
}

// Trial is one unit of batch input
type Trial struct {
	ID   string
	Text string
}

// ParseJob parses one trial
type ParseJob struct {
	Trial  Trial
	Parser Parser
}

// Execute executes the parse job
func (j *ParseJob) Execute(ctx context.Context) Result {
	set, err := j.Parser.ParseTrial(ctx, j.Trial.ID, j.Trial.Text)
	if err != nil {
		return &ParseResult{TrialID: j.Trial.ID, Error: err}
	}
	return &ParseResult{TrialID: j.Trial.ID, RuleSet: set}
}

// ParseResult represents the result of a parse job
type ParseResult struct {
	TrialID string
	RuleSet *model.RuleSet
	Error   error
}

// GetError returns the error from the parse result
func (r *ParseResult) GetError() error {
	return r.Error
}

// BatchProcessor parses many trials concurrently. One trial's failure is
// reported in its result and never affects the others.
type BatchProcessor struct {
	parser      Parser
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(parser Parser, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		parser:      parser,
		concurrency: concurrency,
	}
}

// ProcessTrials parses trials concurrently and returns results ordered by trial id
func (b *BatchProcessor) ProcessTrials(ctx context.Context, trials []Trial) []*ParseResult {
	if len(trials) == 0 {
		return []*ParseResult{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	// Drain while submitting so a large batch never fills both queues
	collected := make(chan []*ParseResult, 1)
	go func() {
		var out []*ParseResult
		for result := range pool.Results() {
			out = append(out, result.(*ParseResult))
		}
		collected <- out
	}()

	for _, trial := range trials {
		if ctx.Err() != nil {
			break
		}
		pool.Submit(&ParseJob{Trial: trial, Parser: b.parser})
	}
	pool.Close()

	results := <-collected
	sort.Slice(results, func(i, j int) bool { return results[i].TrialID < results[j].TrialID })
	return results
}

// ProcessDir parses every <trial-id>.txt file in dir
func (b *BatchProcessor) ProcessDir(ctx context.Context, dir string) ([]*ParseResult, error) {
	trials, err := ReadTrialDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read trials: %w", err)
	}

	return b.ProcessTrials(ctx, trials), nil
}

// ReadTrialDir reads <trial-id>.txt files from dir, sorted by trial id.
// Hidden files and other extensions are skipped.
func ReadTrialDir(dir string) ([]Trial, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open dir: %w", err)
	}

	var trials []Trial
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".txt" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		trials = append(trials, Trial{
			ID:   strings.TrimSuffix(name, ".txt"),
			Text: string(data),
		})
	}

	sort.Slice(trials, func(i, j int) bool { return trials[i].ID < trials[j].ID })
	return trials, nil
}
