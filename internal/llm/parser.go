package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/segment"
	"github.com/ppiankov/trialmatch/internal/worker"
)

// parseSleepFunc waits between retries, returning early with the context's
// error when it is cancelled (injectable for tests)
var parseSleepFunc = sleepContext

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Parser is a model-assisted parser backend. Its output passes through the
// same evidence and fallback contract as the pattern backend.
type Parser struct {
	provider Provider
	config   Config
	limiter  *worker.Limiter
}

// NewParser wraps a provider. A nil limiter means no rate limit.
func NewParser(provider Provider, config Config, limiter *worker.Limiter) *Parser {
	if limiter == nil {
		limiter = worker.NewLimiter(0, 0)
	}
	return &Parser{provider: provider, config: config, limiter: limiter}
}

// Identity names the parser generation, e.g. "llm/openai"
func (p *Parser) Identity() string {
	return "llm/" + p.provider.Name()
}

// Parse asks the model for rules and keeps those citing their sentence verbatim
func (p *Parser) Parse(ctx context.Context, segs segment.Segments) ([]model.EligibilityRule, []string, error) {
	sentences := segs.Sentences()
	if len(sentences) == 0 {
		return nil, nil, nil
	}

	resp, err := p.complete(ctx, CompletionRequest{
		System: systemPrompt,
		Prompt: BuildPrompt(sentences),
		Model:  p.config.Model,
	})
	if err != nil {
		return nil, nil, err
	}

	raw, err := parseAnswer(resp.Text)
	if err != nil {
		return nil, nil, err
	}

	var rules []model.EligibilityRule
	var diagnostics []string
	for i, r := range raw {
		rule, err := p.convert(r, sentences)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("model rule %d: %v", i, err))
			continue
		}
		rules = append(rules, rule)
	}
	return rules, diagnostics, nil
}

// convert maps one model answer element onto a rule anchored in its sentence
func (p *Parser) convert(r rawRule, sentences []segment.Grouped) (model.EligibilityRule, error) {
	if r.Sentence < 1 || r.Sentence > len(sentences) {
		return model.EligibilityRule{}, fmt.Errorf("sentence %d out of range", r.Sentence)
	}
	sent := sentences[r.Sentence-1]

	field, err := model.ParseField(r.Field)
	if err != nil {
		return model.EligibilityRule{}, err
	}
	op, err := model.ParseOperator(r.Operator)
	if err != nil {
		return model.EligibilityRule{}, err
	}
	polarity := model.Polarity(strings.ToUpper(strings.TrimSpace(r.Polarity)))
	if !polarity.Valid() {
		polarity = sent.Resolved()
	}

	rule := model.EligibilityRule{
		Polarity:   polarity,
		Field:      field,
		Operator:   op,
		Value:      r.Value,
		Subject:    strings.ToLower(strings.TrimSpace(r.Subject)),
		Unit:       strings.TrimSpace(r.Unit),
		TimeWindow: strings.TrimSpace(r.TimeWindow),
		Certainty:  model.CertaintyExplicit,
	}

	at, err := CheckEvidence(r.Evidence, sent.Sentence)
	switch {
	case err == nil:
		rule.EvidenceText = r.Evidence
		rule.EvidenceOffset = at
	case p.config.StrictEvidence:
		return model.EligibilityRule{}, err
	default:
		rule.EvidenceText = sent.Text
		rule.EvidenceOffset = sent.Offset
		rule.Certainty = model.CertaintyInferred
	}
	return rule, nil
}

// CheckEvidence returns the offset of quote in the cleaned text when it is a
// verbatim part of sentence
func CheckEvidence(quote string, sentence segment.Sentence) (int, error) {
	if strings.TrimSpace(quote) == "" {
		return 0, fmt.Errorf("%w: empty evidence", ErrEvidenceLeak)
	}
	i := strings.Index(sentence.Text, quote)
	if i < 0 {
		return 0, fmt.Errorf("%w: %q is not in %q", ErrEvidenceLeak, quote, sentence.Text)
	}
	return sentence.Offset + i, nil
}

// complete calls the provider under the per-provider rate limit, retrying
// transient failures with exponential backoff
func (p *Parser) complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if err := parseSleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("retry backoff after %v: %w", lastErr, err)
			}
		}
		if err := p.limiter.Wait(ctx, p.provider.Name()); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := p.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
