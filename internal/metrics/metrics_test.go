package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/trialmatch/internal/model"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveParse(t *testing.T) {
	m := New()
	set := &model.RuleSet{Coverage: model.Coverage{Sentences: 4, Rules: 4, Fallback: 1}}

	m.ObserveParse("pattern/v1", set, nil, 10*time.Millisecond)
	m.ObserveParse("pattern/v1", nil, errors.New("boom"), time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `trialmatch_parses_total{identity="pattern/v1",status="ok"} 1`)
	assert.Contains(t, body, `trialmatch_parses_total{identity="pattern/v1",status="error"} 1`)
	assert.Contains(t, body, `trialmatch_rules_parsed_total{identity="pattern/v1"} 4`)
	assert.Contains(t, body, `trialmatch_fallback_rules_total{identity="pattern/v1"} 1`)
	assert.Contains(t, body, `trialmatch_parse_duration_seconds_count{identity="pattern/v1"} 2`)
}

func TestObserveMatch(t *testing.T) {
	m := New()
	m.ObserveMatch(model.MatchResult{Summary: model.MatchSummary{
		Pass: 3, Fail: 1, Unknown: 2, Tier: model.TierLikelyIneligible,
	}})

	body := scrape(t, m)
	assert.Contains(t, body, `trialmatch_matches_total{tier="LIKELY_INELIGIBLE"} 1`)
	assert.Contains(t, body, `trialmatch_verdicts_total{outcome="PASS"} 3`)
	assert.Contains(t, body, `trialmatch_verdicts_total{outcome="UNKNOWN"} 2`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveParse("x", nil, nil, 0)
		m.ObserveMatch(model.MatchResult{})
		m.CacheLookup(true)
		m.StoreError()
		m.QueueDepth(3)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.StoreError()
	m.QueueDepth(7)

	body := scrape(t, m)
	assert.Contains(t, body, `trialmatch_rule_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, `trialmatch_rule_cache_lookups_total{result="miss"} 1`)
	assert.Contains(t, body, "trialmatch_store_errors_total 1")
	assert.Contains(t, body, "trialmatch_parse_queue_depth 7")
	assert.Contains(t, body, "go_goroutines")
}
