package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-magnet/internal/export"
	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/internal/resilience"
	"github.com/sells-group/lead-magnet/pkg/prospeo"
)

var fastRetry = resilience.RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
	Multiplier:     2,
}

func TestResponseNotifier_Post(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewResponseNotifier(WithHTTPClient(srv.Client()), WithRetry(fastRetry))
	require.NoError(t, n.Post(context.Background(), srv.URL, "done"))
	assert.Equal(t, Message{Text: "done", ResponseType: "ephemeral"}, got)
}

func TestResponseNotifier_EmptyURL(t *testing.T) {
	n := NewResponseNotifier()
	assert.NoError(t, n.Post(context.Background(), "", "ignored"))
}

func TestResponseNotifier_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewResponseNotifier(WithRetry(fastRetry))
	require.NoError(t, n.Post(context.Background(), srv.URL, "x"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestResponseNotifier_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	n := NewResponseNotifier(WithRetry(fastRetry))
	err := n.Post(context.Background(), srv.URL, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFormatSummary_TargetReached(t *testing.T) {
	res := &model.RunResult{
		Request: model.SearchRequest{TargetCount: 2},
		Stats: model.Stats{
			QualifiedPersons:   2,
			QualifiedCompanies: 1,
			CompaniesProcessed: 3,
			CompaniesSkipped:   1,
			CachedPersons:      1,
			TargetReached:      true,
			Duration:           90 * time.Second,
		},
	}
	msg := FormatSummary(res, []export.Report{
		{Name: "csv", Location: "output/qualified_leads_20260301_090507.csv"},
		{Name: "notion", Err: errors.New("unauthorized")},
	})

	assert.Contains(t, msg, "target of 2 reached")
	assert.Contains(t, msg, "Qualified leads: 2")
	assert.Contains(t, msg, "Companies evaluated: 3 (skipped 1)")
	assert.Contains(t, msg, "Reused from earlier searches: 1")
	assert.Contains(t, msg, "Duration: 1m30s")
	assert.Contains(t, msg, "csv: output/qualified_leads_20260301_090507.csv")
	assert.Contains(t, msg, "notion export failed: unauthorized")
}

func TestFormatSummary_Stops(t *testing.T) {
	kill := FormatSummary(&model.RunResult{Stats: model.Stats{KillSwitchActivated: true, CompaniesProcessed: 10}}, nil)
	assert.Contains(t, kill, "after evaluating 10 companies")
	assert.NotContains(t, kill, "Reused")

	done := FormatSummary(&model.RunResult{}, nil)
	assert.Contains(t, done, "no more matching companies")
}

func TestFormatError(t *testing.T) {
	fe := &prospeo.FilterError{StatusCode: 400, Code: "INVALID_FILTERS", Message: "Unknown industry: General"}
	msg := FormatError(eris.Wrap(fe, "leads: company search rejected filters"))
	assert.Contains(t, msg, "Prospeo rejected the search filters: Unknown industry: General")
	assert.Contains(t, msg, "https://prospeo.io/api-docs/enum/industries")

	ce := &CommandError{Problems: []string{"bad target"}}
	assert.Equal(t, "bad target", FormatError(ce))

	assert.Equal(t, "Lead search failed: boom", FormatError(errors.New("boom")))
}
