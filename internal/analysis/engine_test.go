package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vernacular/internal/types"
	"github.com/user/vernacular/pkg/llm"
)

// fakeProvider replays scripted replies and records requests.
type fakeProvider struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests [][]llm.Message
}

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, messages)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := "{}"
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llm.Response{Content: reply, Usage: llm.Usage{InputTokens: 100, OutputTokens: 20}}, nil
}

func newTestEngine(t *testing.T, p llm.Provider, maxTokens int) *Engine {
	t.Helper()
	budget, err := NewBudget("gpt-4", maxTokens, 100)
	require.NoError(t, err)
	e, err := New(p, budget, WithRetryPolicy(fastPolicy(3)))
	require.NoError(t, err)
	e.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	return e
}

func TestAnalyze(t *testing.T) {
	p := &fakeProvider{replies: []string{
		`{"message":"Aaj ki sales 12% upar hain.","insightType":"FINANCIAL","confidenceScore":88,"chartData":[{"name":"Mon","value":120}]}`,
	}}
	e := newTestEngine(t, p, 128000)

	current := types.InitialSessionState()
	current.RecordsLoaded = 150
	got, err := e.Analyze(context.Background(), "Aaj ki sales kaisi rahi?", current, map[string]string{
		"sales.csv": "date,amount\n2026-10-16,100\n2026-10-17,112",
	})
	require.NoError(t, err)

	assert.Equal(t, types.InsightFinancial, got.InsightType)
	assert.Equal(t, 88, got.ConfidenceScore)
	assert.Equal(t, 150, got.RecordsLoaded)

	require.Len(t, p.requests, 1)
	msgs := p.requests[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "### sales.csv")
	assert.Contains(t, msgs[0].Content, "2026-10-17,112")
	assert.Contains(t, msgs[0].Content, "Records loaded so far: 150")
	assert.Contains(t, msgs[0].Content, "2026-10-17T09:00:00Z")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Aaj ki sales kaisi rahi?"}, msgs[1])
}

func TestAnalyzeNoSources(t *testing.T) {
	p := &fakeProvider{replies: []string{`{"message":"Please upload data."}`}}
	e := newTestEngine(t, p, 128000)

	_, err := e.Analyze(context.Background(), "hello", types.InitialSessionState(), nil)
	require.NoError(t, err)
	assert.Contains(t, p.requests[0][0].Content, "No data sources are loaded")
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{
		errs:    []error{&llm.APIError{StatusCode: 503}, errors.New("connection reset by peer")},
		replies: []string{"", "", `{"message":"third time lucky"}`},
	}
	e := newTestEngine(t, p, 128000)

	got, err := e.Analyze(context.Background(), "q", types.InitialSessionState(), nil)
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", got.Message)
	assert.Len(t, p.requests, 3)
}

func TestAnalyzePermanentFailure(t *testing.T) {
	p := &fakeProvider{errs: []error{&llm.APIError{StatusCode: 401, Body: "bad key"}}}
	e := newTestEngine(t, p, 128000)

	_, err := e.Analyze(context.Background(), "q", types.InitialSessionState(), nil)
	require.Error(t, err)
	var apiErr *llm.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Len(t, p.requests, 1)
}

func TestAnalyzeUnparseableReply(t *testing.T) {
	p := &fakeProvider{replies: []string{"I cannot help", "still prose", "nope"}}
	e := newTestEngine(t, p, 128000)

	_, err := e.Analyze(context.Background(), "q", types.InitialSessionState(), nil)
	assert.ErrorIs(t, err, ErrNoObject)
	assert.Len(t, p.requests, 3)
}

func TestAnalyzeMalformedObjectIsNotRetried(t *testing.T) {
	p := &fakeProvider{replies: []string{`{"confidenceScore":"high"}`, `{"message":"unused"}`}}
	e := newTestEngine(t, p, 128000)

	_, err := e.Analyze(context.Background(), "q", types.InitialSessionState(), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoObject)
	assert.Len(t, p.requests, 1)
}

func TestBuildMessagesTruncatesLargeSources(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{}, 2000)

	big := strings.Repeat("2026-10-17,widget,12.50\n", 2000)
	msgs, err := e.BuildMessages("summarise", types.InitialSessionState(), map[string]string{
		"a.csv": big,
		"b.csv": "sku,qty\nx,1",
	})
	require.NoError(t, err)

	system := msgs[0].Content
	assert.Contains(t, system, "### a.csv (truncated)")
	assert.Contains(t, system, TruncationMarker)
	assert.Contains(t, system, "### b.csv\n")
	assert.Less(t, e.budget.CountTokens(system), 2000)
	assert.Less(t, strings.Index(system, "### a.csv"), strings.Index(system, "### b.csv"), "sources are listed by name")
}

func TestBudget(t *testing.T) {
	b, err := NewBudget("unknown-model-falls-back", 10000, 1000)
	require.NoError(t, err)

	assert.Equal(t, 0, b.PerSource(100, 0))
	assert.Equal(t, int(float64(10000-1000-100)*0.7)/2, b.PerSource(100, 2))
	assert.Equal(t, 0, b.PerSource(20000, 1))

	text, cut := b.Truncate("hello world", 100)
	assert.False(t, cut)
	assert.Equal(t, "hello world", text)

	text, cut = b.Truncate(strings.Repeat("word ", 50), 5)
	assert.True(t, cut)
	assert.True(t, strings.HasSuffix(text, TruncationMarker))

	text, cut = b.Truncate("hello world", 0)
	assert.True(t, cut)
	assert.Equal(t, TruncationMarker, text)
}
