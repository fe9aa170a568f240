//go:build integration

package test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vernacular/internal/analysis"
	"github.com/user/vernacular/internal/delivery"
	"github.com/user/vernacular/internal/gateway"
	"github.com/user/vernacular/internal/identity"
	"github.com/user/vernacular/internal/preview"
	"github.com/user/vernacular/internal/types"
	"github.com/user/vernacular/internal/web"
	"github.com/user/vernacular/pkg/llm"
	"github.com/user/vernacular/pkg/llm/openai"
)

// fakeLLM answers chat completions with a fixed analysis reply and counts
// requests. The first request fails with 503 to exercise the retry path.
func fakeLLM(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
			return
		}

		var req struct {
			Messages []llm.Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		assert.Contains(t, req.Messages[0].Content, "sales.csv")

		reply := `{"status":"IDLE","message":"Aaj ki sales 350 rahi.","insightType":"FINANCIAL","confidenceScore":88,` +
			`"chartData":[{"name":"Mon","value":100},{"name":"Tue","value":250}]}`
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
			"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func post(t *testing.T, base, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(base+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int32
	llmSrv := fakeLLM(t, &calls)
	defer llmSrv.Close()

	budget, err := analysis.NewBudget("gpt-4o-mini", 8000, 1000)
	require.NoError(t, err)
	retry := analysis.DefaultRetryPolicy()
	retry.InitialDelay = 10 * time.Millisecond
	engine, err := analysis.New(openai.New(&llm.Config{BaseURL: llmSrv.URL, Model: "gpt-4o-mini", JSONMode: true}), budget,
		analysis.WithRetryPolicy(retry))
	require.NoError(t, err)

	notify := delivery.NewRegistry(nil)
	gw := gateway.New(identity.NewSimulated(nil, identity.WithDelays(0, 0)), gateway.Options{
		Engine:   engine,
		Notifier: notify,
		Timeout:  10 * time.Second,
		AuditDir: dir,
	})
	gw.Start()
	defer gw.Stop()

	srv := web.NewServer(gw, preview.New(0, nil), nil)
	celebrated := make(chan delivery.Notification, 1)
	notify.Register("web", srv.Celebrate)
	notify.Register("probe", func(_ context.Context, n delivery.Notification) error {
		celebrated <- n
		return nil
	})
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	resp := post(t, httpSrv.URL, "/api/login", `{"email":"owner@kirana.in","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, httpSrv.URL, "/api/sources", `{"name":"sales.csv","content":"day,amount\nMon,100\nTue,250\n"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = post(t, httpSrv.URL, "/api/commands", `{"text":"Aaj ki sales kaisi rahi?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap struct {
		Transcript []types.TranscriptMessage `json:"transcript"`
		State      types.SessionState        `json:"state"`
		DataLayer  string                    `json:"dataLayer"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))

	require.Len(t, snap.Transcript, 4)
	assert.Equal(t, "Aaj ki sales 350 rahi.", snap.Transcript[3].Text)
	assert.JSONEq(t, `[{"name":"Mon","value":100},{"name":"Tue","value":250}]`, string(snap.Transcript[3].ChartData))
	assert.Equal(t, types.StatusIdle, snap.State.Status)
	assert.Equal(t, 2, snap.State.RecordsLoaded)
	assert.Equal(t, "ACTIVE", snap.DataLayer)
	assert.Equal(t, int32(2), calls.Load())

	select {
	case n := <-celebrated:
		assert.Equal(t, 88, n.Confidence)
	case <-time.After(2 * time.Second):
		t.Fatal("no celebration dispatched")
	}
	notify.Wait()

	sess, err := gw.Session()
	require.NoError(t, err)
	f, err := os.Open(filepath.Join(dir, "audit", string(sess.ID())+".jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var lines int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m types.TranscriptMessage
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines++
	}
	assert.Equal(t, 4, lines)

	resp = post(t, httpSrv.URL, "/api/logout", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = gw.Session()
	assert.ErrorIs(t, err, gateway.ErrNoSession)
}
