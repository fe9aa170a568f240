package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vernacular/internal/delivery"
	"github.com/user/vernacular/internal/gateway"
	"github.com/user/vernacular/internal/identity"
	"github.com/user/vernacular/internal/preview"
	"github.com/user/vernacular/internal/session"
	"github.com/user/vernacular/internal/types"
)

func newGateway(t *testing.T, engine types.AnalysisEngine) *gateway.Gateway {
	t.Helper()
	gw := gateway.New(identity.NewSimulated(nil, identity.WithDelays(0, 0)), gateway.Options{Engine: engine})
	gw.Start()
	t.Cleanup(gw.Stop)
	return gw
}

func script(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestREPLSession(t *testing.T) {
	engine := types.AnalysisEngineFunc(func(_ context.Context, cmd string, cur types.SessionState, data map[string]string) (*types.SessionState, error) {
		next := cur
		next.Message = "Sales total 180."
		next.InsightType = types.InsightFinancial
		next.ConfidenceScore = 70
		next.ChartData = json.RawMessage(`[{"name":"Mon","value":100},{"name":"Tue","value":80}]`)
		return &next, nil
	})
	gw := newGateway(t, engine)

	var out bytes.Buffer
	r := New(gw, preview.New(preview.DefaultRows, nil), script(
		"ops",
		"pw",
		"ops@example.com",
		"pw",
		":load /data/sales.csv",
		":sources",
		":preview sales.csv",
		"Aaj ki sales kaisi rahi?",
		":status",
		":drop sales.csv",
		":sources",
		":bogus",
		":logout",
	), &out, nil)
	r.readFile = func(path string) ([]byte, error) {
		require.Equal(t, "/data/sales.csv", path)
		return []byte("day,amount\nMon,100\nTue,80\n"), nil
	}

	require.NoError(t, r.Run(context.Background()))
	text := out.String()

	assert.Contains(t, text, identity.UserMessage(identity.CodeInvalidEmailFormat))
	assert.Contains(t, text, "Hello. I am Vernacular Ops.")
	assert.Contains(t, text, "Data Loaded: sales.csv")
	assert.Contains(t, text, "sales.csv")
	assert.Contains(t, text, "PREVIEW MODE (TOP 100 ROWS)")
	assert.Contains(t, text, "Sales total 180.")
	assert.Contains(t, text, "████████████████████████")
	assert.Contains(t, text, "FINANCIAL (70%)")
	assert.Contains(t, text, "ACTIVE")
	assert.Contains(t, text, "File removed from context: sales.csv")
	assert.Contains(t, text, preview.EmptyState)
	assert.Contains(t, text, "unknown command :bogus")

	_, err := gw.Session()
	assert.ErrorIs(t, err, gateway.ErrNoSession)
}

func TestREPLQuit(t *testing.T) {
	gw := newGateway(t, nil)
	var out bytes.Buffer
	r := New(gw, nil, script("ops@example.com", "pw", ":quit", "never read"), &out, nil)

	require.NoError(t, r.Run(context.Background()))
	_, err := gw.Session()
	assert.NoError(t, err, "quit keeps the session")
}

func TestREPLEngineFailure(t *testing.T) {
	gw := newGateway(t, nil)
	var out bytes.Buffer
	r := New(gw, nil, script("ops@example.com", "pw", "hello", ":quit"), &out, nil)

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), session.UnreachableMessage)
}

func TestREPLLoadMissingFile(t *testing.T) {
	gw := newGateway(t, nil)
	var out bytes.Buffer
	r := New(gw, nil, script("ops@example.com", "pw", ":load", ":load nope.csv", ":quit"), &out, nil)
	r.readFile = func(string) ([]byte, error) { return nil, os.ErrNotExist }

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "usage: :load <path>")
	assert.Contains(t, out.String(), os.ErrNotExist.Error())
}

func TestCelebrate(t *testing.T) {
	var out bytes.Buffer
	r := New(newGateway(t, nil), nil, strings.NewReader(""), &out, nil)

	require.NoError(t, r.Celebrate(context.Background(), delivery.Notification{InsightType: types.InsightFinancial, Confidence: 95}))
	assert.Contains(t, out.String(), "strong financial insight, confidence 95%")
}

func TestRenderPreview(t *testing.T) {
	tbl, err := preview.New(2, nil).Parse("a,b\n1,2\n3,4\n5,6\n")
	require.NoError(t, err)

	text := RenderPreview(NewStyles(&bytes.Buffer{}), tbl)
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "a")
	assert.Contains(t, lines[2], "1")
	assert.NotContains(t, text, "5")
	assert.Contains(t, lines[4], "PREVIEW MODE (TOP 2 ROWS)  3 records")
}
