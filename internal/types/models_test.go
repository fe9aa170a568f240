// internal/types/models_test.go
package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialSessionState(t *testing.T) {
	s := InitialSessionState()
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, InsightGeneric, s.InsightType)
	assert.Zero(t, s.RecordsLoaded)
	assert.Zero(t, s.ConfidenceScore)
	assert.NotEmpty(t, s.Message)
}

func TestSessionStateDecodesEngineJSON(t *testing.T) {
	raw := `{"status":"IDLE","message":"Sales up 12%","recordsLoaded":150,
		"insightType":"FINANCIAL","confidenceScore":91,
		"chartData":[{"name":"Mon","value":10}]}`

	var s SessionState
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, InsightFinancial, s.InsightType)
	assert.Equal(t, 91, s.ConfidenceScore)
	assert.JSONEq(t, `[{"name":"Mon","value":10}]`, string(s.ChartData))
	assert.Nil(t, s.TableData)
}

func TestIdentityEmailOrEmpty(t *testing.T) {
	var nilIdentity *Identity
	assert.Equal(t, "", nilIdentity.EmailOrEmpty())

	email := "a@b.com"
	assert.Equal(t, "a@b.com", (&Identity{Email: &email}).EmailOrEmpty())
	assert.Equal(t, "", (&Identity{}).EmailOrEmpty())
}
