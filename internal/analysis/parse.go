package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/user/vernacular/internal/types"
)

// ErrNoObject means the reply held no JSON object at all, which a new
// attempt may fix.
var ErrNoObject = errors.New("parse analysis reply: no JSON object found")

// reply is the JSON contract the model is asked to follow. Pointer fields
// distinguish "absent" from zero values.
type reply struct {
	Status          *string         `json:"status"`
	Message         *string         `json:"message"`
	InsightType     *string         `json:"insightType"`
	ConfidenceScore *float64        `json:"confidenceScore"`
	ChartData       json.RawMessage `json:"chartData"`
	TableData       json.RawMessage `json:"tableData"`
}

// ParseReply turns a model reply into a complete SessionState. Scalar fields
// the reply omits keep their value from current. RecordsLoaded is owned by
// the session and always comes from current. Chart and table data belong to
// a single answer and are never carried over.
func ParseReply(text string, current types.SessionState) (*types.SessionState, error) {
	obj, err := extractObject(text)
	if err != nil {
		return nil, err
	}

	var r reply
	if err := json.Unmarshal(obj, &r); err != nil {
		return nil, fmt.Errorf("parse analysis reply: %w", err)
	}

	next := current
	next.ChartData = nil
	next.TableData = nil
	next.Status = types.StatusIdle

	if r.Status != nil && types.Status(strings.ToUpper(*r.Status)) == types.StatusError {
		next.Status = types.StatusError
	}
	if r.Message != nil {
		next.Message = strings.TrimSpace(*r.Message)
	}
	if r.InsightType != nil {
		next.InsightType = types.InsightType(strings.ToUpper(strings.TrimSpace(*r.InsightType)))
	}
	if next.InsightType == "" {
		next.InsightType = types.InsightGeneric
	}
	if r.ConfidenceScore != nil {
		next.ConfidenceScore = clampConfidence(*r.ConfidenceScore)
	}
	next.ChartData = nonNull(r.ChartData)
	next.TableData = nonNull(r.TableData)

	return &next, nil
}

// extractObject returns the outermost JSON object in text, skipping Markdown
// code fences and any prose around it.
func extractObject(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, ErrNoObject
	}
	return []byte(s[start : end+1]), nil
}

func clampConfidence(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v)
	}
}

func nonNull(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}
