// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusAnalyzing Status = "ANALYZING"
	StatusError     Status = "ERROR"
)

type InsightType string

const (
	InsightFinancial   InsightType = "FINANCIAL"
	InsightOperational InsightType = "OPERATIONAL"
	InsightGeneric     InsightType = "GENERIC"
)

// SessionState is the record of the current analysis cycle. Chart and table
// payloads are opaque to the session layer and passed through as raw JSON.
type SessionState struct {
	Status          Status          `json:"status"`
	Message         string          `json:"message"`
	RecordsLoaded   int             `json:"recordsLoaded"`
	InsightType     InsightType     `json:"insightType"`
	ConfidenceScore int             `json:"confidenceScore"`
	ChartData       json.RawMessage `json:"chartData,omitempty"`
	TableData       json.RawMessage `json:"tableData,omitempty"`
}

// InitialSessionState is the state every new session starts from.
func InitialSessionState() SessionState {
	return SessionState{
		Status:      StatusIdle,
		Message:     "System ready. Awaiting data.",
		InsightType: InsightGeneric,
	}
}

type Sender string

const (
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
)

type TranscriptMessage struct {
	ID        MessageID       `json:"id"`
	Sender    Sender          `json:"sender"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	ChartData json.RawMessage `json:"chartData,omitempty"`
	TableData json.RawMessage `json:"tableData,omitempty"`
}

// Identity is the authenticated principal. Email is nil when the backend
// does not expose one.
type Identity struct {
	ID          UserID  `json:"uid"`
	Email       *string `json:"email"`
	DisplayName string  `json:"displayName,omitempty"`
}

// EmailOrEmpty returns the email address or "" when unset.
func (i *Identity) EmailOrEmpty() string {
	if i == nil || i.Email == nil {
		return ""
	}
	return *i.Email
}

type DataSource struct {
	Name        string `json:"name"`
	RawContent  string `json:"rawContent"`
	RecordCount int    `json:"recordCount"`
}
