// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type SessionID string
type MessageID string
type UserID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// NewMessageID returns a ULID. IDs created by one process sort in creation
// order, including within the same millisecond.
func NewMessageID() MessageID {
	return MessageID(ulid.Make().String())
}
