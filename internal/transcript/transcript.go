// Package transcript implements the append-only conversation log.
package transcript

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/types"
)

// Sink mirrors appended messages somewhere outside the process.
type Sink interface {
	Write(msg types.TranscriptMessage) error
}

// Log is an append-only, insertion-ordered list of messages.
type Log struct {
	mu       sync.RWMutex
	messages []types.TranscriptMessage
	sink     Sink
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Log)

// WithSink mirrors every appended message to sink. Sink errors are logged.
func WithSink(sink Sink) Option {
	return func(l *Log) { l.sink = sink }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Log) { l.log = logging.Named(log, "transcript") }
}

func New(opts ...Option) *Log {
	l := &Log{log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append stores msg, filling in ID and Timestamp when unset, and returns
// the stored message.
func (l *Log) Append(msg types.TranscriptMessage) types.TranscriptMessage {
	if msg.ID == "" {
		msg.ID = types.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now()
	}

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.Write(msg); err != nil {
			l.log.Warn("audit sink write failed", zap.String("message_id", string(msg.ID)), zap.Error(err))
		}
	}
	return msg
}

// All returns a copy of every message in append order.
func (l *Log) All() []types.TranscriptMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.TranscriptMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Last returns the most recent message.
func (l *Log) Last() (types.TranscriptMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return types.TranscriptMessage{}, false
	}
	return l.messages[len(l.messages)-1], true
}
