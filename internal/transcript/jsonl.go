package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/vernacular/internal/types"
)

// JSONLSink appends one JSON object per message to
// <root>/audit/<sessionID>.jsonl. The file is never read back.
type JSONLSink struct {
	path string
	mu   sync.Mutex
}

func NewJSONLSink(root string, sessionID types.SessionID) *JSONLSink {
	return &JSONLSink{path: filepath.Join(root, "audit", string(sessionID)+".jsonl")}
}

// Path returns the file the sink writes to.
func (s *JSONLSink) Path() string { return s.path }

func (s *JSONLSink) Write(msg types.TranscriptMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
