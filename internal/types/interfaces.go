// internal/types/interfaces.go
package types

import "context"

// AnalysisEngine turns a natural-language command into a complete new
// SessionState. dataContext maps data source names to their raw content.
type AnalysisEngine interface {
	Analyze(ctx context.Context, command string, current SessionState, dataContext map[string]string) (*SessionState, error)
}

// AnalysisEngineFunc adapts a function to AnalysisEngine.
type AnalysisEngineFunc func(ctx context.Context, command string, current SessionState, dataContext map[string]string) (*SessionState, error)

func (f AnalysisEngineFunc) Analyze(ctx context.Context, command string, current SessionState, dataContext map[string]string) (*SessionState, error) {
	return f(ctx, command, current, dataContext)
}
