// Package analysis implements types.AnalysisEngine on top of an LLM
// provider.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/types"
	"github.com/user/vernacular/pkg/llm"
)

// PromptData is the data available to the system prompt template.
type PromptData struct {
	Time            string
	Status          types.Status
	Message         string
	RecordsLoaded   int
	InsightType     types.InsightType
	ConfidenceScore int
	Sources         []PromptSource
}

// PromptSource is one data source as shown to the model.
type PromptSource struct {
	Name      string
	Content   string
	Truncated bool
}

// Engine asks an LLM to analyse the loaded data sources.
type Engine struct {
	provider llm.Provider
	budget   *Budget
	retry    *RetryPolicy
	tmpl     *template.Template
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Engine)

func WithRetryPolicy(p *RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = logging.Named(log, "analysis") }
}

// WithPromptTemplate replaces DefaultPrompt.
func WithPromptTemplate(t *template.Template) Option {
	return func(e *Engine) { e.tmpl = t }
}

// New creates an Engine.
func New(provider llm.Provider, budget *Budget, opts ...Option) (*Engine, error) {
	tmpl, err := template.New("system").Parse(DefaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	e := &Engine{
		provider: provider,
		budget:   budget,
		retry:    DefaultRetryPolicy(),
		tmpl:     tmpl,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

var _ types.AnalysisEngine = (*Engine)(nil)

// Analyze implements types.AnalysisEngine.
func (e *Engine) Analyze(ctx context.Context, command string, current types.SessionState, data map[string]string) (*types.SessionState, error) {
	messages, err := e.BuildMessages(command, current, data)
	if err != nil {
		return nil, err
	}

	var result *types.SessionState
	attempt := 0
	err = e.retry.Execute(ctx, func(ctx context.Context) error {
		attempt++
		resp, err := e.provider.Complete(ctx, messages)
		if err != nil {
			e.log.Warn("provider call failed", zap.Int("attempt", attempt), zap.Error(err))
			return fmt.Errorf("complete: %w", err)
		}
		parsed, err := ParseReply(resp.Content, current)
		if err != nil {
			e.log.Warn("unparseable reply", zap.Int("attempt", attempt), zap.Error(err))
			if errors.Is(err, ErrNoObject) {
				return err
			}
			return Permanent(err)
		}
		e.log.Debug("analysis complete",
			zap.Int("input_tokens", resp.Usage.InputTokens),
			zap.Int("output_tokens", resp.Usage.OutputTokens))
		result = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return result, nil
}

// BuildMessages renders the system prompt with every source cut to its share
// of the token budget, followed by the user's command.
func (e *Engine) BuildMessages(command string, current types.SessionState, data map[string]string) ([]llm.Message, error) {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	pd := PromptData{
		Time:            e.now().Format(time.RFC3339),
		Status:          current.Status,
		Message:         current.Message,
		RecordsLoaded:   current.RecordsLoaded,
		InsightType:     current.InsightType,
		ConfidenceScore: current.ConfidenceScore,
	}

	skeleton, err := e.render(pd)
	if err != nil {
		return nil, err
	}
	fixed := e.budget.CountTokens(skeleton) + e.budget.CountTokens(command)
	perSource := e.budget.PerSource(fixed, len(names))

	for _, name := range names {
		content, cut := e.budget.Truncate(data[name], perSource)
		if cut {
			e.log.Info("source truncated to fit context", zap.String("source", name), zap.Int("token_limit", perSource))
		}
		pd.Sources = append(pd.Sources, PromptSource{Name: name, Content: content, Truncated: cut})
	}

	system, err := e.render(pd)
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: command},
	}, nil
}

func (e *Engine) render(pd PromptData) (string, error) {
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, pd); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
