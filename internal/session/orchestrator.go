// Package session drives one authenticated user's analysis session: data
// ingestion, the command cycle and the transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/vernacular/internal/datactx"
	"github.com/user/vernacular/internal/delivery"
	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/transcript"
	"github.com/user/vernacular/internal/types"
)

const (
	WelcomeMessage     = "Hello. I am Vernacular Ops. \nUpload your business data (CSV) or ask me anything. \nExample: \"Aaj ki sales kaisi rahi?\""
	UnreachableMessage = "ERROR: Business logic core unreachable."
	DefaultReply       = "Analysis complete."

	// CelebrateThreshold is the confidence a financial insight must exceed
	// to trigger a celebration.
	CelebrateThreshold = 80

	DefaultTimeout = 60 * time.Second
)

// ErrEngineUnreachable classifies every analysis engine failure.
var ErrEngineUnreachable = errors.New("analysis engine unreachable")

// Options configures an Orchestrator.
type Options struct {
	Engine   types.AnalysisEngine
	Notifier delivery.Notifier
	Timeout  time.Duration
	Sink     transcript.Sink
	Logger   *zap.Logger
}

// Orchestrator owns the state, data context and transcript of one session.
// All mutations happen under mu; the engine call is made without it.
type Orchestrator struct {
	id       types.SessionID
	identity *types.Identity
	engine   types.AnalysisEngine
	notifier delivery.Notifier
	timeout  time.Duration
	log      *zap.Logger

	inflight *semaphore.Weighted

	mu         sync.Mutex
	state      types.SessionState
	store      *datactx.Store
	transcript *transcript.Log
}

// Source describes a loaded data source without its content.
type Source struct {
	Name        string `json:"name"`
	RecordCount int    `json:"recordCount"`
}

// Snapshot is a consistent copy of the session for presenters.
type Snapshot struct {
	ID         types.SessionID           `json:"id"`
	Identity   *types.Identity           `json:"identity"`
	Transcript []types.TranscriptMessage `json:"transcript"`
	State      types.SessionState        `json:"state"`
	Analyzing  bool                      `json:"analyzing"`
	Sources    []Source                  `json:"sources"`
}

// DataLayer is the indicator text for the data context.
func (s Snapshot) DataLayer() string {
	if len(s.Sources) > 0 {
		return "ACTIVE"
	}
	return "AWAITING INPUT"
}

// New creates a session for identity with the initial state and the welcome
// message.
func New(id types.SessionID, identity *types.Identity, opts Options) *Orchestrator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := logging.Named(opts.Logger, "session").With(zap.String("session_id", string(id)))

	tlOpts := []transcript.Option{transcript.WithLogger(opts.Logger)}
	if opts.Sink != nil {
		tlOpts = append(tlOpts, transcript.WithSink(opts.Sink))
	}

	o := &Orchestrator{
		id:         id,
		identity:   identity,
		engine:     opts.Engine,
		notifier:   opts.Notifier,
		timeout:    timeout,
		log:        log,
		inflight:   semaphore.NewWeighted(1),
		state:      types.InitialSessionState(),
		store:      datactx.NewStore(),
		transcript: transcript.New(tlOpts...),
	}
	o.transcript.Append(types.TranscriptMessage{Sender: types.SenderSystem, Text: WelcomeMessage})
	return o
}

func (o *Orchestrator) ID() types.SessionID { return o.id }

func (o *Orchestrator) Identity() *types.Identity { return o.identity }

// Ingest stores a data source and records it in the state and transcript.
// count is added to RecordsLoaded even when name replaces an existing source.
func (o *Orchestrator) Ingest(name, raw string, count int) error {
	if err := datactx.Validate(name, count); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	replaced, err := o.store.Ingest(name, raw, count)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", name, err)
	}
	o.state.RecordsLoaded += count
	o.state.Message = fmt.Sprintf("Loaded %s successfully.", name)
	o.transcript.Append(types.TranscriptMessage{
		Sender: types.SenderSystem,
		Text:   fmt.Sprintf("Data Loaded: %s\nAdded to context.", name),
	})

	o.log.Info("source ingested",
		zap.String("source", name),
		zap.Int("records", count),
		zap.Bool("replaced", replaced),
		zap.Int("records_loaded", o.state.RecordsLoaded))
	return nil
}

// Evict removes a data source and reports whether it was loaded. The
// removal is recorded in the transcript either way.
func (o *Orchestrator) Evict(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := o.store.Evict(name)
	o.transcript.Append(types.TranscriptMessage{
		Sender: types.SenderSystem,
		Text:   fmt.Sprintf("File removed from context: %s", name),
	})
	o.log.Info("source evicted", zap.String("source", name), zap.Bool("present", removed))
	return removed
}

// Source returns the raw content of a loaded source.
func (o *Orchestrator) Source(name string) (string, error) {
	return o.store.Get(name)
}

// Submit runs one command cycle and reports whether the command was
// accepted. Blank commands and commands issued while another is in flight
// are rejected without side effects. Engine failures are recorded in the
// transcript, never returned.
func (o *Orchestrator) Submit(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if !o.inflight.TryAcquire(1) {
		o.log.Debug("command rejected while analysis in flight")
		return false
	}

	next, ok := o.cycle(ctx, text)
	if ok && ShouldCelebrate(next) {
		o.celebrate(next)
	}
	return true
}

// cycle runs the engine and folds its result into the session. It releases
// the in-flight slot before returning.
func (o *Orchestrator) cycle(ctx context.Context, text string) (types.SessionState, bool) {
	defer o.inflight.Release(1)

	o.mu.Lock()
	o.transcript.Append(types.TranscriptMessage{Sender: types.SenderUser, Text: text})
	before := o.state
	ingested := o.store.RecordsIngested()
	o.state.Status = types.StatusAnalyzing
	data := o.store.Snapshot()
	o.mu.Unlock()

	started := time.Now()
	result, err := o.analyze(ctx, text, before, data)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.state.Status = types.StatusError
		o.transcript.Append(types.TranscriptMessage{Sender: types.SenderSystem, Text: UnreachableMessage})
		o.log.Error("command failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return o.state, false
	}

	next := *result
	// Sources ingested while the engine was working still count.
	next.RecordsLoaded += o.store.RecordsIngested() - ingested
	if next.Status == "" || next.Status == types.StatusAnalyzing {
		next.Status = types.StatusIdle
	}
	o.state = next

	reply := next.Message
	if reply == "" {
		reply = DefaultReply
	}
	o.transcript.Append(types.TranscriptMessage{
		Sender:    types.SenderSystem,
		Text:      reply,
		ChartData: next.ChartData,
		TableData: next.TableData,
	})

	o.log.Info("command completed",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("insight_type", string(next.InsightType)),
		zap.Int("confidence", next.ConfidenceScore),
		zap.Int("transcript_len", o.transcript.Len()))
	return next, true
}

// celebrate hands the insight to the notifier. Notifier failures are logged
// and never reach the caller of Submit.
func (o *Orchestrator) celebrate(s types.SessionState) {
	if o.notifier == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("celebration dispatch panicked", zap.Any("panic", rec))
		}
	}()
	o.notifier.Dispatch(delivery.Notification{
		Kind:        delivery.KindCelebrate,
		SessionID:   o.id,
		InsightType: s.InsightType,
		Confidence:  s.ConfidenceScore,
		Message:     s.Message,
	})
}

type outcome struct {
	result *types.SessionState
	err    error
}

// analyze calls the engine on its own goroutine so a hung engine that
// ignores ctx still times out. A late result is dropped.
func (o *Orchestrator) analyze(ctx context.Context, text string, before types.SessionState, data map[string]string) (*types.SessionState, error) {
	if o.engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", ErrEngineUnreachable)
	}

	actx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("engine panicked: %v", rec)}
			}
		}()
		result, err := o.engine.Analyze(actx, text, before, data)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-actx.Done():
		return nil, fmt.Errorf("%w: %w", ErrEngineUnreachable, actx.Err())
	}

	if out.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineUnreachable, out.err)
	}
	if out.result == nil {
		return nil, fmt.Errorf("%w: engine returned no result", ErrEngineUnreachable)
	}
	return out.result, nil
}

// ShouldCelebrate reports whether s is a financial insight with confidence
// above CelebrateThreshold.
func ShouldCelebrate(s types.SessionState) bool {
	return s.InsightType == types.InsightFinancial && s.ConfidenceScore > CelebrateThreshold
}

// Analyzing reports whether a command is in flight.
func (o *Orchestrator) Analyzing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Status == types.StatusAnalyzing
}

func (o *Orchestrator) State() types.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Transcript() []types.TranscriptMessage {
	return o.transcript.All()
}

// LastMessage returns the newest transcript entry.
func (o *Orchestrator) LastMessage() (types.TranscriptMessage, bool) {
	return o.transcript.Last()
}

// Snapshot returns a consistent copy of the whole session.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	srcs := o.store.Sources()
	sources := make([]Source, len(srcs))
	for i, s := range srcs {
		sources[i] = Source{Name: s.Name, RecordCount: s.RecordCount}
	}
	return Snapshot{
		ID:         o.id,
		Identity:   o.identity,
		Transcript: o.transcript.All(),
		State:      o.state,
		Analyzing:  o.state.Status == types.StatusAnalyzing,
		Sources:    sources,
	}
}
