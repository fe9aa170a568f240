package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/vernacular/internal/delivery"
	"github.com/user/vernacular/internal/identity"
	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/session"
	"github.com/user/vernacular/internal/transcript"
	"github.com/user/vernacular/internal/types"
)

// ErrNoSession is returned by Session while nobody is logged in.
var ErrNoSession = errors.New("no active session: login required")

// Options configures the sessions a Gateway creates.
type Options struct {
	Engine   types.AnalysisEngine
	Notifier delivery.Notifier
	Timeout  time.Duration

	// AuditDir enables the JSONL transcript mirror under AuditDir/audit.
	AuditDir string

	Logger *zap.Logger
}

// Gateway binds the identity provider to the session lifecycle. A session
// exists exactly while an identity is present; logging out discards it.
type Gateway struct {
	provider identity.Provider
	opts     Options
	log      *zap.Logger

	mu          sync.RWMutex
	current     *session.Orchestrator
	unsubscribe func()
}

// New creates a Gateway around provider. Call Start to begin tracking
// identity changes.
func New(provider identity.Provider, opts Options) *Gateway {
	return &Gateway{
		provider: provider,
		opts:     opts,
		log:      logging.Named(opts.Logger, "gateway"),
	}
}

// Start subscribes to the provider. The provider reports the current
// identity synchronously, so a session exists on return if someone is
// already logged in.
func (g *Gateway) Start() {
	g.mu.Lock()
	if g.unsubscribe != nil {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	unsub := g.provider.Subscribe(g.onIdentity)

	g.mu.Lock()
	g.unsubscribe = unsub
	g.mu.Unlock()
}

// Stop unsubscribes from the provider and drops the session.
func (g *Gateway) Stop() {
	g.mu.Lock()
	unsub := g.unsubscribe
	g.unsubscribe = nil
	g.current = nil
	g.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (g *Gateway) onIdentity(id *types.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id == nil {
		if g.current != nil {
			g.log.Info("session closed", zap.String("session_id", string(g.current.ID())))
		}
		g.current = nil
		return
	}
	if g.current != nil && g.current.Identity() != nil && g.current.Identity().ID == id.ID {
		return
	}

	sessionID := types.NewSessionID()
	var sink transcript.Sink
	if g.opts.AuditDir != "" {
		sink = transcript.NewJSONLSink(g.opts.AuditDir, sessionID)
	}
	g.current = session.New(sessionID, id, session.Options{
		Engine:   g.opts.Engine,
		Notifier: g.opts.Notifier,
		Timeout:  g.opts.Timeout,
		Sink:     sink,
		Logger:   g.opts.Logger,
	})
	g.log.Info("session opened",
		zap.String("session_id", string(sessionID)),
		zap.String("uid", string(id.ID)))
}

// Session returns the active session or ErrNoSession.
func (g *Gateway) Session() (*session.Orchestrator, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.current == nil {
		return nil, ErrNoSession
	}
	return g.current, nil
}

func (g *Gateway) Login(ctx context.Context, email, credential string) (*types.Identity, error) {
	return g.provider.Login(ctx, email, credential)
}

func (g *Gateway) Logout(ctx context.Context) error {
	return g.provider.Logout(ctx)
}

// Identity returns the logged-in identity or nil.
func (g *Gateway) Identity() *types.Identity {
	return g.provider.Current()
}

func (g *Gateway) Mode() identity.Mode {
	return g.provider.Mode()
}
