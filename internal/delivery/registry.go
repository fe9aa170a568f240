// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/types"
)

// Kind names a notification.
type Kind string

// KindCelebrate is sent after a high-confidence financial insight.
const KindCelebrate Kind = "celebrate"

// Notification is a side effect requested by a session.
type Notification struct {
	Kind        Kind              `json:"kind"`
	SessionID   types.SessionID   `json:"sessionId"`
	InsightType types.InsightType `json:"insightType"`
	Confidence  int               `json:"confidence"`
	Message     string            `json:"message"`
	At          time.Time         `json:"at"`
}

// Handler presents a notification, e.g. confetti in a browser or a sticker
// in a chat.
type Handler func(ctx context.Context, n Notification) error

// Notifier accepts notifications without blocking the caller.
type Notifier interface {
	Dispatch(n Notification)
}

// Registry fans notifications out to named handlers. Dispatch runs each
// handler on its own goroutine; handler errors and panics are logged.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	timeout  time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

// NewRegistry creates an empty delivery registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		timeout:  10 * time.Second,
		log:      logging.Named(log, "delivery"),
	}
}

// Register adds or replaces the handler for name and returns a func that
// removes it.
func (r *Registry) Register(name string, handler Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, name)
	}
}

// Dispatch hands n to every registered handler and returns immediately.
func (r *Registry) Dispatch(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}

	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	handlers := make([]Handler, len(names))
	for i, name := range names {
		handlers[i] = r.handlers[name]
	}
	r.mu.RUnlock()

	for i := range names {
		name, handler := names[i], handlers[i]
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			if err := r.call(ctx, name, handler, n); err != nil {
				r.log.Warn("notification delivery failed",
					zap.String("handler", name),
					zap.String("kind", string(n.Kind)),
					zap.Error(err))
			}
		}()
	}
}

func (r *Registry) call(ctx context.Context, name string, handler Handler, n Notification) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler %s panicked: %v", name, rec)
		}
	}()
	return handler(ctx, n)
}

// Wait blocks until every dispatched handler has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}
