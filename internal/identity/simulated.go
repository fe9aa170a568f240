package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/types"
)

const (
	defaultLoginDelay  = time.Second
	defaultLogoutDelay = 500 * time.Millisecond
)

// Simulated is an in-process provider that accepts any well-formed email
// with a non-empty credential.
type Simulated struct {
	registry    *Registry
	loginDelay  time.Duration
	logoutDelay time.Duration
	log         *zap.Logger
}

type SimulatedOption func(*Simulated)

// WithDelays overrides the simulated login and logout latency.
func WithDelays(login, logout time.Duration) SimulatedOption {
	return func(s *Simulated) {
		s.loginDelay = login
		s.logoutDelay = logout
	}
}

func NewSimulated(log *zap.Logger, opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		registry:    NewRegistry(),
		loginDelay:  defaultLoginDelay,
		logoutDelay: defaultLogoutDelay,
		log:         logging.Named(log, "identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) Login(ctx context.Context, email, credential string) (*types.Identity, error) {
	if err := sleep(ctx, s.loginDelay); err != nil {
		return nil, ErrUnknown(err)
	}
	local, _, ok := strings.Cut(email, "@")
	if !ok {
		return nil, ErrInvalidEmailFormat(errors.New("invalid email format"))
	}
	if credential == "" {
		return nil, ErrInvalidCredential(errors.New("empty credential"))
	}

	addr := email
	id := &types.Identity{
		ID:          types.UserID("mock-user-" + randomSuffix()),
		Email:       &addr,
		DisplayName: local,
	}
	s.log.Info("simulated login", zap.String("uid", string(id.ID)))
	s.registry.Publish(id)
	return id, nil
}

func (s *Simulated) Logout(ctx context.Context) error {
	err := sleep(ctx, s.logoutDelay)
	s.registry.Publish(nil)
	if err != nil {
		return ErrUnknown(err)
	}
	return nil
}

func (s *Simulated) Subscribe(fn Listener) func() { return s.registry.Subscribe(fn) }

func (s *Simulated) Current() *types.Identity { return s.registry.Current() }

func (s *Simulated) Mode() Mode { return ModeSimulated }

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
