package identity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/types"
	"github.com/user/vernacular/pkg/auth"
)

// Delegating forwards to a remote auth.Backend and translates its failures.
type Delegating struct {
	backend  auth.Backend
	registry *Registry
	log      *zap.Logger
}

func NewDelegating(backend auth.Backend, log *zap.Logger) *Delegating {
	return &Delegating{
		backend:  backend,
		registry: NewRegistry(),
		log:      logging.Named(log, "identity"),
	}
}

func (d *Delegating) Login(ctx context.Context, email, credential string) (*types.Identity, error) {
	id, err := d.backend.SignIn(ctx, email, credential)
	if err != nil {
		ae := Translate(fmt.Errorf("sign in: %w", err))
		d.log.Warn("login failed", zap.String("code", string(ae.Code)), zap.Error(err))
		return nil, ae
	}
	if id == nil {
		return nil, ErrUnknown(fmt.Errorf("sign in: backend returned no identity"))
	}
	d.registry.Publish(id)
	return id, nil
}

// Logout always clears the local identity, even when the backend fails.
func (d *Delegating) Logout(ctx context.Context) error {
	err := d.backend.SignOut(ctx)
	d.registry.Publish(nil)
	if err != nil {
		d.log.Warn("logout failed", zap.Error(err))
		return Translate(fmt.Errorf("sign out: %w", err))
	}
	return nil
}

func (d *Delegating) Subscribe(fn Listener) func() { return d.registry.Subscribe(fn) }

func (d *Delegating) Current() *types.Identity { return d.registry.Current() }

func (d *Delegating) Mode() Mode { return ModeDelegating }
