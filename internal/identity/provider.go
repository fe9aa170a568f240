// Package identity gates session activity behind a login. Two providers
// exist: a simulated one for demos and local development, and one that
// delegates to a remote auth.Backend.
package identity

import (
	"context"

	"github.com/user/vernacular/internal/types"
)

// Mode names the active provider variant.
type Mode string

const (
	ModeSimulated  Mode = "simulated"
	ModeDelegating Mode = "delegating"
)

// Listener observes identity changes. nil means logged out.
type Listener func(*types.Identity)

// Provider authenticates users and broadcasts the current identity.
type Provider interface {
	// Login authenticates and, on success, broadcasts the new identity.
	// Failures return *AuthError and leave the current identity untouched.
	Login(ctx context.Context, email, credential string) (*types.Identity, error)

	// Logout clears the current identity. Calling it while logged out is
	// allowed.
	Logout(ctx context.Context) error

	// Subscribe registers fn. fn receives the current identity before
	// Subscribe returns and then every change.
	Subscribe(fn Listener) (unsubscribe func())

	// Current returns the current identity or nil.
	Current() *types.Identity

	Mode() Mode
}
