package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/vernacular/internal/types"
)

// Backend code strings. They follow the "auth/<reason>" convention used by
// hosted identity services so callers can switch on them without knowing the
// concrete backend.
const (
	CodeInvalidCredential = "auth/invalid-credential"
	CodeUserNotFound      = "auth/user-not-found"
	CodeWrongPassword     = "auth/wrong-password"
	CodeTooManyRequests   = "auth/too-many-requests"
	CodeInvalidEmail      = "auth/invalid-email"
	CodeNetworkFailed     = "auth/network-request-failed"
	CodeInternal          = "auth/internal-error"
)

// Backend defines the interface for remote identity services.
// Implementations return *BackendError for failures the service reported.
type Backend interface {
	// SignIn exchanges an email and password for an identity.
	SignIn(ctx context.Context, email, password string) (*types.Identity, error)

	// SignOut ends the backend session, if the backend keeps one.
	SignOut(ctx context.Context) error
}

// Config holds common configuration for identity backends.
type Config struct {
	BaseURL string
	APIKey  string
}

// BackendError is a failure reported by the identity service.
type BackendError struct {
	Code    string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }

// CodeOf returns the backend code carried by err, or "" when err is not a
// *BackendError.
func CodeOf(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
