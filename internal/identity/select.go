package identity

import (
	"go.uber.org/zap"

	"github.com/user/vernacular/internal/config"
	"github.com/user/vernacular/pkg/auth"
)

// BackendFactory constructs the remote backend for the delegating provider.
type BackendFactory func() (auth.Backend, error)

// Select returns the delegating provider when cfg carries a usable API key
// and the backend can be built, otherwise the simulated provider. It never
// fails.
func Select(cfg config.AuthConfig, newBackend BackendFactory, log *zap.Logger, opts ...SimulatedOption) Provider {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Configured() && newBackend != nil {
		backend, err := newBackend()
		if err == nil {
			log.Info("identity provider selected", zap.String("mode", string(ModeDelegating)), zap.String("backend", cfg.Provider))
			return NewDelegating(backend, log)
		}
		log.Warn("identity backend initialization failed, falling back to simulated mode", zap.Error(err))
	}
	log.Warn("VERNACULAR OPS: RUNNING IN MOCK AUTH MODE")
	return NewSimulated(log, opts...)
}
