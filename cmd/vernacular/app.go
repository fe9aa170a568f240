package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/vernacular/internal/analysis"
	"github.com/user/vernacular/internal/config"
	"github.com/user/vernacular/internal/delivery"
	"github.com/user/vernacular/internal/gateway"
	"github.com/user/vernacular/internal/identity"
	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/preview"
	"github.com/user/vernacular/pkg/auth"
	"github.com/user/vernacular/pkg/auth/firebase"
	"github.com/user/vernacular/pkg/llm"
	"github.com/user/vernacular/pkg/llm/anthropic"
	"github.com/user/vernacular/pkg/llm/openai"
)

// app holds the components shared by serve and chat.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	gateway  *gateway.Gateway
	notify   *delivery.Registry
	previews *preview.Parser
}

func newApp(cfg *config.Config, console io.Writer) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	log, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
		Console: console,
	})
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}
	for _, w := range cfg.Warnings() {
		log.Warn("config warning", zap.Error(w))
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	budget, err := analysis.NewBudget(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return nil, fmt.Errorf("create token budget: %w", err)
	}

	retry := analysis.DefaultRetryPolicy()
	if cfg.Analysis.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Analysis.MaxAttempts
	}
	engine, err := analysis.New(provider, budget,
		analysis.WithRetryPolicy(retry),
		analysis.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create analysis engine: %w", err)
	}

	ident := identity.Select(cfg.Auth, func() (auth.Backend, error) {
		c, err := firebase.New(&auth.Config{BaseURL: cfg.Auth.BaseURL, APIKey: cfg.Auth.APIKey})
		if err != nil {
			return nil, err
		}
		return c, nil
	}, log)

	notify := delivery.NewRegistry(log)

	opts := gateway.Options{
		Engine:   engine,
		Notifier: notify,
		Timeout:  time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second,
		Logger:   log,
	}
	if cfg.Audit.Enabled {
		opts.AuditDir = cfg.DataDir
	}
	gw := gateway.New(ident, opts)
	gw.Start()

	log.Info("vernacular started",
		zap.String("data_dir", cfg.DataDir),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("auth_mode", string(gw.Mode())),
		zap.Bool("audit", cfg.Audit.Enabled),
	)

	return &app{
		cfg:      cfg,
		log:      log,
		gateway:  gw,
		notify:   notify,
		previews: preview.New(cfg.Analysis.PreviewRows, log),
	}, nil
}

func (a *app) Close() {
	a.gateway.Stop()
	a.notify.Wait()
	_ = a.log.Sync()
}

func newProvider(cfg *config.Config) (llm.Provider, error) {
	lc := &llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		JSONMode:    true,
	}
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "openai":
		return openai.New(lc), nil
	case "anthropic":
		// the shipped default base URL points at OpenAI
		if strings.Contains(lc.BaseURL, "openai.com") {
			lc.BaseURL = ""
		}
		return anthropic.New(lc), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
