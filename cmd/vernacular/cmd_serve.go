package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/vernacular/internal/telegram"
	"github.com/user/vernacular/internal/web"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server and, when configured, the Telegram bot",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

const pidFileName = "vernacular.pid"

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	srv := web.NewServer(a.gateway, a.previews, log)
	a.notify.Register("web", srv.Celebrate)
	httpServer := &http.Server{
		Addr:              cfg.Web.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info("web server started", zap.String("addr", cfg.Web.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, a.gateway, a.previews, log)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		a.notify.Register("telegram", adapter.Celebrate)
		g.Go(func() error {
			log.Info("telegram adapter started")
			adapter.Start(gctx)
			return nil
		})
	} else {
		log.Warn("telegram adapter disabled (no token)")
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				log.Info("received SIGHUP, restarting")
				reexec(log, pidPath, cfg.DataDir)
			}
		}
	})

	err = g.Wait()
	log.Info("shutting down")
	return err
}

// reexec replaces the process with a fresh copy of itself. It only returns
// when exec fails.
func reexec(log *zap.Logger, pidPath, dataDir string) {
	execPath, err := os.Executable()
	if err != nil {
		log.Error("failed to get executable path", zap.Error(err))
		return
	}
	os.Remove(pidPath)
	if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
		log.Error("failed to re-exec", zap.Error(err))
		if _, err := writePIDFile(dataDir); err != nil {
			log.Error("failed to re-write PID file", zap.Error(err))
		}
	}
}
