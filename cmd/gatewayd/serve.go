package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"conduit/internal/config"
	"conduit/internal/httpbridge"
	"conduit/internal/router"
	"conduit/internal/wsbridge"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP webhook bridge and WebSocket bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func newLogger() *charmlog.Logger {
	logger := charmlog.New(os.Stderr)
	if verbose {
		logger.SetLevel(charmlog.DebugLevel)
	} else {
		logger.SetLevel(charmlog.InfoLevel)
	}
	return logger
}

func runServe() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt := router.New(cfg, logger)

	dedupPath := filepath.Join(cfg.RuntimeDir, "telegram_dedup.sqlite")
	dedup, err := httpbridge.NewDedup(dedupPath, cfg.TelegramDedupTTL)
	if err != nil {
		return fmt.Errorf("open dedup store: %w", err)
	}
	defer dedup.Close()

	httpB := httpbridge.New(httpbridge.Config{
		WebhookBase:            cfg.HTTPWebhookBase,
		TelegramBotToken:       cfg.TelegramBotToken,
		TelegramParseMode:      cfg.TelegramParseMode,
		TelegramDisablePreview: cfg.TelegramDisablePreview,
		RouterTimeout:          cfg.RouterTimeout,
	}, rt, dedup, logger)

	wsB := wsbridge.New(cfg.WSPath, rt, cfg.RouterTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	httpAddr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	wsAddr := fmt.Sprintf("%s:%d", cfg.WSHost, cfg.WSPort)

	httpSrv := &http.Server{Addr: httpAddr, Handler: httpB.Handler()}

	// Registered as the catch-all ("/") rather than on cfg.WSPath itself so
	// that a request for any other path reaches the bridge's own handler
	// and gets a structured invalid_path envelope, instead of being caught
	// by ServeMux's default 404 before the bridge ever sees it.
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/", wsB.Handler())
	wsSrv := &http.Server{Addr: wsAddr, Handler: wsMux}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http bridge listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http bridge: %w", err)
		}
	}()
	go func() {
		logger.Info("ws bridge listening", "addr", wsAddr)
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ws bridge: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = wsSrv.Shutdown(shutdownCtx)

	logger.Info("gatewayd stopped gracefully")
	return nil
}
