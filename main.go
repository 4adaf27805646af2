package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/varsilias/chatbot/internal/api"
	"github.com/varsilias/chatbot/internal/buildinfo"
	"github.com/varsilias/chatbot/internal/chat"
	"github.com/varsilias/chatbot/internal/config"
	"github.com/varsilias/chatbot/internal/llm"
	"github.com/varsilias/chatbot/internal/logging"
	"github.com/varsilias/chatbot/internal/middleware"
	"github.com/varsilias/chatbot/internal/models"
	"github.com/varsilias/chatbot/internal/session"
	"github.com/varsilias/chatbot/internal/ui"
)

const janitorInterval = time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatbot",
		Short:         "Web chat front-end for an OpenAI-compatible completion endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				fmt.Fprintln(os.Stderr, "config:", err)
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	config.BindFlags(root.Flags())

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatbot %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuiltAt)
		},
	})
	return root
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, closer, err := logging.New(logging.Options{
		Level: cfg.Server.LogLevel,
		JSON:  cfg.Server.LogJSON,
		File:  cfg.Server.LogFile,
	})
	if err != nil {
		logger.Warn("log file unavailable; logging to stdout only", "file", cfg.Server.LogFile, "err", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("build", "version", buildinfo.Version, "commit", buildinfo.Commit, "built_at", buildinfo.BuiltAt)

	var (
		engine    chat.Engine
		modelsMgr models.Manager
	)
	switch cfg.Server.Engine {
	case config.EngineEcho:
		logger.Warn("echo engine selected; replies are canned")
		engine = chat.NewEchoEngine(30 * time.Millisecond)
		modelsMgr = models.NewStaticManager(cfg.Settings.Model)
	default:
		handle := llm.NewHandle(cfg.Settings, logger)
		engine = chat.NewOpenAIEngine(handle)
		modelsMgr = models.NewLLMManager(handle)
	}

	if cfg.Server.WaitTimeout > 0 {
		logger.Info("waiting for endpoint", "model", cfg.Settings.Model, "timeout", cfg.Server.WaitTimeout.String())
		waitCtx, cancel := context.WithTimeout(ctx, cfg.Server.WaitTimeout)
		err := models.WaitReady(waitCtx, modelsMgr, cfg.Settings.Model, cfg.Server.WaitInterval, logger)
		cancel()
		if err != nil {
			logger.Warn("endpoint not ready; serving anyway", "err", err)
		} else {
			logger.Info("endpoint ready", "model", cfg.Settings.Model)
		}
	}

	store := session.NewMemoryStore(cfg.Settings.Model, engine, logger)

	uih, err := ui.New(logger, store, cfg.Settings.Model)
	if err != nil {
		logger.Error("ui init", "err", err)
		return err
	}

	mux := chi.NewRouter()
	ui.RegisterRoutes(mux, uih)
	api.RegisterRoutes(mux, api.NewHandlers(logger, store, modelsMgr, cfg.Settings.Model))

	var handler http.Handler = mux
	handler = middleware.Recoverer(logger)(handler)
	handler = middleware.AccessLog(logger)(handler)
	handler = middleware.RequestID()(handler)
	handler = middleware.VersionHeader()(handler)

	server := http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// streamed replies can run long
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go store.Janitor(ctx, janitorInterval, cfg.Server.SessionTTL)

	errChan := make(chan error, 1)
	go func() { errChan <- server.ListenAndServe() }()
	logger.Info("chat server is listening", "port", cfg.Server.Port, "model", cfg.Settings.Model, "engine", cfg.Server.Engine)

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
