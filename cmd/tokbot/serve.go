package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	httpAdapter "github.com/cwygoda/tokbot/internal/adapter/http"
	"github.com/cwygoda/tokbot/internal/adapter/telegram"
	"github.com/cwygoda/tokbot/internal/config"
	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
	"github.com/cwygoda/tokbot/internal/metrics"
)

var flagHTTPAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().StringVar(&flagHTTPAddr, "http-addr", "", "Ops HTTP listen address, \"off\" disables (default 127.0.0.1:8080)")
}

func serveRun(cmd *cobra.Command, args []string) error {
	if cfg.BotToken == "" {
		return config.ErrMissingToken
	}
	if flagHTTPAddr == "off" {
		cfg.HTTPAddr = ""
	} else if flagHTTPAddr != "" {
		cfg.HTTPAddr = flagHTTPAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("starting tokbot",
		"version", Version,
		"providers", cfg.Providers,
		"max_concurrent", cfg.MaxConcurrent,
		"database", cfg.Database.Driver,
	)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	recorder, closeRecorder, err := usageRecorder(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer closeRecorder()

	tgbotapi.SetLogger(slog.NewLogLogger(appLogger.Handler(), slog.LevelWarn))
	api, err := telegram.Connect(cfg.BotToken)
	if err != nil {
		return err
	}
	appLogger.Info("authorized on telegram", "bot", api.Self.UserName)

	collector := metrics.New()
	extractor, err := newExtractor(cfg, httputil.NewClient(), telegram.NewDeliverer(api), collector)
	if err != nil {
		return err
	}

	svc := domain.NewRequestService(extractor, st, domain.ServiceConfig{
		MaxConcurrent:  cfg.MaxConcurrent,
		RequestTimeout: cfg.Timeout(),
		Observer:       collector,
		Logger:         appLogger,
		Recorder:       recorder,
	})

	var srv *httpAdapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpAdapter.NewServer(svc, cfg.HTTPAddr, httpAdapter.Options{
			Secret:  cfg.WebhookSecret,
			Metrics: collector.Handler(),
			Health:  st.Ping,
			Logger:  appLogger,
		})
		go func() {
			appLogger.Info("HTTP server listening", "addr", srv.Addr())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error("HTTP server error", "error", err)
			}
		}()
	}

	bot := telegram.NewBot(api, api, svc, appLogger)
	if err := bot.Run(ctx); err != nil {
		appLogger.Error("bot stopped", "error", err)
	}
	appLogger.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown error", "error", err)
		}
	}

	appLogger.Info("shutdown complete")
	return nil
}
