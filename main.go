// Command GoftarGPT is a Telegram bot that relays audio: voice notes come
// back transcribed as text, text messages come back spoken as voice notes.
// It:
//   - Loads configuration and initializes structured logging.
//   - Restores the update cursor and VIP allowlist from the state directory.
//   - Runs the long-poll update pipeline against the Telegram Bot API.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/mahdighaemi123/GoftarGPT/audioapi"
	"github.com/mahdighaemi123/GoftarGPT/bot"
	"github.com/mahdighaemi123/GoftarGPT/config"
	"github.com/mahdighaemi123/GoftarGPT/server"
	"github.com/mahdighaemi123/GoftarGPT/storage"
	"github.com/mahdighaemi123/GoftarGPT/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("goftar-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// State directory: offset cursor, VIP allowlist, voice scratch files
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open state directory", slog.String("dir", cfg.DataDir), slog.Any("err", err))
		os.Exit(1)
	}
	vips := storage.NewVIPSet(store)
	telemetry.SetVIPCount(vips.Len())

	audio := audioapi.New(audioapi.Options{
		APIKey:   cfg.AudioAPIKey,
		BaseURL:  cfg.AudioAPIBaseURL,
		STTModel: cfg.AudioSTTModel,
		TTSModel: cfg.AudioTTSModel,
		Voice:    cfg.AudioTTSVoice,
		Timeout:  cfg.AudioTimeout,
	})

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		slog.Error("telegram authorization failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("authorized on telegram", slog.String("username", api.Self.UserName))

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(ctx, store, vips, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited", slog.Any("err", err))
		}
	}()

	bot.New(bot.Options{
		Telegram:     api,
		Token:        cfg.BotToken,
		Audio:        audio,
		Store:        store,
		VIPs:         vips,
		VIPCode:      cfg.VIPCode,
		PollLimit:    cfg.PollLimit,
		PollTimeout:  cfg.PollTimeout,
		FetchBackoff: cfg.FetchBackoff,
	}).Run(ctx)

	slog.Info("shutdown complete")
}
