// Command guildkeeper is the main entrypoint for the notification and
// workflow engine. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the embedded record store.
//   - Starts background loops: stream liveness reconciliation and the
//     recurring check-in broadcaster.
//   - Exposes a management HTTP server with /healthz, /readyz, /metrics,
//     and list/mutate endpoints over the persisted entities.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/checkin"
	"github.com/onnwee/guildkeeper/config"
	"github.com/onnwee/guildkeeper/kickapi"
	"github.com/onnwee/guildkeeper/papers"
	"github.com/onnwee/guildkeeper/permissions"
	"github.com/onnwee/guildkeeper/server"
	"github.com/onnwee/guildkeeper/store"
	"github.com/onnwee/guildkeeper/streamwatch"
	"github.com/onnwee/guildkeeper/telemetry"
	"github.com/onnwee/guildkeeper/tickets"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

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
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("guildkeeper", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	if err := cfg.ValidateChatReady(); err != nil {
		slog.Warn("chat surface not fully configured", slog.Any("err", err))
	}

	// Record store
	db, err := store.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open record store", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close record store", slog.Any("err", err))
		}
	}()

	// Collaborator clients
	chat := chatapi.NewRESTClient(cfg.ChatToken, cfg.ChatAppID)
	probe := kickapi.New(cfg.KickClientID, cfg.KickClientSecret)

	// Application context: every component gets its dependencies here, no
	// package-level singletons.
	gate := &permissions.Gate{Store: db, AuthorID: cfg.AuthorID}
	watcher := &streamwatch.Watcher{
		Store:    db,
		Chat:     chat,
		Probe:    probe,
		Interval: cfg.StreamCheckInterval,
	}
	checkins := &checkin.Service{
		Store:          db,
		Chat:           chat,
		TickInterval:   cfg.CheckInTickInterval,
		BroadcastEvery: cfg.CheckInBroadcastWait,
		StaleAfter:     cfg.CheckInStaleAfter,
	}
	ticketSvc := &tickets.Service{
		Store:     db,
		Chat:      chat,
		OwnerID:   cfg.AuthorID,
		BotUserID: cfg.ChatAppID,
	}
	paperSvc := &papers.Service{Store: db, Chat: chat}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background loops
	go watcher.Run(ctx)
	go checkins.Run(ctx)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// Management HTTP server
	handlers := &server.Handlers{
		Store:    db,
		Streams:  watcher,
		CheckIns: checkins,
		Tickets:  ticketSvc,
		Papers:   paperSvc,
		Gate:     gate,
	}
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
