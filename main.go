// Command live-signal watches the Panda Live room listing for tracked
// streamers and tells their Telegram watchers when they go live or offline.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the monitor cycle loop and a LISTEN worker that reloads the
//     tracked list when watches change.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /snapshot,
//     /metrics and the admin watch endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM; pending notifications are drained.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/onnwee/live-signal/config"
	"github.com/onnwee/live-signal/db"
	"github.com/onnwee/live-signal/listing"
	"github.com/onnwee/live-signal/monitor"
	"github.com/onnwee/live-signal/notify"
	"github.com/onnwee/live-signal/server"
	"github.com/onnwee/live-signal/telemetry"
)

// readyAllowance is added to the idle-derived staleness window so a long
// sweep over many accounts does not flip readiness.
const readyAllowance = 5 * time.Minute

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	setupLogging(cfg.LogFile)
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("live-signal", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()
	slog.Info("tracing configured", slog.Bool("enabled", telemetry.IsTracingEnabled()))

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; the embedded schema covers deployments
	// started without the migrations directory.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded schema",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded schema applied", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed successfully", slog.String("component", "db_migrate"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One proxied transport for both the listing and the Bot API.
	httpClient, err := listing.NewHTTPClient(cfg.ProxyURL, cfg.ListingTimeout)
	if err != nil {
		slog.Error("proxy config invalid", slog.Any("err", err))
		os.Exit(1)
	}
	cache := listing.NewCache(cfg.SnapshotCachePath)
	fetcher := &listing.Fetcher{
		Pages:    &listing.Client{BaseURL: cfg.ListingURL, Cookie: cfg.ListingCookie, HTTPClient: httpClient},
		PageSize: cfg.PageSize,
		Cache:    cache,
	}

	store := db.NewStore(database, cfg.Platform)
	registry := monitor.NewRegistry(store)

	transport, err := notify.NewTelegramTransport(cfg.TelegramToken, cfg.TelegramEndpoint, httpClient)
	if err != nil {
		slog.Error("telegram init failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("telegram bot authorized", slog.String("username", transport.Username()))

	dispatcher := notify.NewDispatcher(store, transport, notify.Composer{
		SourceOffset: cfg.SourceOffset,
		TargetOffset: cfg.TargetOffset,
		PlayerURL:    cfg.PlayerURL,
	})
	dispatcher.BatchSize = cfg.FanoutBatch
	dispatcher.Pause = cfg.FanoutPause
	dispatcher.NotifyOnline = cfg.NotifyOnline
	dispatcher.NotifyOffline = cfg.NotifyOffline

	scheduler := monitor.NewScheduler(fetcher, registry, &monitor.Reconciler{Store: store, Notifier: dispatcher}, monitor.Options{
		GroupSize:     cfg.GroupSize,
		CheckInterval: cfg.CheckInterval,
		IdleInterval:  cfg.IdleInterval,
		IdleThreshold: cfg.IdleThreshold,
	})

	// Persist each cycle summary so /status has data right after a restart.
	scheduler.OnCycle = func(st monitor.Stats) {
		b, err := json.Marshal(st)
		if err != nil {
			return
		}
		kvCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.SetKV(kvCtx, database, db.LastCycleKey, string(b)); err != nil {
			slog.Warn("persist cycle stats failed", slog.Any("err", err), slog.String("component", "monitor"))
		}
	}

	go db.ListenWatchChanges(ctx, cfg.DBDsn, 5*time.Second, func(id string) {
		slog.Debug("watches changed", slog.String("id", id), slog.String("component", "db_listen"))
		registry.Signal()
	})

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

	slog.Info("http server configured", slog.String("addr", cfg.HTTPAddr), slog.Bool("admin_auth", cfg.AdminEnabled()))
	handlers := server.NewHandlers(database, scheduler, store, cache, registry.Signal, 3*cfg.IdleInterval+readyAllowance)
	mux := server.NewMux(ctx, handlers, server.NewAuthConfig(cfg.AdminUsername, cfg.AdminPassword, cfg.AdminToken))
	go func() {
		if err := server.Start(ctx, mux, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	scheduler.Run(ctx)

	slog.Info("shutting down; draining notifications")
	dispatcher.Wait()
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT,
// teeing to logFile when set. Defaults: level=info, format=text, stdout only.
func setupLogging(logFile string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}

	out := logWriter(os.Stdout, logFile)

	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

// logWriter tees stdout into a rotated file when path is set.
func logWriter(stdout io.Writer, path string) io.Writer {
	if path == "" {
		return stdout
	}
	return io.MultiWriter(stdout, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	})
}
