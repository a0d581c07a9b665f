// Command hippod is the main entry point for the hippocampus memory server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/karrolcia/hippocampus-go/internal/config"
	"github.com/karrolcia/hippocampus-go/internal/health"
	"github.com/karrolcia/hippocampus-go/internal/mcp/memorytool"
	"github.com/karrolcia/hippocampus-go/internal/observe"
	"github.com/karrolcia/hippocampus-go/pkg/embedder"
	"github.com/karrolcia/hippocampus-go/pkg/engine"
	"github.com/karrolcia/hippocampus-go/pkg/store"
)

// binVersion is reported as the service version in telemetry and the MCP
// implementation handshake.
const binVersion = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to an optional YAML side-config file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hippod: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("hippod starting", "db_path", cfg.DBPath, "embedder_endpoint", cfg.Embedder.Endpoint)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── OpenTelemetry providers ───────────────────────────────────────────────
	// Must run before the first call to observe.DefaultMetrics (the embedder
	// construction below): it registers the global MeterProvider that
	// DefaultMetrics binds to on its one-time initialization.
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "hippocampus",
		ServiceVersion: binVersion,
	})
	if err != nil {
		slog.Error("failed to initialize telemetry providers", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			slog.Error("error shutting down telemetry providers", "err", err)
		}
	}()

	// ── Store ─────────────────────────────────────────────────────────────────
	st, err := store.Open(ctx, cfg.DBPath, cfg.Passphrase)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing store", "err", err)
		}
	}()

	// ── Embedder ──────────────────────────────────────────────────────────────
	emb := embedder.NewOllamaProvider(cfg.Embedder.Endpoint, embedder.WithOllamaMetrics(observe.DefaultMetrics()))
	if err := emb.EnsureModel(ctx); err != nil {
		slog.Error("failed to ensure embedding model is pulled", "err", err)
		return 1
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(st.DB(), emb, engine.WithMetrics(observe.DefaultMetrics()), engine.WithLogger(logger))

	// ── Config hot-reload ─────────────────────────────────────────────────────
	// Only meaningful when a side-file was given; the passphrase always comes
	// from the environment, and neither it nor db_path is hot-reloadable.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
			diff := config.Diff(old, updated)
			if diff.EmbedderEndpointChanged {
				slog.Info("embedder endpoint changed, repointing provider", "endpoint", diff.NewEmbedderEndpoint)
				emb.SetEndpoint(diff.NewEmbedderEndpoint)
			}
			if diff.RateLimitChanged {
				slog.Info("rate limit config changed",
					"write_per_minute", diff.NewRateLimit.WritePerMinute,
					"read_per_minute", diff.NewRateLimit.ReadPerMinute)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	// ── Health/readiness HTTP endpoint ────────────────────────────────────────
	// Carried alongside the stdio MCP transport so a process supervisor can
	// probe liveness without speaking the MCP protocol. Also serves /metrics
	// for Prometheus scraping of the instruments registered by InitProvider.
	if cfg.Port != 0 {
		httpSrv := startHealthServer(cfg, st.DB(), emb)
		defer httpSrv.Shutdown(context.Background())
	}

	// ── MCP server over stdio ─────────────────────────────────────────────────
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "hippocampus", Version: binVersion}, nil)
	memorytool.Register(server, eng)

	printStartupSummary(cfg)
	slog.Info("server ready — listening on stdio, press Ctrl+C to shut down")

	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       hippocampus — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  DB path         : %-19s ║\n", truncate(cfg.DBPath, 19))
	fmt.Printf("║  Embedder        : %-19s ║\n", truncate(cfg.Embedder.Endpoint, 19))
	fmt.Printf("║  Write limit/min : %-19d ║\n", cfg.RateLimit.WritePerMinute)
	fmt.Printf("║  Read limit/min  : %-19d ║\n", cfg.RateLimit.ReadPerMinute)
	fmt.Println("╚═══════════════════════════════════════╝")
}

// startHealthServer launches a background HTTP server exposing /healthz,
// /readyz (backed by a database ping and an embedder reachability check),
// and /metrics for Prometheus scraping.
func startHealthServer(cfg *config.Config, db *sql.DB, emb embedder.Provider) *http.Server {
	h := health.New(
		health.Checker{Name: "database", Check: func(ctx context.Context) error { return db.PingContext(ctx) }},
		health.Checker{Name: "embedder", Check: func(ctx context.Context) error {
			_, err := emb.Embed(ctx, "readiness probe")
			return err
		}},
	)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server error", "err", err)
		}
	}()
	slog.Info("health endpoints listening", "addr", addr)
	return srv
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
