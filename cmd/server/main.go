package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/foliodesk/internal/calculator"
	"github.com/mmynk/foliodesk/internal/config"
	"github.com/mmynk/foliodesk/internal/idempotency"
	"github.com/mmynk/foliodesk/internal/metrics"
	"github.com/mmynk/foliodesk/internal/middleware"
	"github.com/mmynk/foliodesk/internal/service"
	"github.com/mmynk/foliodesk/internal/settlement"
	"github.com/mmynk/foliodesk/internal/storage"
	"github.com/mmynk/foliodesk/internal/storage/sqlite"
	"github.com/mmynk/foliodesk/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.SetupFromString(cfg.Log.Level)

	// Initialize SQLite ledger
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.Database.Path)

	replays, err := newReplayStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize idempotency store", "error", err)
		os.Exit(1)
	}
	defer replays.Close()

	// Rejections are answers from a healthy ledger and must not trip the breaker.
	backend := settlement.NewBreakerCollaborator(store, settlement.BreakerConfig{
		Name:        "ledger",
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
		Expected: []error{
			storage.ErrNotFound,
			storage.ErrFolioNotActive,
			storage.ErrKeyConflict,
			storage.ErrInvalidOperation,
		},
	})

	m := metrics.New()
	orchestrator := settlement.New(backend,
		settlement.WithPolicy(calculator.CheckoutPolicy{
			AllowOutstandingBalance: cfg.Checkout.AllowOutstandingBalance,
			RequireFullDistribution: cfg.Checkout.RequireFullDistribution,
		}),
		settlement.WithStore(replays),
		settlement.WithRecordTTL(cfg.Idempotency.TTL),
		settlement.WithMetrics(m),
	)

	interceptors := connect.WithInterceptors(
		middleware.MetricsInterceptor(m),
		middleware.LoggingInterceptor(),
	)

	mux := http.NewServeMux()

	// Register Connect services
	folioPath, folioHandler := service.NewFolioServiceHandler(
		service.NewFolioService(store, orchestrator, service.WithDefaultCurrency(cfg.Currency)),
		interceptors,
	)
	mux.Handle(folioPath, folioHandler)

	checkoutPath, checkoutHandler := service.NewCheckoutServiceHandler(service.NewCheckoutService(orchestrator), interceptors)
	mux.Handle(checkoutPath, checkoutHandler)

	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "ok\nledger_breaker=%s\n", backend.State())
	})

	// Add logging and CORS middleware
	loggedHandler := loggingMiddleware(corsMiddleware(mux))

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	h2cHandler := h2c.NewHandler(loggedHandler, &http2.Server{})

	addr := ":" + cfg.Server.Port
	slog.Info("Connect server starting",
		"address", addr,
		"url", fmt.Sprintf("http://localhost%s", addr),
		"redis", cfg.UsesRedis(),
		"allow_outstanding_balance", cfg.Checkout.AllowOutstandingBalance,
		"require_full_distribution", cfg.Checkout.RequireFullDistribution,
	)
	if err := http.ListenAndServe(addr, h2cHandler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// newReplayStore picks Redis when an address is configured and falls back to
// process memory otherwise.
func newReplayStore(cfg *config.Config) (idempotency.Store, error) {
	if !cfg.UsesRedis() {
		slog.Info("Idempotency records kept in memory")
		return idempotency.NewMemoryStore(), nil
	}

	store, err := idempotency.NewRedisStore(context.Background(), idempotency.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Idempotency records kept in Redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return store, nil
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Scrapes and probes are too frequent to log
		if !strings.HasPrefix(r.URL.Path, "/foliodesk.v1.") {
			next.ServeHTTP(w, r)
			return
		}

		slog.Debug("Request received",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms, Checkout-Attempt-Id, Checkout-Attempt-State, Checkout-Progress")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
