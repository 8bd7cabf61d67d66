package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/tutorhive/payments/internal/auth"
	"github.com/tutorhive/payments/internal/fees"
	"github.com/tutorhive/payments/internal/nudge"
	"github.com/tutorhive/payments/internal/observability/metrics"
	"github.com/tutorhive/payments/internal/processor"
	"github.com/tutorhive/payments/internal/server"
	"github.com/tutorhive/payments/internal/service"
	"github.com/tutorhive/payments/internal/storage/sqlite"
	"github.com/tutorhive/payments/internal/sweeper"
	"github.com/tutorhive/payments/pkg/logging"
)

const (
	defaultPort          = 8080
	defaultSweepInterval = 15 * time.Minute
	defaultCurrency      = "usd"
	tokenDuration        = 24 * time.Hour
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		slog.Warn("ignoring non-numeric env value", "key", key, "value", value)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring unparseable env duration", "key", key, "value", value)
	}
	return fallback
}

func main() {
	logging.Setup()
	logger := slog.Default()

	dbPath := getEnv("DB_PATH", "./data/payments.db")
	port := getEnvInt64("PORT", defaultPort)
	jwtSecret := getEnv("JWT_SECRET", "")
	internalSecret := getEnv("INTERNAL_SECRET", "")
	stripeKey := getEnv("STRIPE_KEY", "")
	webhookSecret := getEnv("STRIPE_WEBHOOK_SECRET", "")
	feeBps := getEnvInt64("FEE_BPS", fees.DefaultRateBasisPoints)
	currency := getEnv("CURRENCY", defaultCurrency)
	sweepInterval := getEnvDuration("SWEEP_INTERVAL", defaultSweepInterval)

	if jwtSecret == "" || internalSecret == "" {
		logger.Error("JWT_SECRET and INTERNAL_SECRET must be set")
		os.Exit(1)
	}
	if stripeKey == "" || webhookSecret == "" {
		logger.Error("STRIPE_KEY and STRIPE_WEBHOOK_SECRET must be set")
		os.Exit(1)
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	metrics.RegisterDBMetrics(store.DB(), logger)
	logger.Info("storage initialized", "database", dbPath)

	gateway := processor.NewStripeGateway(stripeKey, webhookSecret)

	settlements := service.NewSettlementService(store, gateway, feeBps, currency, logger)
	payouts := service.NewPayoutService(store, gateway, currency, logger)

	dispatcher := nudge.NewDispatcher(func(ctx context.Context, payeeID string) error {
		_, err := payouts.RetryForPayee(ctx, payeeID)
		return err
	}, 64, logger)

	eligibility := service.NewEligibilityService(store, gateway, dispatcher, logger)
	reconciler := service.NewReconciler(store, eligibility, logger)

	jwtManager := auth.NewJWTManager(jwtSecret, tokenDuration)
	internalVerifier := auth.NewInternalVerifier(internalSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go dispatcher.Start(ctx)

	sweep := sweeper.New(store, payouts, sweepInterval, logger)
	go sweep.Start(ctx)
	logger.Info("payout sweep scheduled", "interval", sweepInterval)

	srv := server.New(settlements, payouts, eligibility, reconciler, gateway, jwtManager, internalVerifier, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", srv.Handler())

	// h2c keeps HTTP/2 available without TLS behind the ingress.
	h2cHandler := h2c.NewHandler(mux, &http2.Server{})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("settlement engine starting", "address", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("settlement engine stopped")
}
