// Package main is the entry point for the subscription API server.
//
// It loads configuration, connects the Postgres-backed user store and the
// Razorpay gateway client, assembles the billing ledger, and serves the HTTP
// API with the core chassis (middleware, routing, health checks).
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"subhub/internal/api/handlers"
	"subhub/internal/billing"
	"subhub/internal/config"
	"subhub/internal/core"
	"subhub/internal/db"
	"subhub/internal/external"
	"subhub/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("subscription API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	userRepo := db.NewUserRepo(pool, logger)

	gateway := external.NewRazorpayClient(
		&http.Client{Timeout: 30 * time.Second},
		external.RazorpayClientConfig{
			KeyID:     cfg.Gateway.KeyID,
			KeySecret: cfg.Gateway.KeySecret,
			BaseURL:   cfg.Gateway.BaseURL,
			Logger:    logger,
		},
	)
	verifier := external.NewRazorpayVerifier(cfg.Gateway.KeySecret)

	ledger := billing.NewLedger(
		gateway,
		userRepo,
		billing.NoDues{},
		verifier,
		billing.PlanSet{
			Service1: cfg.Gateway.Plan1ID,
			Service2: cfg.Gateway.Plan2ID,
		},
		logger,
	)

	deadLetter, err := newDeadLetter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dead-letter queue: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool: pool}}

	subscriptionHandler := handlers.NewSubscriptionHandler(ledger, srv.Validator, logger)
	webhookHandler := handlers.NewGatewayWebhookHandler(ledger, deadLetterOrNil(deadLetter), logger)

	srv.V1Registrars = append(srv.V1Registrars,
		subscriptionHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newDeadLetter builds the SQS dead-letter producer when a queue is
// configured. Without one, webhook failures are only logged.
func newDeadLetter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*queue.DeadLetter, error) {
	if cfg.AWS.WebhookDLQ == "" {
		logger.Info("webhook dead-letter queue not configured; failures will only be logged")
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	return queue.NewDeadLetter(client, cfg.AWS, logger), nil
}

// deadLetterOrNil avoids handing the handler a typed-nil interface value.
func deadLetterOrNil(d *queue.DeadLetter) handlers.DeadLetterPublisher {
	if d == nil {
		return nil
	}
	return d
}

// dbProbe reports database reachability for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
