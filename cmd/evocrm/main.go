package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evocrm/internal/config"
	"evocrm/internal/constants"
	"evocrm/internal/database"
	"evocrm/internal/models"
	"evocrm/internal/retry"
	"evocrm/internal/service"
	"evocrm/internal/tracing"
	"evocrm/pkg/circuitbreaker"
	"evocrm/pkg/evolution"
	"evocrm/pkg/media"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("evocrm %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting evocrm")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg.LogLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	}

	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	mediaStore, err := media.NewStore(cfg.Media, db, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}

	apiKey := os.Getenv("EVOLUTION_API_KEY")
	if apiKey == "" {
		logger.Warn("EVOLUTION_API_KEY is not set, gateway calls will be unauthenticated")
	}

	gateway := evolution.NewClient(evolution.ClientConfig{
		BaseURL:    cfg.Gateway.APIBaseURL,
		APIKey:     apiKey,
		Timeout:    cfg.Gateway.Timeout,
		RetryCount: cfg.Gateway.RetryCount,
	})

	logGatewayInstances(ctx, gateway, logger)

	gatewayBreaker := circuitbreaker.New("evolution-gateway", 5, 30*time.Second, logger)
	avatars := service.NewAvatarFetcher(gateway, db, mediaStore, gatewayBreaker, logger)

	// The watcher keeps lifecycle tags and log level current across config
	// file edits without a restart.
	watcher := config.NewWatcher(*configPath, logger)
	watcher.OnConfigChange(func(updated *models.Config) {
		configureLogLevel(logger, updated.LogLevel)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher failed to start")
		}
	}()

	tags := func() []string {
		if current := watcher.GetConfig(); current != nil {
			return current.LifecycleTags
		}
		return cfg.LifecycleTags
	}

	// New contacts take the first configured lifecycle tag, read through the
	// watcher so reloads change it alongside /api/v1/tags.
	defaultTag := func() string {
		if current := tags(); len(current) > 0 {
			return current[0]
		}
		return ""
	}
	identity := service.NewIdentityResolver(db, avatars, cfg.Gateway, defaultTag, logger)

	var relay *service.RelayHub
	var publisher service.RelayPublisher
	if cfg.Relay.Enabled {
		relay = service.NewRelayHub(cfg.Relay, logger)
		publisher = relay
	}

	ingestor := service.NewMessageIngestor(db, identity, mediaStore, publisher, logger)
	dispatcher := service.NewWebhookDispatcher(ingestor, logger)
	history := service.NewHistoryService(db, db)

	scheduler := service.NewScheduler(db, mediaStore, cfg.RetentionDays, cfg.Server.CleanupIntervalHours, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	server := NewServer(cfg, dispatcher, history, relay, tags, *verbose, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, raw string) {
	if raw == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", raw)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(level)
}

// logGatewayInstances surfaces the gateway's configured instances at startup.
// A failure here is informational, the webhook path does not depend on it.
func logGatewayInstances(ctx context.Context, gateway evolution.GatewayClient, logger *logrus.Logger) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	instances, err := gateway.FetchInstances(listCtx)
	if err != nil {
		logger.WithError(err).Warn("Could not list gateway instances")
		return
	}

	for _, instance := range instances {
		logger.WithFields(logrus.Fields{
			"instance": instance.InstanceName,
			"status":   instance.Status,
		}).Info("Gateway instance available")
	}
}
