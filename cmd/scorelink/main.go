package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scorelink/internal/config"
	"scorelink/internal/constants"
	"scorelink/internal/database"
	"scorelink/internal/metrics"
	"scorelink/internal/models"
	"scorelink/internal/retry"
	"scorelink/internal/service"
	"scorelink/internal/tracing"
	"scorelink/internal/transport"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes unmasked keys and node ids)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("scorelink %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

// node holds the components wired for one process
type node struct {
	hub       *transport.Hub
	scheduler *service.Scheduler
	sender    *service.Sender
	matches   *database.MatchStore
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting scorelink")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg.LogLevel, *verbose)

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
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
		InitialDelay: time.Duration(constants.DefaultDBRetryBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultDBMaxBackoffMs) * time.Millisecond,
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

	m := metrics.New()
	ctx = service.WithVerbose(ctx, *verbose)

	n := wireNode(cfg, db, m, logger)
	n.hub.Start(ctx)
	defer n.hub.Stop()

	if n.scheduler != nil {
		go n.scheduler.Start(ctx)
		defer n.scheduler.Stop()
	}

	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(c *models.Config) {
		applyLogLevel(logger, c.LogLevel, *verbose)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	var sender resultSender
	if n.sender != nil {
		sender = n.sender
	}
	var matches matchStore
	if n.matches != nil {
		matches = n.matches
	}

	server := NewServer(cfg, logger, m, db, n.hub, sender, matches, *verbose)
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

// wireNode builds the transport and the components for the configured role
func wireNode(cfg *models.Config, db *database.Database, m *metrics.Metrics, logger *logrus.Logger) *node {
	hub := transport.NewHub(transport.Config{
		NodeID:           cfg.Node.ID,
		Peers:            cfg.Transport.Peers,
		HandshakeTimeout: time.Duration(cfg.Transport.HandshakeTimeoutSec) * time.Second,
		ReconnectMax:     time.Duration(cfg.Transport.ReconnectMaxSec) * time.Second,
		MaxFrameBytes:    cfg.Transport.MaxFrameBytes,
	}, logger)
	n := &node{hub: hub}

	countNodes := func(transport.Node) {
		if nodes, err := hub.ConnectedNodes(context.Background()); err == nil {
			m.SetConnectedNodes(len(nodes))
		}
	}
	hub.OnNodeConnected(countNodes)
	hub.OnNodeDisconnected(countNodes)

	attemptTimeout := time.Duration(cfg.Transport.AttemptTimeoutSec) * time.Second

	if cfg.RunsPeer() {
		n.matches = database.NewMatchStore(db)
		receiver := service.NewReceiver(n.matches, hub, attemptTimeout, m, logger)
		hub.Handle(constants.PathMatchFinished, receiver.HandleMessage)
		logger.Info("Receiver enabled")
	}

	if cfg.RunsSender() {
		clk := clock.New()
		pending := database.NewPendingStore(db)
		status := service.NewStatusBoard(clk)

		jitter := cfg.Retry.Jitter == nil || *cfg.Retry.Jitter
		n.scheduler = service.NewScheduler(service.SchedulerConfig{
			Store:     pending,
			Attempter: service.NewExecutor(hub, pending, attemptTimeout, m, logger),
			Backoff: retry.NewBackoff(retry.BackoffConfig{
				InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
				MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
				Multiplier:   cfg.Retry.Multiplier,
				Jitter:       jitter,
			}),
			Status:       status,
			Clock:        clk,
			TickInterval: time.Duration(cfg.Retry.TickIntervalSec) * time.Second,
			Metrics:      m,
			Logger:       logger,
		})

		acks := service.NewAckListener(pending, status, m, logger)
		hub.Handle(constants.PathMatchFinishedAck, acks.HandleMessage)
		hub.OnNodeConnected(func(transport.Node) { n.scheduler.Wake() })

		n.sender = service.NewSender(pending, n.scheduler, status, clk, m, logger)
		logger.WithField("peers", len(cfg.Transport.Peers)).Info("Sender enabled")
	}

	return n
}

// applyLogLevel sets the configured level. -verbose always wins.
func applyLogLevel(logger *logrus.Logger, levelName string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", levelName)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
