package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/app"
	"github.com/abrezinsky/weeklyvote/internal/auth"
	"github.com/abrezinsky/weeklyvote/internal/config"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/telemetry"
	"github.com/abrezinsky/weeklyvote/pkg/riskscore"
)

var (
	version = "dev"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `WeeklyVote - vote integrity and scoring for the weekly music contest

Usage:
  weeklyvote [options]

Every option can also be set through its WEEKLYVOTE_* environment variable.
Flags take precedence over the environment.

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  weeklyvote                                  # Run on port 8081 with weeklyvote.db
  weeklyvote -port 8080 -db /data/votes.db    # Custom port and database
  weeklyvote -riskscorer http://scorer/classify
  weeklyvote -seed-demo -adminpw secret123    # Demo data with a fixed admin password

`)
	}

	cfg, err := config.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	if cfg.ShowVersion {
		fmt.Printf("weeklyvote %s\n", version)
		os.Exit(0)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Config) error {
	appLog := logger.NewWithOptions(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
	if cfg.HTTPLogging {
		appLog.EnableHTTPLogging()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.OTelServiceName)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			appLog.Warn("Failed to flush traces", "error", err)
		}
	}()

	password := cfg.AdminPassword
	if password == "" {
		password = auth.GeneratePassword()
		appLog.Info("Admin password", "username", cfg.AdminUser, "password", password)
	}

	var scorer riskscore.Client = riskscore.AllowAll{}
	if cfg.RiskScorerURL != "" {
		scorer = riskscore.NewHTTPClient(cfg.RiskScorerURL, cfg.RiskScorerTimeout, appLog)
	} else {
		appLog.Warn("No risk scorer configured, all votes pass risk checks")
	}

	a, err := app.New(appLog, app.Options{
		DBPath:          cfg.DBPath,
		Addr:            cfg.Addr(),
		BaseURL:         cfg.BaseURL,
		Scorer:          scorer,
		ScorerTimeout:   cfg.RiskScorerTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Auth:            auth.New(cfg.AdminUser, password),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close()

	if cfg.SeedDemo {
		if err := a.SeedDemo(ctx); err != nil {
			return err
		}
	}

	appLog.Info("WeeklyVote ready", "version", version, "base_url", a.BaseURL())
	return a.Run(ctx)
}
