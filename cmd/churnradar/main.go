package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/godilite/churnradar/internal/app"
	"github.com/godilite/churnradar/internal/config"
)

func main() {
	_ = godotenv.Load(".env")

	dbPath := flag.String("db-path", "", "Database path (default: $XDG_DATA_HOME/churnradar/churnradar.db)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if err := run(ctx, application, args[0], args[1:], os.Stdout); err != nil {
		logger.Error("command failed", zap.String("command", args[0]), zap.Error(err))
		_ = application.Close()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: churnradar [-db-path PATH] <command> [flags]

Commands:
  match                          Link CRM accounts to ticket organizations by name
  link <account-id> <org-id>     Pin an account to an organization
  heuristic                      Score matched accounts on support-load heuristics
  signature [-window N] [-rebuild] [-validate]
                                 Learn the churn signature and score active accounts
  validate [-window N]           Leave-one-out validation of the churn signature
  analyze                        match, signature and heuristic in one pass
  serve                          Run analyze on a schedule and serve gRPC health
`)
}
