// Command frontporter migrates Front conversation tags and archive status
// onto the matching Gmail threads. It defaults to a dry run; pass
// -dry-run=false to mutate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/joshsymonds/frontporter/internal/config"
	"github.com/joshsymonds/frontporter/internal/front"
	gc "github.com/joshsymonds/frontporter/internal/gmail"
	"github.com/joshsymonds/frontporter/internal/migrate"
	"github.com/joshsymonds/frontporter/internal/runtime"
)

func main() {
	if err := run(); err != nil {
		runtime.DefaultLogger().Error("frontporter failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	batchSize := flag.Int("batch-size", cfg.BatchSize, "conversations per batch")
	dryRun := flag.Bool("dry-run", cfg.DryRun, "log decisions only; never mutate Gmail")
	skipArchived := flag.Bool("skip-archived", cfg.SkipArchived, "do not migrate archived conversations")
	inbox := flag.String("inbox", cfg.InboxID, "restrict migration to one Front inbox id")
	reportDir := flag.String("report-dir", cfg.ReportDir, "directory for the per-run CSV report")
	summaryPath := flag.String("summary", cfg.SummaryPath, "write a JSON run summary to this path")
	gmailCfgDir := flag.String("gmail-config", cfg.GmailConfigDir, "gmailctl auth directory")
	frontRPS := flag.Int("front-rps", cfg.FrontRPS, "optional Front requests-per-second cap (0 = unlimited)")
	flag.Parse()

	if *batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", *batchSize)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := runtime.LoggerWithLevel(cfg.SlogLevel())

	frontClient, err := front.NewClient(front.Config{
		Token:   cfg.FrontToken,
		BaseURL: cfg.FrontBaseURL,
		RPS:     *frontRPS,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create front client: %w", err)
	}

	var gmailClient gc.Client
	if cfg.GmailAccessToken != "" || cfg.GmailRefreshToken != "" {
		gmailClient, err = runtime.NewGmailClientFromToken(ctx, cfg.GmailAccessToken, cfg.GmailRefreshToken, *dryRun, logger)
	} else {
		gmailClient, err = runtime.NewGmailClient(ctx, *gmailCfgDir, *dryRun, logger)
	}
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	svc := migrate.NewService(frontClient, gmailClient, logger)
	svc.RunID = uuid.NewString()
	svc.Progress = func(st migrate.Stats) {
		logger.Debug("progress",
			"done", st.Skipped+st.Processed, "total", st.Total,
			"matched", st.Matched, "labeled", st.Labeled, "failed", st.Failed)
	}

	spec := migrate.Spec{
		BatchSize:    *batchSize,
		DryRun:       *dryRun,
		SkipArchived: *skipArchived,
		InboxID:      *inbox,
		ReportDir:    *reportDir,
		SummaryPath:  *summaryPath,
	}

	res, runErr := svc.Run(ctx, spec)
	if printErr := migrate.PrintHuman(res, *dryRun, os.Stdout); printErr != nil {
		logger.Warn("print summary", "error", printErr)
	}
	if runErr != nil {
		return fmt.Errorf("run migration: %w", runErr)
	}
	return nil
}
