// Command frontporter-inboxes lists the Front inbox and tag taxonomy, to help
// pick an -inbox filter and preview which tags a migration would carry over.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joshsymonds/frontporter/internal/config"
	"github.com/joshsymonds/frontporter/internal/front"
	"github.com/joshsymonds/frontporter/internal/mapping"
	"github.com/joshsymonds/frontporter/internal/runtime"
)

func main() {
	if err := run(); err != nil {
		runtime.DefaultLogger().Error("frontporter-inboxes failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	showTags := flag.Bool("tags", true, "also list tags with their migrated label names")
	frontRPS := flag.Int("front-rps", cfg.FrontRPS, "optional Front requests-per-second cap (0 = unlimited)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := runtime.LoggerWithLevel(cfg.SlogLevel())
	client, err := front.NewClient(front.Config{
		Token:   cfg.FrontToken,
		BaseURL: cfg.FrontBaseURL,
		RPS:     *frontRPS,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create front client: %w", err)
	}

	inboxes, err := client.ListInboxes(ctx)
	if err != nil {
		return fmt.Errorf("list inboxes: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INBOX ID\tNAME")
	for _, inbox := range inboxes {
		fmt.Fprintf(w, "%s\t%s\n", inbox.ID, inbox.Name)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("print inboxes: %w", err)
	}

	if !*showTags {
		return nil
	}

	tags, err := client.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tMIGRATES TO")
	for _, tag := range tags {
		fmt.Fprintf(w, "%s\t%s\n", tag.Name, mapping.SanitizeLabel(tag.Name))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("print tags: %w", err)
	}
	return nil
}
