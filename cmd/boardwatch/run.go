package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pevans/boardwatch"
	"github.com/pevans/boardwatch/config"
)

func handleRun(configPath string, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Log notifications instead of sending them")
	resetLedger := fs.Bool("reset-ledger", false, "Clear the seen-post ledger before running")
	fs.Parse(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	session, err := boardwatch.NewSession(cfg.SessionConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create session: %v\n", err)
		os.Exit(1)
	}
	if cfg.Site.Cookie != "" {
		session.SetCookieString(cfg.Site.Cookie)
	}

	listing, err := boardwatch.NewListingFetcher(cfg.ListingRules())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	extractor, err := boardwatch.NewExtractor(cfg.ExtractRules())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ledger, err := boardwatch.NewLedger(cfg.Run.LedgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *resetLedger {
		if err := ledger.Reset(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Ledger reset.")
	}

	var notifier boardwatch.Notifier
	if *dryRun {
		notifier = &logNotifier{}
	} else {
		if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "" {
			fmt.Fprintln(os.Stderr, "Error: telegram token and chat_id are required (or use -dry-run)")
			os.Exit(1)
		}
		notifier = boardwatch.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
	}

	pipeline := boardwatch.NewPipeline(session, listing, extractor, notifier, ledger, cfg.PipelineConfig())

	report, runErr := pipeline.Run(context.Background())

	// Save the report even for a fatal run; the history should show aborts.
	store, err := boardwatch.NewRunStore(cfg.Run.HistoryPath)
	if err != nil {
		log.Printf("ERROR: Failed to open run store: %v", err)
	} else {
		defer store.Close()
		if err := store.SaveRun(report); err != nil {
			log.Printf("ERROR: Failed to save run report: %v", err)
		}
	}

	fmt.Println(report.Summary())

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// logNotifier logs deliveries instead of sending them, for -dry-run.
type logNotifier struct{}

func (l *logNotifier) Send(ctx context.Context, text string, media []boardwatch.MaterializedMedia) error {
	log.Printf("INFO: [dry-run] would send %d media items with caption: %s", len(media), text)
	return nil
}

func (l *logNotifier) SendText(ctx context.Context, text string) error {
	log.Printf("INFO: [dry-run] would send text: %s", text)
	return nil
}
