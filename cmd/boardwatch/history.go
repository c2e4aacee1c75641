package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pevans/boardwatch"
	"github.com/pevans/boardwatch/config"
)

func handleHistory(configPath string, args []string) {
	if len(args) < 1 || args[0] != "list" {
		fmt.Fprintln(os.Stderr, "Usage: boardwatch history list [-limit N]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("history list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of runs to show")
	fs.Parse(args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store, err := boardwatch.NewRunStore(cfg.Run.HistoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open run store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	runs, err := store.ListRuns(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	for _, run := range runs {
		found, delivered, skipped := run.Totals()
		status := "ok"
		if run.FatalError != "" {
			status = "FATAL: " + run.FatalError
		}
		fmt.Printf("%s  %s  boards=%d found=%d delivered=%d skipped=%d  %s\n",
			run.StartedAt.Format(time.RFC3339),
			run.RunID,
			len(run.Boards),
			found, delivered, skipped,
			status,
		)
	}
}

func handleLedger(configPath string, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: boardwatch ledger <count|reset>")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ledger, err := boardwatch.NewLedger(cfg.Run.LedgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "count":
		fmt.Printf("%d keys recorded in %s\n", ledger.Count(), ledger.Path())
	case "reset":
		if err := ledger.Reset(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Ledger reset.")
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown ledger action: %s\n", args[0])
		os.Exit(1)
	}
}
