package main

import (
	"fmt"
	"os"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath := getEnv("BOARDWATCH_CONFIG", "boardwatch.yaml")

	subcommand := os.Args[1]

	switch subcommand {
	case "run":
		handleRun(configPath, os.Args[2:])
	case "history":
		handleHistory(configPath, os.Args[2:])
	case "ledger":
		handleLedger(configPath, os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: boardwatch <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run              Run one complete scan-and-notify pass")
	fmt.Println("  history list     Show recent run summaries")
	fmt.Println("  ledger count     Show the number of recorded post keys")
	fmt.Println("  ledger reset     Clear the seen-post ledger")
	fmt.Println("  help             Show this help message")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  BOARDWATCH_CONFIG   Config file path (default: boardwatch.yaml)")
	fmt.Println("  TELEGRAM_TOKEN      Bot token override")
	fmt.Println("  TELEGRAM_CHAT_ID    Chat ID override")
	fmt.Println("  BOARDWATCH_COOKIE   Session cookie string override")
	fmt.Println("  BOARDWATCH_ID       Login ID for re-authentication")
	fmt.Println("  BOARDWATCH_PW       Login password for re-authentication")
}
