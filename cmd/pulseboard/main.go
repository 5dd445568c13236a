package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	// A missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pulseboard",
		Short: "Cluster short-form content into events and rank tracked entities by engagement",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(dedupeCmd())
	root.AddCommand(reselectCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(feedCardsCmd())
	root.AddCommand(scoreboardCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(runCmd())

	return root
}

func dedupeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Run one deduplication pass over recent items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDedupe()
		},
	}
}

func reselectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reselect",
		Short: "Reselect each event's primary item by view velocity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReselect()
		},
	}
}

func scoreCmd() *cobra.Command {
	var window string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute and persist a ranked score snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(window)
		},
	}

	cmd.Flags().StringVar(&window, "window", "", "score a single window (default: all)")
	return cmd
}

func feedCardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedcards",
		Short: "Rebuild the precomputed feed cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedCards()
		},
	}
}

func scoreboardCmd() *cobra.Command {
	var (
		window     string
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "scoreboard",
		Short: "Show the latest ranked snapshot for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScoreboard(window, jsonOutput, limit)
		},
	}

	cmd.Flags().StringVar(&window, "window", "now", "window to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows to show")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load entities and aliases from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(args[0])
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the daemon with all passes on their cron schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}
