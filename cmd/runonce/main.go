// Command runonce runs a single pipeline pass and prints its summary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"threatfeed/app"
	"threatfeed/config"
	"threatfeed/orchestrator"
)

var (
	stagingOnly bool
	maxArticles int
	batchSize   int
	sourcesFile string
	jsonOut     bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "runonce",
		Short: "Run one threatfeed pipeline cycle",
		Long:  "Fetches every active source into staging and promotes the staged articles, then exits",
		RunE:  runFetch,
		// main prints the error once; usage is noise for runtime failures
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&sourcesFile, "sources", "", "YAML sources file (overrides SOURCES_FILE)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print the summary as JSON on stdout")
	rootCmd.Flags().BoolVar(&stagingOnly, "staging", false, "Stage only; leave promotion to the promote command")
	rootCmd.Flags().IntVar(&maxArticles, "max-articles", 0, "Per-source article cap (0 uses MAX_ARTICLES_PER_SOURCE)")

	var promoteCmd = &cobra.Command{
		Use:   "promote",
		Short: "Promote one batch of staged articles",
		RunE:  runPromote,
	}
	promoteCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows to evaluate (0 uses PROMOTION_BATCH_SIZE)")
	rootCmd.AddCommand(promoteCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) (interface{}, error) {
		summary, err := a.Orchestrator.FetchNews(ctx, orchestrator.FetchOptions{Staging: stagingOnly, MaxArticles: maxArticles})
		if err != nil {
			return nil, err
		}
		orchestrator.DisplaySummary(summary)
		return summary, nil
	})
}

func runPromote(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Orchestrator.ProcessStaging(ctx, batchSize)
	})
}

// withApp wires the pipeline, runs fn and prints its summary when --json is set
func withApp(fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	cfg := config.Load()
	if sourcesFile != "" {
		cfg.SourcesFile = sourcesFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer a.Close()

	summary, err := fn(ctx, a)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	return nil
}
