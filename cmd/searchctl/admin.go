package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/search-orchestrator/internal/bootstrap"
	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

var ensureTemplateCmd = &cobra.Command{
	Use:   "ensure-template",
	Short: "Create or update the index template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if err := app.Admin.EnsureTemplate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index template is up to date")
			return nil
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:       "reindex <source>",
	Short:     "Reindex one content source",
	Long:      "Reindex publishes a job for the worker when a queue is configured. Use --inline to run the ingestion in this process.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: domain.KnownSources(),
	RunE: func(cmd *cobra.Command, args []string) error {
		inline, _ := cmd.Flags().GetBool("inline")
		source := args[0]

		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if inline {
				stats, err := app.Admin.RunSource(ctx, source)
				if err != nil {
					return err
				}
				return printJSON(cmd, domain.ReindexResult{Source: source, Stats: &stats})
			}
			result, err := app.Admin.Reindex(ctx, source)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs [source]",
	Short: "List recent ingestion runs from the run ledger",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		source := ""
		if len(args) == 1 {
			source = args[0]
		}

		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if app.Runs == nil {
				return errors.New("run ledger is disabled, set POSTGRES_DSN")
			}
			runs, err := app.Runs.ListRecent(ctx, source, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, runs)
		})
	},
}

func init() {
	reindexCmd.Flags().Bool("inline", false, "run the ingestion in this process instead of queueing it")
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list")

	rootCmd.AddCommand(ensureTemplateCmd, reindexCmd, runsCmd)
}
