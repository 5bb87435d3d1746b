// Command searchctl runs index administration and ad-hoc queries against the
// same wiring the API uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/search-orchestrator/internal/bootstrap"
	"github.com/kirillkom/search-orchestrator/internal/config"
	"github.com/kirillkom/search-orchestrator/internal/observability/logging"
)

var rootCmd = &cobra.Command{
	Use:           "searchctl",
	Short:         "Administer the search index and run queries",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// withApp builds the application from the environment and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("searchctl", cfg.LogLevel))

	ctx := cmd.Context()
	app, err := bootstrap.New(ctx, cfg, "searchctl")
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()
	return fn(ctx, app)
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
