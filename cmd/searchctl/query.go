package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/search-orchestrator/internal/bootstrap"
	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a query through the full pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawFilters, _ := cmd.Flags().GetStringArray("filter")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")
		asJSON, _ := cmd.Flags().GetBool("json")

		filters, err := parseFilters(rawFilters)
		if err != nil {
			return err
		}
		req := domain.QueryRequest{
			Query:    strings.Join(args, " "),
			Filters:  filters,
			Page:     page,
			PageSize: pageSize,
		}

		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			resp, err := app.Pipeline.Query(ctx, req)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, resp)
			}
			printResults(cmd, resp)
			return nil
		})
	},
}

func init() {
	queryCmd.Flags().StringArray("filter", nil, "field=value filter, repeatable; values for one field are OR-ed")
	queryCmd.Flags().Int("page", 0, "zero-based page")
	queryCmd.Flags().Int("page-size", 10, "results per page")
	queryCmd.Flags().Bool("json", false, "print the raw response as JSON")

	rootCmd.AddCommand(queryCmd)
}

// parseFilters turns repeated field=value flags into the request filter map.
func parseFilters(raw []string) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string][]string, len(raw))
	for _, item := range raw {
		field, value, ok := strings.Cut(item, "=")
		field = strings.TrimSpace(field)
		value = strings.TrimSpace(value)
		if !ok || field == "" || value == "" {
			return nil, fmt.Errorf("invalid filter %q, want field=value", item)
		}
		filters[field] = append(filters[field], value)
	}
	return filters, nil
}

func printResults(cmd *cobra.Command, resp *domain.QueryResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "query: %q -> %q", resp.Query.Original, resp.Query.Effective)
	if len(resp.Query.Intents) > 0 {
		fmt.Fprintf(out, " intents=%s", strings.Join(resp.Query.Intents, ","))
	}
	if resp.Degraded {
		fmt.Fprint(out, " (degraded)")
	}
	fmt.Fprintf(out, "\n%d total, %.1fms\n\n", resp.Total, resp.Timings.TotalMs)

	for i, item := range resp.Results {
		fmt.Fprintf(out, "%2d. [%s] %s (%.3f)\n", i+1, item.Source, item.Title, item.Score)
		if item.URL != "" {
			fmt.Fprintf(out, "    %s\n", item.URL)
		}
	}
}
