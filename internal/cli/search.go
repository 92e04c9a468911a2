package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for features",
		Long: `Search the features of every registered repository.

A feature matches when its name or description contains the query,
ignoring case.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd.Context(), func(ctx context.Context, env *environment) error {
				return runSearch(ctx, cmd.OutOrStdout(), env, args[0])
			})
		},
	}

	return cmd
}

func runSearch(ctx context.Context, w io.Writer, env *environment, query string) error {
	all, err := env.service.ListFeatures(ctx)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	q := strings.ToLower(query)
	var rows []featureRow
	for _, f := range all {
		if !strings.Contains(strings.ToLower(f.Name), q) && !strings.Contains(strings.ToLower(f.Description), q) {
			continue
		}
		rows = append(rows, featureRow{
			Name:        f.Name,
			Version:     f.Version,
			Installed:   env.service.IsInstalled(f),
			Description: f.Description,
		})
	}
	sortRows(rows)
	return renderFeatures(w, rows, fmt.Sprintf("No features found matching '%s'", query))
}
