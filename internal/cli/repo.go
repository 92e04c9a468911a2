package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/featurectl/internal/logger"
)

// NewRepoCmd creates the repo command with subcommands.
func NewRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage features repositories",
		Long:  "Add, remove, refresh and list features repositories",
	}

	cmd.AddCommand(
		newRepoAddCmd(),
		newRepoRemoveCmd(),
		newRepoListCmd(),
		newRepoRefreshCmd(),
	)

	return cmd
}

func newRepoAddCmd() *cobra.Command {
	var install bool

	cmd := &cobra.Command{
		Use:   "add URI",
		Short: "Add a features repository",
		Long: `Add a features repository by URI. Repositories it references are added
too. Adding a known repository refreshes it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd.Context(), func(ctx context.Context, env *environment) error {
				if err := env.service.AddRepository(ctx, args[0], install); err != nil {
					return fmt.Errorf("failed to add repository '%s': %w", args[0], err)
				}
				logger.Success("Repository added", logger.Fields{"uri": args[0]})
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&install, "install", "i", false, "Install every feature of the repository")

	return cmd
}

func newRepoRemoveCmd() *cobra.Command {
	var uninstall bool

	cmd := &cobra.Command{
		Use:   "remove URI",
		Short: "Remove a features repository",
		Long:  "Remove a features repository by URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd.Context(), func(ctx context.Context, env *environment) error {
				if err := env.service.RemoveRepository(ctx, args[0], uninstall); err != nil {
					return fmt.Errorf("failed to remove repository '%s': %w", args[0], err)
				}
				logger.Success("Repository removed", logger.Fields{"uri": args[0]})
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&uninstall, "uninstall", "u", false, "Uninstall the installed features of the repository first")

	return cmd
}

func newRepoListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered repositories",
		Long:  "List all registered features repositories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnvironment(cmd.Context(), func(_ context.Context, env *environment) error {
				return runRepoList(cmd.OutOrStdout(), env)
			})
		},
	}

	return cmd
}

func newRepoRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "refresh [URI...]",
		Aliases: []string{"sync"},
		Short:   "Reload features repositories",
		Long: `Reload the given repositories, or every registered repository. A
repository that fails to load keeps its previous content.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd.Context(), func(ctx context.Context, env *environment) error {
				return runRepoRefresh(ctx, env, args)
			})
		},
	}

	return cmd
}

type repositoryRow struct {
	Name     string `json:"name" yaml:"name"`
	URI      string `json:"uri" yaml:"uri"`
	Features int    `json:"features" yaml:"features"`
}

func runRepoList(w io.Writer, env *environment) error {
	repos := env.service.ListRepositories()
	rows := make([]repositoryRow, 0, len(repos))
	for _, r := range repos {
		rows = append(rows, repositoryRow{Name: r.Name, URI: r.URI, Features: len(r.Features)})
	}

	if done, err := writeStructured(w, rows); done || err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No repositories registered")
		return err
	}
	tabWriter := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "NAME\tFEATURES\tURI")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%d\t%s\n", r.Name, r.Features, r.URI)
	}
	return tabWriter.Flush()
}

func runRepoRefresh(ctx context.Context, env *environment, uris []string) error {
	if len(uris) == 0 {
		uris = env.registry.URIs()
	}
	var result *multierror.Error
	for _, uri := range uris {
		if err := env.service.RefreshRepository(ctx, uri); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to refresh repository '%s': %w", uri, err))
			continue
		}
		logger.Debug("Repository refreshed", logger.Fields{"uri": uri})
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	logger.Success("Repositories refreshed", logger.Fields{"count": len(uris)})
	return nil
}
