package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/featurectl/pkg/cache"
)

// NewCacheCmd creates the cache command with subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the download cache",
		Long:  "Clean and show information about the cache of downloaded modules",
	}

	cmd.AddCommand(
		newCacheCleanCmd(),
		newCacheInfoCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var (
		all     bool
		modules bool
		partial bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean the download cache",
		Long: `Remove cached downloads to free up disk space. Installed modules keep
working; a later install downloads them again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, err := loadCacheOperation()
			if err != nil {
				return err
			}
			msg, err := op.Clean(all, modules, partial)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Clean all cached files")
	cmd.Flags().BoolVar(&modules, "modules", false, "Clean only completed module downloads")
	cmd.Flags().BoolVar(&partial, "partial", false, "Clean only interrupted downloads")

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		Long:  "Display information about the download cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, err := loadCacheOperation()
			if err != nil {
				return err
			}
			info, err := op.GetInfo()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info)
			return err
		},
	}

	return cmd
}

func newCacheDirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dir",
		Short: "Show cache directory path",
		Long:  "Display the path to the download cache directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, err := loadCacheOperation()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), op.GetDirectory())
			return err
		},
	}

	return cmd
}

func loadCacheOperation() (*cache.Operation, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.NewOperation(cache.NewManager(cfg.GetCacheDir())), nil
}
