package cli

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/features"
)

// NewUninstallCmd creates the uninstall command.
func NewUninstallCmd() *cobra.Command {
	var (
		flags installFlags
		force bool
	)

	cmd := &cobra.Command{
		Use:   "uninstall FEATURE[/VERSION]...",
		Short: "Uninstall features",
		Long: `Uninstall one or more installed features.
Modules still owned by another installed feature stay installed. When several
versions of a feature are installed the version must be given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd.Context(), func(ctx context.Context, env *environment) error {
				return runUninstall(ctx, env, args, flags.options(), force)
			})
		},
	}

	flags.register(cmd, false)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Continue with the remaining features when one fails")

	return cmd
}

func runUninstall(ctx context.Context, env *environment, args []string, opts features.Option, force bool) error {
	var result *multierror.Error
	for _, arg := range args {
		name, ver, err := splitFeatureArg(arg)
		if err != nil {
			return err
		}
		if err := env.service.UninstallFeature(ctx, name, ver, opts); err != nil {
			err = fmt.Errorf("failed to uninstall %s: %w", arg, err)
			if !force {
				return err
			}
			logger.Warn(err.Error())
			result = multierror.Append(result, err)
			continue
		}
		logger.Success("Uninstalled feature", logger.Fields{"feature": arg})
	}
	return result.ErrorOrNil()
}
