package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/features"
	"github.com/glorpus-work/featurectl/pkg/model"
)

// installFlags are shared by install and uninstall.
type installFlags struct {
	noRefresh       bool
	printRefresh    bool
	noClean         bool
	continueOnError bool
	noStart         bool
}

func (f *installFlags) register(cmd *cobra.Command, install bool) {
	cmd.Flags().BoolVarP(&f.noRefresh, "no-auto-refresh", "r", false, "Do not refresh modules affected by the change")
	cmd.Flags().BoolVarP(&f.printRefresh, "print-refresh", "p", false, "Print the modules that need a refresh")
	if !install {
		return
	}
	cmd.Flags().BoolVarP(&f.noClean, "no-clean", "c", false, "Keep the modules of a failed installation")
	cmd.Flags().BoolVar(&f.continueOnError, "continue", false, "Continue with the remaining features when one fails")
	cmd.Flags().BoolVarP(&f.noStart, "no-auto-start", "s", false, "Leave newly installed modules stopped")
}

func (f *installFlags) options() features.Option {
	var opts features.Option
	if f.noRefresh {
		opts |= features.NoAutoRefresh
	}
	if f.printRefresh {
		opts |= features.PrintModulesToRefresh
	}
	if f.noClean {
		opts |= features.NoCleanIfFailure
	}
	if f.continueOnError {
		opts |= features.ContinueBatchOnFailure
	}
	if f.noStart {
		opts |= features.NoAutoStart
	}
	if Verbose != nil && *Verbose {
		opts |= features.Verbose
	}
	return opts
}

// NewInstallCmd creates the install command.
func NewInstallCmd() *cobra.Command {
	var flags installFlags

	cmd := &cobra.Command{
		Use:   "install FEATURE[/VERSION]...",
		Short: "Install features",
		Long: `Install one or more features from the registered repositories.
Dependencies are resolved and installed in the same batch. Without a version
the highest available version is installed; a version may also be a range
such as [1.0,2.0).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd.Context(), func(ctx context.Context, env *environment) error {
				return runInstall(ctx, env, args, flags.options())
			})
		},
	}

	flags.register(cmd, true)

	return cmd
}

func runInstall(ctx context.Context, env *environment, args []string, opts features.Option) error {
	batch := make([]*model.Feature, 0, len(args))
	for _, arg := range args {
		name, ver, err := splitFeatureArg(arg)
		if err != nil {
			return err
		}
		f, err := env.service.GetFeature(ctx, name, ver)
		if err != nil {
			return fmt.Errorf("failed to look up feature %s: %w", arg, err)
		}
		if f == nil {
			if ver == "" {
				ver = model.DefaultVersion
			}
			return errors.FeatureNotFound(name, ver)
		}
		batch = append(batch, f)
	}

	if err := env.service.InstallFeatures(ctx, batch, opts); err != nil {
		return fmt.Errorf("failed to install features: %w", err)
	}

	for _, f := range batch {
		logger.Success("Installed feature", logger.Fields{"feature": f.ID().String()})
	}
	return nil
}
