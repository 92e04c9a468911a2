package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/features"
)

// NewBootCmd creates the boot command.
func NewBootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Start the installer",
		Long: `Restore the installed features and, on the first start, register the
configured repositories and install the boot features. Boot features are
installed once; later starts only restore the ledger.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnvironment(cmd.Context(), runBoot)
		},
	}

	return cmd
}

func runBoot(ctx context.Context, env *environment) error {
	requested := features.ParseBootFeatures(env.cfg.Settings.BootFeatures)
	logger.Debug("Waiting for boot features", logger.Fields{"count": len(requested)})

	if err := env.boot.Wait(ctx); err != nil {
		return fmt.Errorf("failed to install boot features: %w", err)
	}

	installed := env.service.ListInstalledFeatures()
	logger.Success("Installer started", logger.Fields{
		"repositories": len(env.service.ListRepositories()),
		"features":     len(installed),
	})
	return nil
}
