package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/fsutil"
	"github.com/glorpus-work/featurectl/pkg/hooks"
)

// NewHookCmd creates the hook command with subcommands.
func NewHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Manage lifecycle hook scripts",
		Long: `Hook scripts are tengo scripts named after the event they handle and
stored in the hooks directory. They run when features are installed or
uninstalled and when repositories are added or removed.`,
	}

	cmd.AddCommand(
		newHookListCmd(),
		newHookTemplateCmd(),
	)

	return cmd
}

func newHookListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the supported hook types and their scripts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			manager := hooks.NewHookManager()
			if err := hooks.LoadHooksFromDir(manager, cfg.Settings.HooksDir); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range hooks.Types {
				state := "-"
				if path, ok := manager.Source(t); ok {
					state = path
				}
				_, _ = fmt.Fprintf(out, "%-20s %s\n", t, state)
			}
			return nil
		},
	}

	return cmd
}

func newHookTemplateCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "template TYPE",
		Short: "Print a hook script template",
		Long:  "Print a template for a hook script, or write it into the hooks directory.\nTypes: " + hookTypesUsage(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hookType := hooks.HookType(args[0])
			if !hooks.IsKnown(hookType) {
				return hooks.ErrUnsupportedHookEvent(args[0])
			}
			template := hooks.HookTemplate(hookType)
			if !write {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), template)
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Settings.HooksDir, string(hookType)+".tengo")
			if fsutil.Exists(path) {
				return fmt.Errorf("hook script %s already exists", path)
			}
			if err := fsutil.EnsureFileDir(path); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(template+"\n"), fsutil.FileModeDefault); err != nil {
				return fmt.Errorf("failed to write hook script: %w", err)
			}
			logger.Success("Hook script created", logger.Fields{"path": path})
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write the template into the hooks directory")
	cmd.ValidArgs = hookTypeNames()

	return cmd
}

func hookTypeNames() []string {
	names := make([]string, 0, len(hooks.Types))
	for _, t := range hooks.Types {
		names = append(names, string(t))
	}
	return names
}

// hookTypesUsage lists the hook types for help output.
func hookTypesUsage() string {
	return strings.Join(hookTypeNames(), ", ")
}
