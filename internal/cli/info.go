package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/model"
)

// featureInfo is the detailed form of one feature.
type featureInfo struct {
	*model.Feature `yaml:",inline"`

	Installed bool     `json:"installed" yaml:"installed"`
	Modules   []string `json:"installed_modules,omitempty" yaml:"installed_modules,omitempty"`
}

// NewInfoCmd creates the info command.
func NewInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info FEATURE[/VERSION]",
		Short: "Show feature details",
		Long: `Show the modules, dependencies, conditionals and configurations of a
feature, and the modules it owns when it is installed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd.Context(), func(ctx context.Context, env *environment) error {
				return runInfo(ctx, cmd.OutOrStdout(), env, args[0])
			})
		},
	}

	return cmd
}

func runInfo(ctx context.Context, w io.Writer, env *environment, arg string) error {
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

	info := featureInfo{Feature: f, Installed: env.service.IsInstalled(f)}
	if ids, ok := env.service.InstalledModules(f.ID()); ok {
		for _, id := range ids {
			label := id.String()
			if d, ok := env.host.Describe(id); ok {
				label = fmt.Sprintf("%s/%s (%s)", d.SymbolicName, d.Version, id)
			}
			info.Modules = append(info.Modules, label)
		}
	}

	if done, err := writeStructured(w, info); done || err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Feature:     %s\n", f.ID())
	if f.Description != "" {
		_, _ = fmt.Fprintf(w, "Description: %s\n", f.Description)
	}
	_, _ = fmt.Fprintf(w, "Installed:   %t\n", info.Installed)
	if f.Resolver != "" {
		_, _ = fmt.Fprintf(w, "Resolver:    %s\n", f.Resolver)
	}
	printSection(w, "Dependencies", len(f.Dependencies), func(i int) string { return f.Dependencies[i].String() })
	printSection(w, "Modules", len(f.Bundles), func(i int) string {
		b := f.Bundles[i]
		line := b.Location
		if b.StartLevel > 0 {
			line += fmt.Sprintf(" start-level=%d", b.StartLevel)
		}
		if b.Dependency {
			line += " dependency"
		}
		return line
	})
	printSection(w, "Conditionals", len(f.Conditionals), func(i int) string { return f.Conditionals[i].ConditionID() })
	printSection(w, "Configurations", len(f.Configs), func(i int) string { return f.Configs[i].PID })
	printSection(w, "Configuration files", len(f.ConfigFiles), func(i int) string {
		return f.ConfigFiles[i].Location + " -> " + f.ConfigFiles[i].FinalName
	})
	printSection(w, "Installed modules", len(info.Modules), func(i int) string { return info.Modules[i] })
	return nil
}

func printSection(w io.Writer, title string, n int, line func(i int) string) {
	if n == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\n%s (%d):\n", title, n)
	for i := 0; i < n; i++ {
		_, _ = fmt.Fprintf(w, "  %s\n", line(i))
	}
}
