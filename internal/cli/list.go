package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/version"
)

// featureRow is the rendered form of a feature in list and search output.
type featureRow struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Installed   bool   `json:"installed" yaml:"installed"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var (
		nameFilter string
		available  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List features",
		Long: `List the installed features.

With --available every feature of the registered repositories is listed and
installed ones are marked. Use --name to filter features by name.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnvironment(cmd.Context(), func(ctx context.Context, env *environment) error {
				return runList(ctx, cmd.OutOrStdout(), env, nameFilter, available)
			})
		},
	}

	cmd.Flags().StringVar(&nameFilter, "name", "", "Filter features by name (partial match)")
	cmd.Flags().BoolVarP(&available, "available", "a", false, "List every feature of the registered repositories")

	return cmd
}

func runList(ctx context.Context, w io.Writer, env *environment, nameFilter string, available bool) error {
	var list []*model.Feature
	if available {
		all, err := env.service.ListFeatures(ctx)
		if err != nil {
			return fmt.Errorf("failed to list features: %w", err)
		}
		list = all
	} else {
		list = env.service.ListInstalledFeatures()
	}

	rows := make([]featureRow, 0, len(list))
	for _, f := range list {
		if nameFilter != "" && !strings.Contains(f.Name, nameFilter) {
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
	return renderFeatures(w, rows, "No features installed")
}

func sortRows(rows []featureRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return versionLess(rows[i].Version, rows[j].Version)
	})
}

func versionLess(a, b string) bool {
	va, errA := version.ParseLoose(a)
	vb, errB := version.ParseLoose(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return va.Less(vb)
}

func renderFeatures(w io.Writer, rows []featureRow, empty string) error {
	if done, err := writeStructured(w, rows); done || err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, empty)
		return err
	}

	tabWriter := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "NAME\tVERSION\tSTATE\tDESCRIPTION")
	for _, r := range rows {
		status := "available"
		if r.Installed {
			status = "installed"
		}
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%s\n", r.Name, r.Version, status, truncate(r.Description, MaxDescriptionLength))
	}
	return tabWriter.Flush()
}
