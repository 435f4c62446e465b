package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/output"
)

func newDepartmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "departments",
		Aliases: []string{"depts"},
		Short:   "List the configured departments and their knowledge folders",
		Long: `List every department in the roster with its display name and what
sits in its knowledge folder. Folders that exist on disk but match no
configured department are flagged; their content is never indexed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDepartments(cmd)
		},
	}

	return cmd
}

func runDepartments(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	set, err := cfg.DepartmentSet()
	if err != nil {
		return err
	}
	know, err := knowledge.NewStore(cfg.Knowledge.BaseDir)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())

	rows := make([][]string, 0, set.Len())
	for _, d := range set.All() {
		arts, err := know.ListArtifacts(d.Slug)
		if err != nil {
			return err
		}
		var size int64
		for _, a := range arts {
			size += a.Size
		}
		rows = append(rows, []string{
			d.Slug,
			d.Name,
			fmt.Sprintf("%d", len(arts)),
			formatBytes(size),
		})
	}
	out.Table([]string{"DEPARTMENT", "NAME", "ARTIFACTS", "SIZE"}, rows)

	unknown, err := know.UnknownDirs(set)
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		out.Newline()
		out.Warningf("unindexed folders in %s: %s", know.BaseDir(), strings.Join(unknown, ", "))
	}

	return nil
}

// formatBytes renders a byte count the way humans read them.
func formatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
