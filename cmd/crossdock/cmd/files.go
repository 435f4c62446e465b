package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/output"
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage artifacts in the knowledge tree",
		Long: `Inspect and remove the raw files under the knowledge base directory.
Paths are always relative to the base dir, for example
'sorting/регламент_приёмки.txt'.`,
	}

	cmd.AddCommand(newFilesListCmd())
	cmd.AddCommand(newFilesDeleteCmd())

	return cmd
}

func newFilesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [department]",
		Short: "List stored artifacts, optionally for one department",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := ""
			if len(args) == 1 {
				slug = args[0]
			}
			return runFilesList(cmd, slug)
		},
	}

	return cmd
}

func runFilesList(cmd *cobra.Command, slug string) error {
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

	slugs := set.Slugs()
	if slug != "" {
		slug = department.Normalize(slug)
		if !set.Contains(slug) {
			return fmt.Errorf("unknown department %q (valid: %s)", slug, strings.Join(set.Slugs(), ", "))
		}
		slugs = []string{slug}
	}

	out := output.New(cmd.OutOrStdout())

	var rows [][]string
	for _, s := range slugs {
		arts, err := know.ListArtifacts(s)
		if err != nil {
			return err
		}
		for _, a := range arts {
			rows = append(rows, []string{
				a.RelPath,
				formatBytes(a.Size),
				a.ModTime.Format("2006-01-02 15:04"),
			})
		}
	}

	if len(rows) == 0 {
		out.Dim("no artifacts stored")
		return nil
	}
	out.Table([]string{"PATH", "SIZE", "MODIFIED"}, rows)

	return nil
}

func newFilesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete one artifact by its path relative to the base dir",
		Long: `Delete an artifact file. The serving process drops it from answers on
its next rebuild.

Example:
  crossdock files delete sorting/устаревший_регламент.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilesDelete(cmd, args[0])
		},
	}

	return cmd
}

func runFilesDelete(cmd *cobra.Command, relPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	know, err := knowledge.NewStore(cfg.Knowledge.BaseDir)
	if err != nil {
		return err
	}

	if err := know.DeleteArtifact(relPath); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("deleted %s", relPath)
	return nil
}
