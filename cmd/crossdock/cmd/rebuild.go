package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/index"
	"github.com/uqsoft/crossdock/internal/logging"
	"github.com/uqsoft/crossdock/internal/output"
)

func newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild [department...]",
		Short: "Build the department indexes and report the result",
		Long: `Build every department index (or only the named ones) in-process and
print a per-department report. Useful as a pre-flight check: it catches
unreadable artifacts and embedder problems before the serving process
trips over them.

The running MCP server keeps its own snapshot. It reindexes through the
rebuild_indices tool, or automatically when knowledge.watch is on.

Examples:
  crossdock rebuild
  crossdock rebuild sorting delivery/courier`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd.Context(), cmd, args)
		},
	}

	return cmd
}

func runRebuild(ctx context.Context, cmd *cobra.Command, departments []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err == nil {
		defer cleanup()
		slog.SetDefault(logger)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())

	var report *index.Report
	if len(departments) > 0 {
		slugs := make([]string, len(departments))
		for i, d := range departments {
			slugs[i] = department.Normalize(d)
		}
		report, err = a.engine.RebuildDepartments(ctx, slugs...)
	} else {
		report, err = a.engine.Rebuild(ctx)
	}
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(report.Statuses))
	for _, st := range report.Statuses {
		status := "ok"
		switch {
		case st.Err != nil && st.RetainedPrior:
			status = "failed (prior index retained)"
		case st.Err != nil:
			status = "failed"
		}
		rows = append(rows, []string{
			st.Slug,
			fmt.Sprintf("%d", st.ArtifactCount),
			fmt.Sprintf("%d", st.ChunkCount),
			status,
		})
	}
	out.Table([]string{"DEPARTMENT", "ARTIFACTS", "CHUNKS", "STATUS"}, rows)
	out.Newline()

	for _, st := range report.Failed() {
		out.Warningf("%s: %v", st.Slug, st.Err)
	}

	out.Successf("published snapshot version %d in %s",
		report.Version, report.Duration.Round(time.Millisecond))
	return nil
}
