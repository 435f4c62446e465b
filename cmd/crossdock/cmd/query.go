package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/internal/logging"
	"github.com/uqsoft/crossdock/internal/output"
)

type queryOptions struct {
	question string
	user     int64
	jsonOut  bool
}

func newQueryCmd() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask the knowledge base from the command line",
		Long: `Build the indexes in-process and answer one question, scoped exactly
as the MCP ask tool would scope it for the given user.

Without --user the query runs with full visibility across every
department, which is what an unassigned operator sees.

Examples:
  crossdock query "как оформить возврат посылки"
  crossdock query --user 123456789 "процедура передачи смены"
  crossdock query --json "sorting belt jam checklist"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.question = strings.Join(args, " ")
			return runQuery(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().Int64VarP(&opts.user, "user", "u", 0, "Telegram user ID to resolve the department scope for")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output the full result as JSON")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, opts *queryOptions) error {
	// Results go to stdout; logs stay in the file.
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

	report, err := a.engine.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	if failed := report.Failed(); len(failed) > 0 && !opts.jsonOut {
		for _, st := range failed {
			out.Warningf("department %s failed to build: %v", st.Slug, st.Err)
		}
	}

	res, err := a.engine.Query(ctx, opts.user, opts.question)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	scope := strings.Join(res.Scope, ", ")
	if res.Admin {
		out.Statusf("🔎", "%d passage(s) across all departments (%s)", len(res.Passages), scope)
	} else {
		out.Statusf("🔎", "%d passage(s) in scope [%s]", len(res.Passages), scope)
	}
	out.Newline()

	if len(res.Passages) == 0 {
		out.Dim("No passages matched. Try rephrasing, or check 'crossdock status' for index health.")
		return nil
	}

	for i, p := range res.Passages {
		out.Header(fmt.Sprintf("%d. [%s] %s#%d (score %.3f)", i+1, p.Department, p.Artifact, p.Seq, p.Score))
		out.Code(p.Text)
	}

	out.Dim(fmt.Sprintf("answered in %s", res.Duration.Round(time.Millisecond)))
	return nil
}
