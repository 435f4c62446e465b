package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/internal/ingest"
	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/logging"
	"github.com/uqsoft/crossdock/internal/output"
)

type ingestOptions struct {
	department string
	name       string
	kind       string
}

func newIngestCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Store an artifact in a department folder and index it",
		Long: `Store one artifact in the canonical folder of a department and run the
post-ingest rebuild, exactly as the MCP ingest_text tool does. Pass '-'
to read the content from stdin.

The file name is sanitized before it touches disk; a clash with an
existing artifact gets a numeric suffix instead of overwriting it.

A running MCP server does not share this process's indexes. It picks
the new artifact up on its next rebuild, automatic when knowledge.watch
is on.

Examples:
  crossdock ingest --department sorting регламент_приёмки.txt
  crossdock ingest -d delivery/courier --name "зоны доставки" zones.md
  cat shift_handover.txt | crossdock ingest -d manager --kind text -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.department, "department", "d", "", "Department to file the artifact under (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Artifact name (default: the file's base name)")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "Artifact kind: text, voice or document (default: document for files, text for stdin)")
	_ = cmd.MarkFlagRequired("department")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, path string, opts *ingestOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err == nil {
		defer cleanup()
		slog.SetDefault(logger)
	}

	var (
		data []byte
		name = opts.name
		kind knowledge.Kind
	)

	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		kind = knowledge.KindText
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if name == "" {
			name = filepath.Base(path)
		}
		kind = knowledge.KindDocument
	}

	if opts.kind != "" {
		kind, err = knowledge.ParseKind(opts.kind)
		if err != nil {
			return err
		}
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

	res, err := a.coordinator.Ingest(ctx, ingest.Artifact{Name: name, Kind: kind, Data: data}, opts.department)
	if err != nil {
		if res != nil && res.StoredPath != "" {
			out.Warningf("stored at %s but indexing failed; the artifact becomes searchable after the next successful rebuild", res.StoredPath)
		}
		return err
	}

	out.Successf("stored %s in %s (%d chunks indexed)", res.StoredPath, res.Slug, res.ChunkCount)
	return nil
}
