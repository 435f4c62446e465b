package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/internal/logging"
	mcpserver "github.com/uqsoft/crossdock/internal/mcp"
	"github.com/uqsoft/crossdock/internal/preflight"
	"github.com/uqsoft/crossdock/internal/watcher"
	"github.com/uqsoft/crossdock/pkg/version"
)

type serveOptions struct {
	watch    bool
	watchSet bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server. The client (Claude Code,
Cursor, or any MCP host) owns stdin/stdout; all diagnostics go to the
log file. Use 'crossdock status' or 'crossdock logs' for visibility.

The first index build runs in the background. Until it publishes, the
ask tool answers with "index not ready" instead of blocking the
handshake.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.watchSet = cmd.Flags().Changed("watch")
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Rebuild when the knowledge tree changes (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *serveOptions) error {
	// JSON-RPC owns stdout from here on. Nothing below may print; every
	// diagnostic goes through slog to the log file.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPMode(level)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	if err := verifyStdinForMCP(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// Missing department folders are created up front: an empty folder
	// is a valid empty index, and the watcher needs the directories to
	// exist before it can watch them.
	if err := a.know.EnsureTree(a.set); err != nil {
		return err
	}

	checks := preflight.RunAll(ctx, a.know.BaseDir(), a.users, a.embedder)
	preflight.Log(checks)
	if err := preflight.Critical(checks); err != nil {
		return err
	}

	srv, err := mcpserver.NewServer(a.engine, a.coordinator, a.know, a.set, a.embedder, cfg)
	if err != nil {
		return err
	}

	// The first build can take minutes on a large tree with a remote
	// embedder, so it must not hold up the MCP handshake.
	go func() {
		report, err := a.engine.Rebuild(ctx)
		if err != nil {
			slog.Error("initial index build failed", slog.String("error", err.Error()))
			return
		}
		slog.Info("initial index build complete",
			slog.Uint64("version", report.Version),
			slog.Int("departments", len(report.Statuses)),
			slog.Int("failed", len(report.Failed())),
			slog.Duration("duration", report.Duration))
	}()

	watch := cfg.Knowledge.Watch
	if opts.watchSet {
		watch = opts.watch
	}
	if watch {
		debounce, err := cfg.WatchDebounce()
		if err != nil {
			return err
		}
		go func() {
			err := watcher.Run(ctx, a.know.BaseDir(), watcher.Options{Debounce: debounce}, func(ctx context.Context) error {
				_, err := a.engine.Rebuild(ctx)
				return err
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("knowledge watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	slog.Info("crossdock serving",
		slog.String("version", version.Version),
		slog.String("knowledge_dir", a.know.BaseDir()),
		slog.Int("departments", a.set.Len()),
		slog.Bool("watch", watch))

	return srv.Serve(ctx)
}

// verifyStdinForMCP rejects interactive invocations. The server speaks
// JSON-RPC over stdio; a terminal on stdin means no MCP client is
// attached and the process would sit there waiting for a handshake that
// never comes.
func verifyStdinForMCP(cmd *cobra.Command) error {
	stdin, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return nil
	}
	if isatty.IsTerminal(stdin.Fd()) || isatty.IsCygwinTerminal(stdin.Fd()) {
		return fmt.Errorf("stdin is a terminal, not an MCP client\n" +
			"Register crossdock with your MCP host (run 'crossdock init') or pipe JSON-RPC to stdin")
	}
	return nil
}
