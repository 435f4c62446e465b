// Package cmd implements the crossdock command tree.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/internal/logging"
	"github.com/uqsoft/crossdock/internal/profiling"
	"github.com/uqsoft/crossdock/pkg/version"
)

// Persistent flags shared by every subcommand.
var (
	configPath   string
	debugMode    bool
	profileCPU   string
	profileMem   string
	profileTrace string

	profSession    *profiling.Session
	loggingCleanup func()
)

// NewRootCmd creates the root command for the crossdock CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crossdock",
		Short: "Department-scoped retrieval MCP server for logistics knowledge",
		Long: `Crossdock serves a logistics company's internal knowledge base over
the Model Context Protocol. Every department folder gets its own
retrieval index; a query sees the caller's department plus the shared
common pool, so courier playbooks never surface in the sorting hub's
answers.

Running bare 'crossdock' starts the MCP server, same as 'crossdock
serve'. The other commands are operator tooling: inspect the knowledge
tree, ingest regulations, assign users to departments, tail the logs.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			// An unknown subcommand lands here as args; show help rather
			// than silently starting a stdio server nobody is speaking to.
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd.Context(), cmd, &serveOptions{})
		},
	}

	cmd.SetVersionTemplate("crossdock version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: discover .crossdock.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Debug logging to ~/.crossdock/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write a CPU profile to the given file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write a heap profile to the given file on exit")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write an execution trace to the given file")

	cmd.PersistentPreRunE = startDiagnostics
	cmd.PersistentPostRunE = stopDiagnostics

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newDepartmentsCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newFilesCmd())
	cmd.AddCommand(newUsersCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startDiagnostics runs before every subcommand: debug logging and the
// runtime profilers, each only when its flag asks for it.
func startDiagnostics(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Debug("debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	s, err := profiling.Start(profileCPU, profileTrace)
	if err != nil {
		return err
	}
	profSession = s

	return nil
}

// stopDiagnostics closes out whatever startDiagnostics opened. The heap
// profile is written here, at exit, where it captures the command's
// peak working set.
func stopDiagnostics(_ *cobra.Command, _ []string) error {
	profSession.Stop()
	profSession = nil

	if profileMem != "" {
		if err := profiling.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
