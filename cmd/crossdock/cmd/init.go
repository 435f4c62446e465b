package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/configs"
	"github.com/uqsoft/crossdock/internal/config"
	"github.com/uqsoft/crossdock/internal/embed"
	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/lifecycle"
	"github.com/uqsoft/crossdock/internal/output"
	"github.com/uqsoft/crossdock/pkg/version"
)

// mcpServerEntry is one server entry in .mcp.json.
type mcpServerEntry struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// mcpFile is the root .mcp.json structure.
type mcpFile struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

type initOptions struct {
	force bool
	noMCP bool
}

func newInitCmd() *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold the knowledge tree and register the MCP server",
		Long: `Prepare the current directory for crossdock:

1. Create the knowledge base dir with one folder per department
2. Generate a .crossdock.yaml configuration template
3. Register crossdock in .mcp.json so MCP hosts can start it
4. Check that the embedding provider answers

Existing files are preserved; --force rewrites the .mcp.json entry.`,
		Example: `  # Initialize in the current directory
  crossdock init

  # Re-register the MCP server after moving the binary
  crossdock init --force

  # Skip MCP registration (running the bot or CLI only)
  crossdock init --no-mcp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runInit(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite the existing MCP registration")
	cmd.Flags().BoolVar(&opts.noMCP, "no-mcp", false, "Skip .mcp.json registration")

	return cmd
}

func runInit(ctx context.Context, cmd *cobra.Command, opts *initOptions) error {
	out := output.New(cmd.OutOrStdout())

	out.Statusf("🚀", "crossdock %s - initializing...", version.Version)
	out.Newline()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	set, err := cfg.DepartmentSet()
	if err != nil {
		return err
	}

	// Step 1: the knowledge tree. Empty folders are valid empty indexes,
	// so scaffolding the whole roster up front is safe.
	know, err := knowledge.NewStore(cfg.Knowledge.BaseDir)
	if err != nil {
		return err
	}
	if err := know.EnsureTree(set); err != nil {
		return err
	}
	out.Successf("knowledge tree ready at %s (%d departments)", know.BaseDir(), set.Len())

	// Step 2: the project config template.
	if err := generateProjectConfig(out, cwd); err != nil {
		out.Warningf("could not create .crossdock.yaml template: %v", err)
	}

	// Step 3: MCP registration.
	if opts.noMCP {
		out.Status("⏭️ ", "Skipping MCP registration (--no-mcp)")
	} else if err := registerInMCPJSON(out, cwd, opts.force); err != nil {
		out.Warningf("MCP registration failed: %v", err)
		out.Status("💡", "You can add crossdock to .mcp.json manually")
	}

	// Step 4: embedder probe.
	out.Newline()
	out.Status("🧠", "Checking embedding provider...")
	embedOpts := embed.Options{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		OllamaHost: cfg.Embeddings.OllamaHost,
	}
	embedder, err := embed.NewEmbedder(ctx, embedOpts)
	if err != nil && embed.ParseProvider(cfg.Embeddings.Provider) == embed.ProviderOllama {
		// The operator asked for Ollama specifically, so try to bring the
		// daemon up rather than reporting a dead endpoint.
		embedder, err = recoverOllama(ctx, out, cfg, embedOpts)
	}
	if err != nil {
		out.Warningf("embedder unavailable: %v", err)
	} else {
		info := embed.GetInfo(ctx, embedder)
		if info.Available {
			out.Successf("embedder ready: %s (%s, %d dims)", info.Provider, info.Model, info.Dimensions)
		} else {
			out.Warningf("embedder %s is not answering; queries will fail until it does", info.Provider)
		}
		if info.Provider == embed.ProviderStatic {
			out.Status("💡", "Set GEMINI_API_KEY or OPENAI_API_KEY for real semantic search")
		}
		_ = embedder.Close()
	}

	out.Newline()
	out.Success("Initialization complete!")
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Drop department files into "+know.BaseDir()+"/<department>/")
	out.Status("", "  2. Assign users: crossdock users set <telegram-id> <department>")
	out.Status("", "  3. Restart your MCP host to pick up the server")

	if !config.UserConfigExists() {
		out.Newline()
		out.Status("💡", "For machine-specific settings (provider, model, log level):")
		out.Status("", "   Run 'crossdock config init' to create user config")
	}

	return nil
}

// recoverOllama starts the local daemon and pulls the embedding model,
// then retries embedder construction. Called only when the config names
// Ollama explicitly.
func recoverOllama(ctx context.Context, out *output.Writer, cfg *config.Config, opts embed.Options) (embed.Embedder, error) {
	mgr := lifecycle.New(cfg.Embeddings.OllamaHost, cfg.Embeddings.Model)

	out.Statusf("🔄", "Ollama at %s is not answering, trying to start it...", mgr.Host())
	if err := mgr.EnsureRunning(ctx); err != nil {
		if errors.Is(err, lifecycle.ErrNotInstalled) {
			out.Newline()
			out.Status("", lifecycle.InstallInstructions())
		}
		return nil, err
	}
	out.Successf("Ollama is up at %s", mgr.Host())

	lastPercent := -1.0
	err := mgr.EnsureModel(ctx, func(ev lifecycle.PullEvent) {
		if ev.Total > 0 && ev.Percent != lastPercent {
			lastPercent = ev.Percent
			fmt.Fprintf(out.Out(), "\r  pulling %s: %.0f%% (%d/%d MB)",
				mgr.Model(), ev.Percent, ev.Completed/(1024*1024), ev.Total/(1024*1024))
		}
	})
	if lastPercent >= 0 {
		out.Newline()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", mgr.Model(), err)
	}

	return embed.NewEmbedder(ctx, opts)
}

// generateProjectConfig writes the .crossdock.yaml template unless a
// project config already exists. Never overwrites user customizations.
func generateProjectConfig(out *output.Writer, dir string) error {
	yamlPath := filepath.Join(dir, ".crossdock.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		out.Status("ℹ️ ", "Existing .crossdock.yaml preserved")
		return nil
	}
	ymlPath := filepath.Join(dir, ".crossdock.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		out.Status("ℹ️ ", "Existing .crossdock.yml found, skipping template")
		return nil
	}

	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write .crossdock.yaml: %w", err)
	}

	out.Statusf("📝", "Created .crossdock.yaml (project configuration)")
	return nil
}

// registerInMCPJSON creates or updates .mcp.json in the given directory.
func registerInMCPJSON(out *output.Writer, dir string, force bool) error {
	mcpPath := filepath.Join(dir, ".mcp.json")

	mcpCfg := mcpFile{MCPServers: make(map[string]mcpServerEntry)}
	if data, err := os.ReadFile(mcpPath); err == nil {
		if err := json.Unmarshal(data, &mcpCfg); err != nil {
			return fmt.Errorf("failed to parse existing .mcp.json: %w", err)
		}
		if mcpCfg.MCPServers == nil {
			mcpCfg.MCPServers = make(map[string]mcpServerEntry)
		}
		if _, exists := mcpCfg.MCPServers["crossdock"]; exists && !force {
			out.Status("ℹ️ ", "crossdock already registered in .mcp.json (use --force to rewrite)")
			return nil
		}
	}

	binPath, err := findCrossdockBinary()
	if err != nil {
		return err
	}

	mcpCfg.MCPServers["crossdock"] = mcpServerEntry{
		Type:    "stdio",
		Command: binPath,
		Args:    []string{"serve"},
		Cwd:     dir,
	}

	data, err := json.MarshalIndent(mcpCfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal .mcp.json: %w", err)
	}
	if err := os.WriteFile(mcpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write .mcp.json: %w", err)
	}

	out.Statusf("📝", "Registered crossdock in %s", mcpPath)
	return nil
}

// findCrossdockBinary locates the running binary, resolving symlinks so
// the registration survives 'go install' upgrades.
func findCrossdockBinary() (string, error) {
	execPath, err := os.Executable()
	if err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			return realPath, nil
		}
		return execPath, nil
	}

	path, err := exec.LookPath("crossdock")
	if err != nil {
		return "", fmt.Errorf("crossdock not found in PATH: %w", err)
	}
	return path, nil
}
