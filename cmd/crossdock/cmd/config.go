package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/uqsoft/crossdock/configs"
	"github.com/uqsoft/crossdock/internal/config"
	"github.com/uqsoft/crossdock/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the crossdock configuration files.

User configuration holds machine-specific settings that apply to every
deployment on this machine: the embedding provider and model, the user
database path, the log level. The department roster and knowledge dir
usually live in the project config next to the knowledge tree.

Later sources win: hardcoded defaults, then the user config
(~/.config/crossdock/config.yaml), then the project config
(.crossdock.yaml), then CROSSDOCK_* environment variables.`,
		Example: `  # Write the user config template
  crossdock config init

  # Show what the server will actually run with
  crossdock config show

  # Print the user config location
  crossdock config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user config file",
		Long: `Write the user config template to ~/.config/crossdock/config.yaml
(or under $XDG_CONFIG_HOME if set). API keys never go in here: the
Gemini and OpenAI keys are read from GEMINI_API_KEY and OPENAI_API_KEY.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing file")

	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	userPath := config.GetUserConfigPath()
	userDir := config.GetUserConfigDir()

	if config.UserConfigExists() && !force {
		out.Warning("A user config already exists")
		out.Statusf("📁", "Location: %s", userPath)
		out.Newline()
		out.Status("💡", "Pass --force to overwrite it with the template")
		return nil
	}

	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", userDir, err)
	}
	if err := os.WriteFile(userPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Wrote user config")
	out.Statusf("📁", "Location: %s", userPath)
	out.Newline()
	out.Status("💡", "Edit it, then check the result with 'crossdock config show'")

	return nil
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the configuration after merging all sources, or one source in
isolation with --source.`,
		Example: `  # What the server will run with
  crossdock config show

  # Same, machine readable
  crossdock config show --json

  # Show only the project file
  crossdock config show --source project`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "One of merged, user, project, defaults")

	return cmd
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var cfg *config.Config
	var sourceDesc string

	switch source {
	case "merged":
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		sourceDesc = "merged (defaults, user, project, environment)"

	case "user":
		userPath := config.GetUserConfigPath()
		if !config.UserConfigExists() {
			out.Warning("No user config file")
			out.Statusf("📁", "Expected at: %s", userPath)
			out.Status("💡", "Run 'crossdock config init' to create one")
			return nil
		}
		var err error
		cfg, err = parseConfigAt(userPath)
		if err != nil {
			return err
		}
		sourceDesc = fmt.Sprintf("user (%s)", userPath)

	case "project":
		yamlPath := ".crossdock.yaml"
		ymlPath := ".crossdock.yml"

		var path string
		if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		} else if _, err := os.Stat(ymlPath); err == nil {
			path = ymlPath
		} else {
			abs, _ := filepath.Abs(yamlPath)
			out.Warning("No project config file")
			out.Statusf("📁", "Expected at: %s", abs)
			out.Status("💡", "Run 'crossdock init' to create one")
			return nil
		}
		var err error
		cfg, err = parseConfigAt(path)
		if err != nil {
			return err
		}
		sourceDesc = fmt.Sprintf("project (%s)", path)

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source %q: want merged, user, project or defaults", source)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out.Statusf("📋", "Configuration source: %s", sourceDesc)
	out.Newline()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	return nil
}

// parseConfigAt parses one YAML file over the defaults, without the
// rest of the merge chain.
func parseConfigAt(path string) (*config.Config, error) {
	cfg := config.NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}
