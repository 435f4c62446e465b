package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/internal/embed"
	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/logging"
	"github.com/uqsoft/crossdock/internal/output"
	"github.com/uqsoft/crossdock/internal/userstore"
)

// statusReport is the JSON shape of 'crossdock status --json'.
type statusReport struct {
	KnowledgeDir string             `json:"knowledge_dir"`
	Departments  []statusDepartment `json:"departments"`
	UnknownDirs  []string           `json:"unknown_dirs,omitempty"`
	Embeddings   statusEmbeddings   `json:"embeddings"`
	Users        statusUsers        `json:"users"`
	LogFile      string             `json:"log_file,omitempty"`
}

type statusDepartment struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Artifacts int    `json:"artifacts"`
	SizeBytes int64  `json:"size_bytes"`
}

type statusEmbeddings struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
}

type statusUsers struct {
	DBPath   string `json:"db_path"`
	Total    int    `json:"total"`
	Assigned int    `json:"assigned"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show knowledge tree, embedder and user directory health",
		Long: `Inspect everything the server depends on without starting it:
  - the knowledge tree and per-department artifact counts
  - folders on disk that match no configured department
  - the embedding provider and whether it answers
  - the user directory database
  - where the logs are

Index snapshots live inside the serving process; use the MCP
index_status tool to inspect the live one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
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

	report := statusReport{KnowledgeDir: know.BaseDir()}

	for _, d := range set.All() {
		arts, err := know.ListArtifacts(d.Slug)
		if err != nil {
			return err
		}
		var size int64
		for _, a := range arts {
			size += a.Size
		}
		report.Departments = append(report.Departments, statusDepartment{
			Slug:      d.Slug,
			Name:      d.Name,
			Artifacts: len(arts),
			SizeBytes: size,
		})
	}

	report.UnknownDirs, err = know.UnknownDirs(set)
	if err != nil {
		return err
	}

	// Probe the embedder the same way serve would construct it. Auto
	// detection may pick a different provider here if credentials differ
	// between this shell and the server's environment.
	embedder, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		CacheSize:  cfg.Embeddings.CacheSize,
		OllamaHost: cfg.Embeddings.OllamaHost,
	})
	if err != nil {
		report.Embeddings = statusEmbeddings{Provider: cfg.Embeddings.Provider, Available: false}
	} else {
		info := embed.GetInfo(ctx, embedder)
		report.Embeddings = statusEmbeddings{
			Provider:   string(info.Provider),
			Model:      info.Model,
			Dimensions: info.Dimensions,
			Available:  info.Available,
		}
		_ = embedder.Close()
	}

	report.Users.DBPath = cfg.Users.DBPath
	if users, err := userstore.Open(cfg.Users.DBPath); err == nil {
		if all, err := users.List(ctx); err == nil {
			report.Users.Total = len(all)
			for _, u := range all {
				if u.Department != "" {
					report.Users.Assigned++
				}
			}
		}
		_ = users.Close()
	}

	if path, err := logging.FindLogFile(""); err == nil {
		report.LogFile = path
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printStatus(cmd, report)
	return nil
}

func printStatus(cmd *cobra.Command, report statusReport) {
	out := output.New(cmd.OutOrStdout())

	out.Header("Knowledge")
	out.KV("Base dir", report.KnowledgeDir)
	if _, err := os.Stat(report.KnowledgeDir); err != nil {
		out.Warning("base dir does not exist; run 'crossdock init' to scaffold it")
	}
	out.Newline()

	rows := make([][]string, 0, len(report.Departments))
	for _, d := range report.Departments {
		rows = append(rows, []string{d.Slug, d.Name, fmt.Sprintf("%d", d.Artifacts), formatBytes(d.SizeBytes)})
	}
	out.Table([]string{"DEPARTMENT", "NAME", "ARTIFACTS", "SIZE"}, rows)
	if len(report.UnknownDirs) > 0 {
		out.Newline()
		out.Warningf("unindexed folders: %s", strings.Join(report.UnknownDirs, ", "))
	}
	out.Newline()

	out.Header("Embeddings")
	out.KV("Provider", report.Embeddings.Provider)
	out.KV("Model", report.Embeddings.Model)
	out.KV("Dimensions", fmt.Sprintf("%d", report.Embeddings.Dimensions))
	if report.Embeddings.Available {
		out.Success("provider is answering")
	} else {
		out.Error("provider is not answering")
	}
	out.Newline()

	out.Header("Users")
	out.KV("Database", report.Users.DBPath)
	out.KV("Directory", fmt.Sprintf("%d users, %d assigned", report.Users.Total, report.Users.Assigned))

	if report.LogFile != "" {
		out.Newline()
		out.Header("Logs")
		out.KV("File", report.LogFile)
	}
}
