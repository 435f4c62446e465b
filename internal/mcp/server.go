package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/uqsoft/crossdock/internal/config"
	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/embed"
	"github.com/uqsoft/crossdock/internal/index"
	"github.com/uqsoft/crossdock/internal/ingest"
	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/search"
	"github.com/uqsoft/crossdock/pkg/version"
)

// Server bridges assistant clients with the department retrieval engine.
// Tools cover the question path (ask), the admin surfaces (rebuild_indices,
// ingest_text) and the status surfaces (list_departments, index_status).
type Server struct {
	mcp      *mcp.Server
	engine   *search.Engine
	ingester *ingest.Coordinator
	know     *knowledge.Store
	set      *department.Set
	embedder embed.Embedder
	cfg      *config.Config
	logger   *slog.Logger
}

// NewServer creates an MCP server over the wired engine.
// The embedder is only consulted for status reporting; nil degrades the
// embeddings section of index_status rather than failing.
func NewServer(engine *search.Engine, ingester *ingest.Coordinator, know *knowledge.Store, set *department.Set, embedder embed.Embedder, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if ingester == nil {
		return nil, errors.New("ingestion coordinator is required")
	}
	if know == nil {
		return nil, errors.New("knowledge store is required")
	}
	if set == nil {
		return nil, errors.New("department set is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:   engine,
		ingester: ingester,
		know:     know,
		set:      set,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "crossdock",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the department knowledge base. The user's department assignment decides which indices are searched; unassigned users see every department.",
	}, s.handleAsk)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_departments",
		Description: "List indexed departments with display names and chunk counts.",
	}, s.handleListDepartments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rebuild_indices",
		Description: "Rebuild department indices from the knowledge tree and publish a new snapshot. Pass department slugs to rebuild a subset.",
	}, s.handleRebuild)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_text",
		Description: "Store a text note in a department's knowledge folder and reindex so it becomes searchable.",
	}, s.handleIngestText)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the snapshot version, per-department index state and the active embedding provider.",
	}, s.handleIndexStatus)

	s.logger.Info("MCP tools registered", slog.Int("count", 5))
}

// handleAsk runs a scoped query for the asking user.
func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, AskOutput{}, NewInvalidParamsError("question is required and must be non-empty")
	}

	start := time.Now()
	requestID := generateRequestID()

	res, err := s.engine.Query(ctx, in.UserID, in.Question)
	if err != nil {
		s.logger.Error("ask failed",
			slog.String("request_id", requestID),
			slog.Int64("user_id", in.UserID),
			slog.String("error", err.Error()))
		return nil, AskOutput{}, MapError(err)
	}

	out := AskOutput{
		Departments: res.Scope,
		Admin:       res.Admin,
		Passages:    make([]PassageOutput, 0, len(res.Passages)),
	}
	for _, p := range res.Passages {
		out.Passages = append(out.Passages, PassageOutput{
			Department: p.Department,
			Artifact:   p.Artifact,
			Text:       p.Text,
			Score:      p.Score,
		})
	}

	s.logger.Info("ask completed",
		slog.String("request_id", requestID),
		slog.Int64("user_id", in.UserID),
		slog.Int("results", len(out.Passages)),
		slog.Duration("duration", time.Since(start)))
	return nil, out, nil
}

// handleListDepartments lists the departments behind the snapshot.
func (s *Server) handleListDepartments(_ context.Context, _ *mcp.CallToolRequest, _ ListDepartmentsInput) (
	*mcp.CallToolResult,
	ListDepartmentsOutput,
	error,
) {
	infos, err := s.engine.ListDepartments()
	if err != nil {
		return nil, ListDepartmentsOutput{}, MapError(err)
	}
	return nil, ListDepartmentsOutput{Departments: toDepartmentOutputs(infos)}, nil
}

// handleRebuild rebuilds all or selected departments.
func (s *Server) handleRebuild(ctx context.Context, _ *mcp.CallToolRequest, in RebuildInput) (
	*mcp.CallToolResult,
	RebuildOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("rebuild started",
		slog.String("request_id", requestID),
		slog.Any("departments", in.Departments))

	var (
		report *index.Report
		err    error
	)
	if len(in.Departments) == 0 {
		report, err = s.engine.Rebuild(ctx)
	} else {
		slugs := make([]string, len(in.Departments))
		for i, d := range in.Departments {
			slugs[i] = department.Normalize(d)
		}
		report, err = s.engine.RebuildDepartments(ctx, slugs...)
	}
	if err != nil {
		s.logger.Error("rebuild failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, RebuildOutput{}, MapError(err)
	}

	out := RebuildOutput{
		Version:     report.Version,
		DurationMS:  report.Duration.Milliseconds(),
		Departments: make([]RebuildStatusOutput, 0, len(report.Statuses)),
	}
	for _, st := range report.Statuses {
		ro := RebuildStatusOutput{
			Slug:          st.Slug,
			ChunkCount:    st.ChunkCount,
			ArtifactCount: st.ArtifactCount,
			RetainedPrior: st.RetainedPrior,
		}
		if st.Err != nil {
			ro.Error = st.Err.Error()
		}
		out.Departments = append(out.Departments, ro)
	}

	s.logger.Info("rebuild completed",
		slog.String("request_id", requestID),
		slog.Uint64("version", out.Version),
		slog.Int("failed", len(report.Failed())),
		slog.Duration("duration", time.Since(start)))
	return nil, out, nil
}

// handleIngestText stores a note and reindexes its department.
func (s *Server) handleIngestText(ctx context.Context, _ *mcp.CallToolRequest, in IngestTextInput) (
	*mcp.CallToolResult,
	IngestTextOutput,
	error,
) {
	if strings.TrimSpace(in.Department) == "" {
		return nil, IngestTextOutput{}, NewInvalidParamsError("department is required")
	}
	if in.Text == "" {
		return nil, IngestTextOutput{}, NewInvalidParamsError("text is required")
	}

	kind := knowledge.KindText
	if in.Kind != "" {
		parsed, err := knowledge.ParseKind(in.Kind)
		if err != nil {
			return nil, IngestTextOutput{}, NewInvalidParamsError(err.Error())
		}
		kind = parsed
	}

	res, err := s.ingester.Ingest(ctx, ingest.Artifact{
		Name: in.Name,
		Kind: kind,
		Data: []byte(in.Text),
	}, in.Department)
	if err != nil {
		mcpErr := MapError(err)
		if res != nil {
			// Stored but not searchable: tell the client where it landed.
			mcpErr.Message = mcpErr.Message +
				" The artifact was stored at " + res.StoredPath +
				" and becomes searchable after the next successful rebuild."
		}
		return nil, IngestTextOutput{}, mcpErr
	}

	return nil, IngestTextOutput{
		StoredPath: res.StoredPath,
		Department: res.Slug,
		ChunkCount: res.ChunkCount,
	}, nil
}

// handleIndexStatus reports snapshot and embedder state. An unpublished
// registry is a reportable status here, not an error.
func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out := &IndexStatusOutput{Embeddings: s.embeddingInfo(ctx)}

	snap, err := s.engine.Snapshot()
	if err != nil {
		out.Status = "not_ready"
		return nil, out, nil
	}

	out.Status = "ready"
	out.Version = snap.Version()
	out.PublishedAt = snap.PublishedAt().Format(time.RFC3339)

	if infos, err := s.engine.ListDepartments(); err == nil {
		out.Departments = toDepartmentOutputs(infos)
	}
	return nil, out, nil
}

func (s *Server) embeddingInfo(ctx context.Context) EmbeddingInfo {
	info := EmbeddingInfo{
		Provider: s.cfg.Embeddings.Provider,
		Model:    s.cfg.Embeddings.Model,
	}
	if s.embedder == nil {
		info.Status = "unavailable"
		return info
	}

	info.Model = s.embedder.ModelName()
	info.Dimensions = s.embedder.Dimensions()
	if s.embedder.Available(ctx) {
		info.Status = "ready"
	} else {
		info.Status = "unavailable"
	}
	return info
}

func toDepartmentOutputs(infos []search.DepartmentInfo) []DepartmentOutput {
	outs := make([]DepartmentOutput, 0, len(infos))
	for _, info := range infos {
		outs = append(outs, DepartmentOutput{
			Slug:       info.Slug,
			Name:       info.Name,
			ChunkCount: info.ChunkCount,
			BuiltAt:    info.BuiltAt.Format(time.RFC3339),
		})
	}
	return outs
}

// Serve runs the server over stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
