package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/uqsoft/crossdock/internal/telemetry"
)

// catalogArtifact is one knowledge file in the catalog resource.
type catalogArtifact struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// catalogDepartment is one department's slice of the catalog resource.
type catalogDepartment struct {
	Slug      string            `json:"slug"`
	Name      string            `json:"name"`
	Artifacts []catalogArtifact `json:"artifacts"`
}

// knowledgeCatalog is the JSON shape of the crossdock://knowledge resource.
type knowledgeCatalog struct {
	BaseDir     string              `json:"base_dir"`
	Departments []catalogDepartment `json:"departments"`

	// UnknownDirs lists folders in the tree that match no configured
	// department. Their content is never indexed.
	UnknownDirs []string `json:"unknown_dirs,omitempty"`
}

// queryMetricsPayload wraps the telemetry snapshot with the derived
// percentage, which is a method rather than a field.
type queryMetricsPayload struct {
	*telemetry.QueryMetricsSnapshot
	ZeroResultPct float64 `json:"zero_result_pct"`
}

// registerResources registers the read-only status resources. The query
// metrics resource only appears when the engine carries a collector.
func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "knowledge_catalog",
			URI:         "crossdock://knowledge",
			Description: "Departments and the artifact files behind their indices",
			MIMEType:    "application/json",
		},
		s.handleKnowledgeCatalog,
	)

	if s.engine.Metrics() != nil {
		s.mcp.AddResource(
			&mcp.Resource{
				Name:        "query_metrics",
				URI:         "crossdock://query_metrics",
				Description: "Query telemetry: department demand, recurring terms, zero-result questions",
				MIMEType:    "application/json",
			},
			s.handleQueryMetrics,
		)
	}
}

// handleKnowledgeCatalog reads the department folders into a JSON catalog.
func (s *Server) handleKnowledgeCatalog(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	catalog := knowledgeCatalog{
		BaseDir:     s.know.BaseDir(),
		Departments: make([]catalogDepartment, 0, len(s.set.Slugs())),
	}

	for _, slug := range s.set.Slugs() {
		artifacts, err := s.know.ListArtifacts(slug)
		if err != nil {
			return nil, MapError(err)
		}
		dept := catalogDepartment{
			Slug:      slug,
			Name:      s.set.DisplayName(slug),
			Artifacts: make([]catalogArtifact, 0, len(artifacts)),
		}
		for _, a := range artifacts {
			dept.Artifacts = append(dept.Artifacts, catalogArtifact{
				Name:     a.Name,
				Size:     a.Size,
				Modified: a.ModTime.Format(time.RFC3339),
			})
		}
		catalog.Departments = append(catalog.Departments, dept)
	}

	if unknown, err := s.know.UnknownDirs(s.set); err == nil {
		catalog.UnknownDirs = unknown
	}

	return jsonResource("crossdock://knowledge", catalog)
}

// handleQueryMetrics serves the telemetry snapshot.
func (s *Server) handleQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	metrics := s.engine.Metrics()
	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	snap := metrics.Snapshot()
	return jsonResource("crossdock://query_metrics", queryMetricsPayload{
		QueryMetricsSnapshot: snap,
		ZeroResultPct:        snap.ZeroResultPercentage(),
	})
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
