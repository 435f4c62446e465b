package mcp

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	UserID   int64  `json:"user_id" jsonschema:"Telegram ID of the asking user; the department assignment decides which indices are searched"`
	Question string `json:"question" jsonschema:"the question to answer from the knowledge base"`
}

// AskOutput defines the output schema for the ask tool.
type AskOutput struct {
	Departments []string        `json:"departments" jsonschema:"department slugs that were searched"`
	Admin       bool            `json:"admin" jsonschema:"true when the user is unassigned and every department was visible"`
	Passages    []PassageOutput `json:"passages" jsonschema:"ranked passages answering the question"`
}

// PassageOutput is one retrieved passage.
type PassageOutput struct {
	Department string  `json:"department" jsonschema:"slug of the department the passage came from"`
	Artifact   string  `json:"artifact" jsonschema:"knowledge file the passage belongs to"`
	Text       string  `json:"text" jsonschema:"passage text"`
	Score      float64 `json:"score" jsonschema:"relevance score between 0 and 1"`
}

// ListDepartmentsInput defines the input schema for list_departments (none).
type ListDepartmentsInput struct{}

// ListDepartmentsOutput defines the output schema for list_departments.
type ListDepartmentsOutput struct {
	Departments []DepartmentOutput `json:"departments" jsonschema:"indexed departments, sorted by slug"`
}

// DepartmentOutput describes one indexed department.
type DepartmentOutput struct {
	Slug       string `json:"slug" jsonschema:"canonical department slug"`
	Name       string `json:"name" jsonschema:"human-readable department name"`
	ChunkCount int    `json:"chunk_count" jsonschema:"number of indexed chunks"`
	BuiltAt    string `json:"built_at" jsonschema:"RFC 3339 time the index was built"`
}

// RebuildInput defines the input schema for rebuild_indices.
type RebuildInput struct {
	Departments []string `json:"departments,omitempty" jsonschema:"department slugs to rebuild; empty rebuilds everything"`
}

// RebuildOutput defines the output schema for rebuild_indices.
type RebuildOutput struct {
	Version     uint64                `json:"version" jsonschema:"published snapshot version"`
	DurationMS  int64                 `json:"duration_ms" jsonschema:"rebuild duration in milliseconds"`
	Departments []RebuildStatusOutput `json:"departments" jsonschema:"per-department build outcome"`
}

// RebuildStatusOutput is one department's build outcome.
type RebuildStatusOutput struct {
	Slug          string `json:"slug"`
	ChunkCount    int    `json:"chunk_count"`
	ArtifactCount int    `json:"artifact_count"`
	Error         string `json:"error,omitempty" jsonschema:"build failure, empty on success"`
	RetainedPrior bool   `json:"retained_prior,omitempty" jsonschema:"true when the failed department kept its previously published index"`
}

// IngestTextInput defines the input schema for ingest_text.
type IngestTextInput struct {
	Department string `json:"department" jsonschema:"target department slug, e.g. sorting or delivery/courier"`
	Text       string `json:"text" jsonschema:"content to store and index"`
	Name       string `json:"name,omitempty" jsonschema:"optional file name; derived from the leading words when empty"`
	Kind       string `json:"kind,omitempty" jsonschema:"artifact kind: text, voice or document; defaults to text"`
}

// IngestTextOutput defines the output schema for ingest_text.
type IngestTextOutput struct {
	StoredPath string `json:"stored_path" jsonschema:"artifact path relative to the knowledge base"`
	Department string `json:"department" jsonschema:"canonical department slug the artifact landed in"`
	ChunkCount int    `json:"chunk_count" jsonschema:"department chunk count after the rebuild"`
}

// IndexStatusInput defines the input schema for index_status (none).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for index_status.
type IndexStatusOutput struct {
	Status      string             `json:"status" jsonschema:"ready once a snapshot is published, otherwise not_ready"`
	Version     uint64             `json:"version,omitempty" jsonschema:"published snapshot version"`
	PublishedAt string             `json:"published_at,omitempty" jsonschema:"RFC 3339 time the snapshot was published"`
	Departments []DepartmentOutput `json:"departments,omitempty" jsonschema:"indexed departments"`
	Embeddings  EmbeddingInfo      `json:"embeddings" jsonschema:"active embedding provider"`
}

// EmbeddingInfo describes the embedding configuration and runtime state.
type EmbeddingInfo struct {
	Provider   string `json:"provider" jsonschema:"configured provider"`
	Model      string `json:"model" jsonschema:"active model name"`
	Dimensions int    `json:"dimensions" jsonschema:"vector dimensionality"`
	Status     string `json:"status" jsonschema:"ready or unavailable"`
}
