// Package search resolves a user's department visibility scope and
// merges per-department retrieval into one ranked, deduplicated answer
// set. Hybrid mode fuses keyword and vector results with Reciprocal
// Rank Fusion (RRF).
package search

import (
	"context"
	"time"
)

// UserDirectory looks up a user's raw department assignment. The empty
// string means unassigned, which grants administrator visibility.
type UserDirectory interface {
	GetDepartment(ctx context.Context, userID int64) (string, error)
}

// Passage is one retrieved chunk in a query answer.
type Passage struct {
	// Department is the slug whose index produced the passage.
	Department string `json:"department"`

	// Artifact and Seq locate the passage inside the knowledge tree.
	Artifact string `json:"artifact"`
	Seq      int    `json:"seq"`

	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// QueryResult is a served query with its resolution trace.
type QueryResult struct {
	Query    string        `json:"query"`
	Scope    []string      `json:"scope"`
	Admin    bool          `json:"admin"`
	Passages []Passage     `json:"passages"`
	Duration time.Duration `json:"duration"`
}

// DepartmentInfo describes one indexed department.
type DepartmentInfo struct {
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	ChunkCount int       `json:"chunk_count"`
	BuiltAt    time.Time `json:"built_at"`
}
