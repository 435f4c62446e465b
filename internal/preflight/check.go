package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uqsoft/crossdock/internal/embed"
)

// Status is the outcome of a single check.
type Status int

const (
	// StatusPass means the check succeeded.
	StatusPass Status = iota
	// StatusWarn means a degraded but workable condition.
	StatusWarn
	// StatusFail means the check failed.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Result holds the outcome of one check.
type Result struct {
	Name     string
	Status   Status
	Message  string
	Required bool
}

// Critical reports whether this is a required check that failed.
func (r Result) Critical() bool {
	return r.Required && r.Status == StatusFail
}

// Pinger is the slice of the user directory the checks need.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes every startup check. Order matters only for log
// readability; each check is independent.
func RunAll(ctx context.Context, knowledgeDir string, users Pinger, embedder embed.Embedder) []Result {
	return []Result{
		CheckKnowledgeDir(knowledgeDir),
		CheckUserStore(ctx, users),
		CheckEmbedder(ctx, embedder),
	}
}

// Critical returns an error summarizing the required checks that
// failed, or nil if the server can start.
func Critical(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Critical() {
			errs = append(errs, fmt.Errorf("%s: %s", r.Name, r.Message))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("preflight failed: %w", errors.Join(errs...))
}

// Log writes one line per result at a level matching its status.
func Log(results []Result) {
	for _, r := range results {
		attrs := []any{
			slog.String("check", r.Name),
			slog.String("status", r.Status.String()),
			slog.String("message", r.Message),
		}
		switch {
		case r.Critical():
			slog.Error("preflight check failed", attrs...)
		case r.Status != StatusPass:
			slog.Warn("preflight check degraded", attrs...)
		default:
			slog.Debug("preflight check passed", attrs...)
		}
	}
}
