package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/uqsoft/crossdock/internal/embed"
)

// probeFile is the temporary file CheckKnowledgeDir creates. The leading
// dot keeps it out of artifact listings if a crash leaves it behind.
const probeFile = ".crossdock-probe"

// CheckKnowledgeDir verifies the knowledge tree accepts writes. A
// read-only mount would serve queries fine but break ingestion on the
// first artifact_put, so catch it at startup instead.
func CheckKnowledgeDir(dir string) Result {
	result := Result{
		Name:     "knowledge_dir",
		Required: true,
	}

	if info, err := os.Stat(dir); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot access %s: %v", dir, err)
		return result
	} else if !info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a directory", dir)
		return result
	}

	probe := filepath.Join(dir, probeFile)
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("knowledge dir is not writable: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckUserStore verifies the user directory answers a round trip.
func CheckUserStore(ctx context.Context, users Pinger) Result {
	result := Result{
		Name:     "user_store",
		Required: true,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := users.Ping(ctx); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckEmbedder reports whether the embedding provider answers. Not
// required: the server can start and serve "index not ready" while the
// operator fixes the provider.
func CheckEmbedder(ctx context.Context, embedder embed.Embedder) Result {
	result := Result{
		Name:     "embedder",
		Required: false,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info := embed.GetInfo(ctx, embedder)
	if !info.Available {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s is not answering, queries will fail until it does", info.Provider)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s, %d dims)", info.Provider, info.Model, info.Dimensions)
	return result
}
