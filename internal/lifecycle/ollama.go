// Package lifecycle starts and provisions a local Ollama daemon so that
// on-prem deployments can run 'crossdock init' on a fresh machine and end
// up with a working embedding provider. It is non-interactive: callers
// decide what to print and when to give up.
package lifecycle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/uqsoft/crossdock/internal/embed"
)

const (
	// StartupTimeout bounds the wait for a freshly spawned daemon.
	StartupTimeout = 30 * time.Second

	readyPollInterval    = 100 * time.Millisecond
	maxReadyPollInterval = 2 * time.Second
)

// ErrNotInstalled reports that no ollama binary could be found.
var ErrNotInstalled = errors.New("ollama is not installed")

// Manager supervises one Ollama host and one embedding model.
type Manager struct {
	host   string
	model  string
	client *http.Client

	// Seams for tests.
	execCommand func(name string, args ...string) *exec.Cmd
	lookPath    func(file string) (string, error)
	fileExists  func(path string) bool
}

// New returns a manager for the given host and model. Empty values fall
// back to the OLLAMA_HOST variable and the embedder defaults, matching
// how the embedding factory resolves them.
func New(host, model string) *Manager {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = embed.DefaultOllamaHost
	}
	if model == "" {
		model = embed.DefaultOllamaModel
	}

	return &Manager{
		host:  host,
		model: model,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		execCommand: exec.Command,
		lookPath:    exec.LookPath,
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Host returns the resolved Ollama endpoint.
func (m *Manager) Host() string { return m.host }

// Model returns the model the manager provisions.
func (m *Manager) Model() string { return m.model }

// Installed locates the ollama binary. Desktop installs symlink the CLI
// into /usr/local/bin, so checking PATH plus the usual prefixes covers
// both server and workstation setups.
func (m *Manager) Installed() (string, bool) {
	if path, err := m.lookPath("ollama"); err == nil {
		return path, true
	}

	candidates := []string{
		"/usr/local/bin/ollama",
		"/usr/bin/ollama",
		filepath.Join(os.Getenv("HOME"), ".local", "bin", "ollama"),
	}
	for _, p := range candidates {
		if m.fileExists(p) {
			return p, true
		}
	}
	return "", false
}

// Running reports whether the Ollama API answers.
func (m *Manager) Running(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// EnsureRunning makes the daemon answer, spawning 'ollama serve' if needed.
// A remote host that does not answer is an error: we cannot start a process
// on another machine.
func (m *Manager) EnsureRunning(ctx context.Context) error {
	if m.Running(ctx) {
		return nil
	}

	if m.remote() {
		return fmt.Errorf("ollama at %s is not answering and cannot be started from here", m.host)
	}

	path, ok := m.Installed()
	if !ok {
		return ErrNotInstalled
	}

	if err := m.startServe(path); err != nil {
		return err
	}
	return m.waitForReady(ctx, StartupTimeout)
}

// startServe spawns the daemon detached. The child outlives this process,
// which is the point: the next crossdock invocation finds it running.
func (m *Manager) startServe(path string) error {
	cmd := m.execCommand(path, "serve")
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ollama serve: %w", err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

// waitForReady polls the API with exponential backoff until it answers.
func (m *Manager) waitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := readyPollInterval
	for {
		if m.Running(ctx) {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for ollama to start: %w", ctx.Err())
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxReadyPollInterval {
			interval = maxReadyPollInterval
		}
	}
}

// Models lists the tags the daemon has available.
func (m *Manager) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, mdl := range result.Models {
		names[i] = mdl.Name
	}
	return names, nil
}

// HasModel reports whether the target model is already pulled. The tag
// suffix is optional: "bge-m3" matches "bge-m3:latest".
func (m *Manager) HasModel(ctx context.Context) (bool, error) {
	models, err := m.Models(ctx)
	if err != nil {
		return false, err
	}

	want := strings.ToLower(m.model)
	wantBase := strings.SplitN(want, ":", 2)[0]
	for _, name := range models {
		have := strings.ToLower(name)
		if have == want || strings.SplitN(have, ":", 2)[0] == wantBase {
			return true, nil
		}
	}
	return false, nil
}

// PullEvent is one progress update from a streaming model pull.
type PullEvent struct {
	Status    string
	Completed int64
	Total     int64
	Percent   float64
}

// EnsureModel pulls the target model if the daemon does not have it.
// Progress is streamed to the callback; pass nil to pull silently. The
// context bounds the whole download, so give it minutes, not seconds.
func (m *Manager) EnsureModel(ctx context.Context, progress func(PullEvent)) error {
	has, err := m.HasModel(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	body, err := json.Marshal(struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}{Name: m.model, Stream: true})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// No client timeout: pulls stream for minutes and the context already
	// bounds them.
	pullClient := &http.Client{}
	resp, err := pullClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start pull: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull of %s failed with status %d: %s", m.model, resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev struct {
			Status    string `json:"status"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Error != "" {
			return fmt.Errorf("pull of %s failed: %s", m.model, ev.Error)
		}

		if progress != nil {
			pct := 0.0
			if ev.Total > 0 {
				pct = float64(ev.Completed) / float64(ev.Total) * 100
			}
			progress(PullEvent{
				Status:    ev.Status,
				Completed: ev.Completed,
				Total:     ev.Total,
				Percent:   pct,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return nil
}

// remote reports whether the host points at another machine.
func (m *Manager) remote() bool {
	return !strings.Contains(m.host, "localhost") && !strings.Contains(m.host, "127.0.0.1")
}

// InstallInstructions returns platform-specific install guidance for the
// operator, shown when EnsureRunning fails with ErrNotInstalled.
func InstallInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return `Ollama is required for local embeddings.

Install options:
  1. Download from: https://ollama.com/download
  2. Or via Homebrew: brew install ollama

Then run 'crossdock init' again, or set GEMINI_API_KEY to use a hosted provider.`
	case "linux":
		return `Ollama is required for local embeddings.

Install:
  curl -fsSL https://ollama.com/install.sh | sh

Then run 'crossdock init' again, or set GEMINI_API_KEY to use a hosted provider.`
	default:
		return `Ollama is required for local embeddings.

Download from: https://ollama.com/download

Then run 'crossdock init' again, or set GEMINI_API_KEY to use a hosted provider.`
	}
}
