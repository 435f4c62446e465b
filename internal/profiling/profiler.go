// Package profiling backs the root command's --profile-* flags with the
// runtime profilers. Rebuilds are embedding-heavy and allocation-heavy,
// so CPU and heap profiles are the first thing to reach for when a
// knowledge tree indexes slower than expected.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Session holds the profilers started for one command invocation. Stop
// must run before the process exits or the profile files are truncated.
type Session struct {
	cpuFile   *os.File
	traceFile *os.File
}

// Start begins CPU profiling and execution tracing for the paths that
// are non-empty. A partial failure stops whatever already started, so a
// bad trace path never leaves CPU profiling running unattended.
func Start(cpuPath, tracePath string) (*Session, error) {
	s := &Session{}

	if cpuPath != "" {
		f, err := os.Create(cpuPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to start CPU profile: %w", err)
		}
		s.cpuFile = f
	}

	if tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.Stop()
			return nil, fmt.Errorf("failed to start trace: %w", err)
		}
		s.traceFile = f
	}

	return s, nil
}

// Stop flushes and closes every profiler the session started. Safe to
// call more than once.
func (s *Session) Stop() {
	if s == nil {
		return
	}
	if s.traceFile != nil {
		trace.Stop()
		_ = s.traceFile.Close()
		s.traceFile = nil
	}
	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		_ = s.cpuFile.Close()
		s.cpuFile = nil
	}
}

// WriteHeap writes a point-in-time heap profile. Runs a GC first so the
// snapshot shows live objects rather than collectible garbage.
func WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}

	return nil
}
