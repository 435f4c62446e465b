package logging

import (
	"log/slog"
)

// SetupMCPMode initializes logging for MCP server mode.
// The stdio transport uses stdout exclusively for JSON-RPC; any stray write
// to stdout or stderr corrupts the protocol stream. In this mode logs go
// to file only.
func SetupMCPMode(level string) (func(), error) {
	if level == "" {
		level = "debug"
	}

	cfg := Config{
		Level:         level,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)

	slog.Info("MCP mode logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
