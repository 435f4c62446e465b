// Package logging provides file-based logging with rotation for crossdock.
// Logs are written as JSON lines to ~/.crossdock/logs/ so the serve process
// can run on a stdio transport without touching stdout.
package logging
