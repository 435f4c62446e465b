// Package preflight validates the environment before the MCP server
// starts taking requests: the knowledge tree must be writable for
// ingestion, the user directory must answer, and the embedding provider
// should be reachable. Required failures abort startup; the rest are
// logged and tolerated.
package preflight
