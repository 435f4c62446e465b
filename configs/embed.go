// Package configs provides embedded configuration templates for crossdock.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they are available in every distribution (go install, binary releases).
//
// The templates are used by:
//   - cmd/crossdock/cmd/init.go - creates .crossdock.yaml in the project root
//   - cmd/crossdock/cmd/config.go - creates the user config at
//     ~/.config/crossdock/config.yaml
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. User config (~/.config/crossdock/config.yaml)
//  3. Project config (.crossdock.yaml)
//  4. Environment variables (CROSSDOCK_*)
//
// To modify templates, edit the .yaml files in this directory and rebuild.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created by: `crossdock config init` at ~/.config/crossdock/config.yaml
// Contains: machine-specific settings such as the embedding provider,
// Ollama host, and the user directory database path.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created by: `crossdock init` at .crossdock.yaml next to the knowledge tree
// Contains: deployment-specific settings such as the knowledge directory,
// the department roster, and retrieval tuning.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
