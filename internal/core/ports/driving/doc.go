// Package driving declares the operations the CLI, the HTTP API and the
// MCP server call on annotext. internal/core/services implements them.
package driving
