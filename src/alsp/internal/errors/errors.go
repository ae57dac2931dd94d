// Package errors defines the error values shared across assist-lsp packages.
package errors

import (
	stderr "errors"
	"fmt"
)

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

// ServerNotConfiguredError reports that a tool call referenced a server
// absent from every loaded config file.
type ServerNotConfiguredError struct {
	Server string
}

func (e *ServerNotConfiguredError) Error() string {
	return fmt.Sprintf("MCP: server '%s' is not configured", e.Server)
}

// ServerNotConnectedError reports that a server is configured but has no
// live client connection (failed, disabled, or still initializing).
type ServerNotConnectedError struct {
	Server string
}

func (e *ServerNotConnectedError) Error() string {
	return fmt.Sprintf("MCP: server '%s' not connected", e.Server)
}

// ToolNotFoundError reports that a server is connected but does not expose
// the requested tool. Available lists the tools it does expose.
type ToolNotFoundError struct {
	Server    string
	Tool      string
	Available []string
}

func (e *ToolNotFoundError) Error() string {
	available := ""
	for i, name := range e.Available {
		if i > 0 {
			available += ", "
		}
		available += name
	}
	return fmt.Sprintf("MCP: tool '%s' not found on '%s'. Available: %s", e.Tool, e.Server, available)
}

// InitTimeoutError reports that a server did not complete its handshake
// within the configured initialization timeout.
type InitTimeoutError struct {
	Server    string
	TimeoutMs int64
}

func (e *InitTimeoutError) Error() string {
	return fmt.Sprintf("MCP: server '%s' initialization timed out after %d ms", e.Server, e.TimeoutMs)
}

// ToolExecTimeoutError reports that a tool call did not return within the
// configured execution timeout. Distinct from transport failures so callers
// can surface it without tearing the connection down.
type ToolExecTimeoutError struct {
	Server    string
	Tool      string
	TimeoutMs int64
}

func (e *ToolExecTimeoutError) Error() string {
	return fmt.Sprintf("MCP: tool '%s::%s' execution timed out after %d ms", e.Server, e.Tool, e.TimeoutMs)
}

// IsTimeout reports whether the error is one of the MCP timeout kinds.
func IsTimeout(err error) bool {
	var initErr *InitTimeoutError
	var execErr *ToolExecTimeoutError
	return stderr.As(err, &initErr) || stderr.As(err, &execErr)
}
