// Package entity contains the domain types for the assist-lsp extension.
package entity

// McpConfigKey is the key that contains MCP manager configuration.
const McpConfigKey = "mcp"

// ServerStatus is the runtime lifecycle state of one configured tool server.
type ServerStatus string

const (
	// ServerStatusUninitialized indicates the server is known but discovery has not begun.
	ServerStatusUninitialized ServerStatus = "UNINITIALIZED"
	// ServerStatusInitializing indicates a connection attempt is in progress.
	ServerStatusInitializing ServerStatus = "INITIALIZING"
	// ServerStatusEnabled indicates the server is connected and serving tools.
	ServerStatusEnabled ServerStatus = "ENABLED"
	// ServerStatusDisabled indicates permissions exclude the server from use.
	ServerStatusDisabled ServerStatus = "DISABLED"
	// ServerStatusFailed indicates the last connection attempt failed.
	ServerStatusFailed ServerStatus = "FAILED"
)

// PermissionSetting is the approval policy for a single tool.
type PermissionSetting string

const (
	// PermissionDeny blocks the tool entirely.
	PermissionDeny PermissionSetting = "deny"
	// PermissionAsk requires interactive approval per invocation.
	PermissionAsk PermissionSetting = "ask"
	// PermissionAlwaysAllow approves the tool without prompting.
	PermissionAlwaysAllow PermissionSetting = "alwaysAllow"
)

// PermissionWildcard is the reserved persona key that applies to any server or
// tool without an explicit entry. A literal server named "*" is rejected at load.
const PermissionWildcard = "*"

// ToolServerConfig describes one external MCP tool server. Identity is the
// server name, unique within the merged namespace. Timeouts are in
// milliseconds; nil selects the default and an explicit 0 disables the timeout.
type ToolServerConfig struct {
	Name                    string                  `json:"-"`
	Command                 string                  `json:"command"`
	Args                    []string                `json:"args,omitempty"`
	Env                     map[string]string       `json:"env,omitempty"`
	TimeoutMs               *int64                  `json:"timeout,omitempty"`
	InitializationTimeoutMs *int64                  `json:"initializationTimeout,omitempty"`
	Disabled                bool                    `json:"disabled,omitempty"`
	ToolOverrides           map[string]ToolOverride `json:"toolOverrides,omitempty"`

	// ConfigPath is the file the entry was loaded from or will persist to.
	ConfigPath string `json:"-"`
	// Global marks entries sourced from the global config scope.
	Global bool `json:"-"`
}

// ToolOverride adjusts a single tool's behavior within its server config.
type ToolOverride struct {
	AutoApprove *bool `json:"autoApprove,omitempty"`
	Disabled    *bool `json:"disabled,omitempty"`
}

// PermissionEntry is the merged persona decision for one server.
type PermissionEntry struct {
	ServerName      string
	Enabled         bool
	ToolPermissions map[string]PermissionSetting
	Path            string
}

// ToolDefinition is one discovered tool on a connected server. Derived state,
// rebuilt on every discovery. The composite key (ServerName, ToolName) is unique.
type ToolDefinition struct {
	ServerName  string
	ToolName    string
	Description string
	InputSchema any
}

// ServerRuntimeState is the broadcastable per-server runtime snapshot.
type ServerRuntimeState struct {
	Status    ServerStatus
	ToolCount int
	LastError string
}
