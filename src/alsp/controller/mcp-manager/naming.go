package mcpmanager

import (
	"strconv"
	"sync"

	"github.com/uber/assist-lsp/src/alsp/internal/configstore"
)

// _maxToolNameLength bounds names exposed to upstream consumers.
const (
	_maxToolNameLength = 64
	_namespaceSep      = "___"
)

// ToolIdentity is the (server, tool) pair behind a namespaced name.
type ToolIdentity struct {
	ServerName string
	ToolName   string
}

// toolNamer assigns each (server, tool) pair a unique upstream-facing name.
// Assignments are sticky: a pair keeps its name across rediscoveries so
// upstream references stay valid.
type toolNamer struct {
	mu      sync.Mutex
	used    map[string]bool
	mapping map[string]ToolIdentity
}

func newToolNamer() *toolNamer {
	return &toolNamer{
		used:    make(map[string]bool),
		mapping: make(map[string]ToolIdentity),
	}
}

// Name returns the namespaced name for the pair, assigning one on first use.
// Prefers the bare tool name, then server___tool, then server-truncated
// forms, falling back to a numeric suffix. Output never exceeds 64 characters
// and is unique per distinct pair.
func (n *toolNamer) Name(serverName, toolName string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	for existing, identity := range n.mapping {
		if identity.ServerName == serverName && identity.ToolName == toolName {
			n.used[existing] = true
			return existing
		}
	}

	sanitized := configstore.SanitizeName(toolName)
	if len(sanitized) > _maxToolNameLength {
		sanitized = sanitized[:_maxToolNameLength]
	}

	if !n.used[sanitized] {
		return n.assign(sanitized, serverName, toolName)
	}

	fullName := serverName + _namespaceSep + sanitized
	if len(fullName) <= _maxToolNameLength && !n.used[fullName] {
		return n.assign(fullName, serverName, toolName)
	}

	if len(fullName) > _maxToolNameLength {
		maxServerLength := _maxToolNameLength - len(_namespaceSep) - len(sanitized)
		if maxServerLength > 0 {
			candidate := serverName[:maxServerLength] + _namespaceSep + sanitized
			if !n.used[candidate] {
				return n.assign(candidate, serverName, toolName)
			}
		}
	}

	for i := 1; ; i++ {
		suffix := strconv.Itoa(i)
		maxToolLength := _maxToolNameLength - len(suffix)
		candidate := sanitized
		if len(candidate) > maxToolLength {
			candidate = candidate[:maxToolLength]
		}
		candidate += suffix
		if !n.used[candidate] {
			return n.assign(candidate, serverName, toolName)
		}
	}
}

// Resolve maps a namespaced name back to its original pair.
func (n *toolNamer) Resolve(namespaced string) (ToolIdentity, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	identity, ok := n.mapping[namespaced]
	return identity, ok
}

// Release frees names no longer backed by a discovered tool while keeping
// their mapping, so a server that comes back reclaims its old names.
func (n *toolNamer) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.used = make(map[string]bool)
}

func (n *toolNamer) assign(name, serverName, toolName string) string {
	n.used[name] = true
	n.mapping[name] = ToolIdentity{ServerName: serverName, ToolName: toolName}
	return name
}
