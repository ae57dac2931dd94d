package configstore

import (
	"regexp"
	"strings"

	"github.com/uber/assist-lsp/src/alsp/entity"
)

// MatchesPattern reports whether name matches a glob-style pattern where '*'
// matches any sequence (including empty), '?' matches exactly one character,
// and every other character is literal.
func MatchesPattern(name, pattern string) bool {
	if pattern == name {
		return true
	}
	var b strings.Builder
	b.WriteString("^")
	for _, c := range pattern {
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

// IsServerEnabled reports whether the merged permission table enables the
// server, either explicitly or through the wildcard entry.
func IsServerEnabled(perms map[string]entity.PermissionEntry, server string) bool {
	if entry, ok := perms[server]; ok {
		return entry.Enabled
	}
	if entry, ok := perms[entity.PermissionWildcard]; ok {
		return entry.Enabled
	}
	return false
}

// ResolveToolPermission resolves the approval policy for one tool. The
// explicit server entry wins over the wildcard entry; within an entry the
// strongest matching rule wins (alwaysAllow beats ask beats deny), and a tool
// with no matching rule defaults to ask.
func ResolveToolPermission(perms map[string]entity.PermissionEntry, server, tool string) entity.PermissionSetting {
	entry, ok := perms[server]
	if !ok {
		entry, ok = perms[entity.PermissionWildcard]
	}
	if !ok || !entry.Enabled {
		return entity.PermissionDeny
	}

	best := entity.PermissionSetting("")
	for pattern, setting := range entry.ToolPermissions {
		if pattern != entity.PermissionWildcard && !MatchesPattern(tool, pattern) {
			continue
		}
		if strength(setting) > strength(best) {
			best = setting
		}
	}
	if best == "" {
		return entity.PermissionAsk
	}
	return best
}

// SetToolPermission updates a persona file's rules for one tool. Wildcard
// rules that would match the tool are removed first so the explicit setting
// is the only rule that applies.
func SetToolPermission(file *PermissionFile, server, tool string, setting entity.PermissionSetting) {
	if file.ToolPerms == nil {
		file.ToolPerms = map[string]map[string]entity.PermissionSetting{}
	}
	serverPerms, ok := file.ToolPerms[server]
	if !ok {
		serverPerms = map[string]entity.PermissionSetting{}
		file.ToolPerms[server] = serverPerms
	}
	for pattern := range serverPerms {
		if pattern == tool {
			continue
		}
		if pattern == entity.PermissionWildcard || MatchesPattern(tool, pattern) {
			delete(serverPerms, pattern)
		}
	}
	serverPerms[tool] = setting
}

// SetServerEnabled toggles a server in a persona file's enabled list.
func SetServerEnabled(file *PermissionFile, server string, enabled bool) {
	idx := -1
	for i, name := range file.McpServers {
		if name == server {
			idx = i
			break
		}
	}
	if enabled && idx < 0 {
		file.McpServers = append(file.McpServers, server)
	}
	if !enabled {
		if idx >= 0 {
			file.McpServers = append(file.McpServers[:idx], file.McpServers[idx+1:]...)
		}
		delete(file.ToolPerms, server)
	}
}

func strength(s entity.PermissionSetting) int {
	switch s {
	case entity.PermissionAlwaysAllow:
		return 3
	case entity.PermissionAsk:
		return 2
	case entity.PermissionDeny:
		return 1
	default:
		return 0
	}
}
