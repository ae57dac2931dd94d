package configstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uber/assist-lsp/src/alsp/entity"
)

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{name: "tool1", pattern: "tool1", want: true},
		{name: "tool1", pattern: "to*l1", want: true},
		{name: "tool1", pattern: "tool??", want: false},
		{name: "tool12", pattern: "tool??", want: true},
		{name: "anything", pattern: "*", want: true},
		{name: "", pattern: "*", want: true},
		{name: "a.b", pattern: "a.b", want: true},
		{name: "axb", pattern: "a.b", want: false},
		{name: "a+b", pattern: "a+b", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesPattern(tt.name, tt.pattern))
		})
	}
}

func TestResolveToolPermissionPrecedence(t *testing.T) {
	perms := map[string]entity.PermissionEntry{
		"srv": {
			ServerName: "srv",
			Enabled:    true,
			ToolPermissions: map[string]entity.PermissionSetting{
				"*":     entity.PermissionDeny,
				"tool1": entity.PermissionAlwaysAllow,
				"tool?": entity.PermissionAsk,
			},
		},
	}

	// The strongest matching rule wins: alwaysAllow > ask > deny.
	assert.Equal(t, entity.PermissionAlwaysAllow, ResolveToolPermission(perms, "srv", "tool1"))
	assert.Equal(t, entity.PermissionAsk, ResolveToolPermission(perms, "srv", "tool2"))
	assert.Equal(t, entity.PermissionDeny, ResolveToolPermission(perms, "srv", "other"))
}

func TestResolveToolPermissionWildcardServer(t *testing.T) {
	perms := map[string]entity.PermissionEntry{
		entity.PermissionWildcard: {
			ServerName:      entity.PermissionWildcard,
			Enabled:         true,
			ToolPermissions: map[string]entity.PermissionSetting{},
		},
	}

	// No matching rule defaults to ask; no entry at all denies.
	assert.Equal(t, entity.PermissionAsk, ResolveToolPermission(perms, "any", "tool"))
	assert.Equal(t, entity.PermissionDeny, ResolveToolPermission(map[string]entity.PermissionEntry{}, "any", "tool"))
}

func TestResolveToolPermissionDisabledServer(t *testing.T) {
	perms := map[string]entity.PermissionEntry{
		"srv": {ServerName: "srv", Enabled: false},
	}
	assert.Equal(t, entity.PermissionDeny, ResolveToolPermission(perms, "srv", "tool"))
}

func TestSetToolPermissionRemovesMatchingWildcards(t *testing.T) {
	file := &PermissionFile{
		ToolPerms: map[string]map[string]entity.PermissionSetting{
			"srv": {
				"*":     entity.PermissionDeny,
				"to*":   entity.PermissionDeny,
				"other": entity.PermissionAsk,
			},
		},
	}

	SetToolPermission(file, "srv", "tool1", entity.PermissionAlwaysAllow)

	assert.Equal(t, map[string]entity.PermissionSetting{
		"other": entity.PermissionAsk,
		"tool1": entity.PermissionAlwaysAllow,
	}, file.ToolPerms["srv"])
}

func TestSetServerEnabled(t *testing.T) {
	file := &PermissionFile{
		McpServers: []string{"a", "b"},
		ToolPerms: map[string]map[string]entity.PermissionSetting{
			"b": {"t": entity.PermissionDeny},
		},
	}

	SetServerEnabled(file, "a", true)
	assert.Equal(t, []string{"a", "b"}, file.McpServers)

	SetServerEnabled(file, "b", false)
	assert.Equal(t, []string{"a"}, file.McpServers)
	assert.NotContains(t, file.ToolPerms, "b")

	SetServerEnabled(file, "c", true)
	assert.Equal(t, []string{"a", "c"}, file.McpServers)
}
