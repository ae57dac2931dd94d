// Package configstore loads, merges, and mutates the on-disk MCP server
// configuration and persona permission files.
package configstore

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/uber/assist-lsp/src/alsp/entity"
	"github.com/uber/assist-lsp/src/alsp/internal/fs"
	"go.lsp.dev/uri"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

const (
	_configDirName     = ".assist-lsp"
	_serverConfigName  = "mcp.json"
	_personaSubPath    = "personas/default.json"
	_namespaceDelim    = "___"
	_defaultPersonaRaw = `{
  "mcpServers": [
    "*"
  ],
  "toolPerms": {}
}`
)

var _nameAllowed = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ServerConfigFile is the serialized shape of one mcp.json file.
type ServerConfigFile struct {
	McpServers map[string]entity.ToolServerConfig `json:"mcpServers"`
}

// PermissionFile is the serialized shape of one persona file. Parsed with
// yaml.v3 so both YAML and plain JSON documents are accepted.
type PermissionFile struct {
	McpServers []string                                       `yaml:"mcpServers" json:"mcpServers"`
	ToolPerms  map[string]map[string]entity.PermissionSetting `yaml:"toolPerms" json:"toolPerms"`
}

// LoadResult carries the merged server configs plus bookkeeping from a load.
type LoadResult struct {
	Servers map[string]entity.ToolServerConfig
	// NameMapping maps sanitized server names back to their original spelling.
	NameMapping map[string]string
	// Errors holds per-path and per-entry load failures, keyed by path or name.
	Errors map[string]string
}

// Params defines the dependencies of this package.
type Params struct {
	fx.In

	FS     fs.AlspFS
	Logger *zap.SugaredLogger
}

// Store provides serialized access to server config and persona files.
type Store interface {
	LoadServerConfigs(paths []string) LoadResult
	LoadPermissions(paths []string) map[string]entity.PermissionEntry
	MutateServerConfig(path string, fn func(*ServerConfigFile) error) error
	MutatePermissionFile(path string, fn func(*PermissionFile) error) error
	GlobalConfigPath() (string, error)
	GlobalPermissionPath() (string, error)
	WorkspaceConfigPaths(workspaceRoots []string) []string
	WorkspacePermissionPaths(workspaceRoots []string) []string
}

type store struct {
	fsys   fs.AlspFS
	logger *zap.SugaredLogger

	// One mutex per file class serializes read-modify-write cycles.
	serverMu sync.Mutex
	permMu   sync.Mutex
}

// New creates a Store.
func New(p Params) Store {
	return &store{
		fsys:   p.FS,
		logger: p.Logger.With("plugin", "configstore"),
	}
}

// GlobalConfigPath returns the location of the global mcp.json.
func (s *store) GlobalConfigPath() (string, error) {
	home, err := s.fsys.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, _configDirName, _serverConfigName), nil
}

// GlobalPermissionPath returns the location of the global persona file.
func (s *store) GlobalPermissionPath() (string, error) {
	home, err := s.fsys.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, _configDirName, _personaSubPath), nil
}

// WorkspaceConfigPaths returns each workspace's mcp.json location.
func (s *store) WorkspaceConfigPaths(workspaceRoots []string) []string {
	paths := make([]string, 0, len(workspaceRoots))
	for _, root := range workspaceRoots {
		paths = append(paths, filepath.Join(NormalizePath(root), _configDirName, _serverConfigName))
	}
	return paths
}

// WorkspacePermissionPaths returns each workspace's persona file location.
func (s *store) WorkspacePermissionPaths(workspaceRoots []string) []string {
	paths := make([]string, 0, len(workspaceRoots))
	for _, root := range workspaceRoots {
		paths = append(paths, filepath.Join(NormalizePath(root), _configDirName, _personaSubPath))
	}
	return paths
}

// LoadServerConfigs reads every given config file and merges server entries.
// Missing or unparseable files and entries without a command are skipped with
// a warning. On a name conflict a workspace entry replaces a global one,
// otherwise the first-loaded entry wins.
func (s *store) LoadServerConfigs(paths []string) LoadResult {
	result := LoadResult{
		Servers:     make(map[string]entity.ToolServerConfig),
		NameMapping: make(map[string]string),
		Errors:      make(map[string]string),
	}

	globalPath, err := s.GlobalConfigPath()
	if err != nil {
		s.logger.Warnf("could not resolve global config path: %s", err)
	}

	for _, fsPath := range dedupePaths(paths) {
		exists, err := s.fsys.FileExists(fsPath)
		if err != nil {
			s.logger.Warnf("could not stat MCP config at %s: %s", fsPath, err)
			continue
		}
		if !exists {
			s.logger.Warnf("MCP config not found at %s, skipping", fsPath)
			continue
		}

		raw, err := s.fsys.ReadFile(fsPath)
		if err != nil {
			msg := fmt.Sprintf("failed to read MCP config at %s: %s", fsPath, err)
			s.logger.Warn(msg)
			result.Errors[fsPath] = msg
			continue
		}

		var file struct {
			McpServers map[string]json.RawMessage `json:"mcpServers"`
		}
		if err := json.Unmarshal(raw, &file); err != nil {
			msg := fmt.Sprintf("invalid JSON in MCP config at %s: %s", fsPath, err)
			s.logger.Warn(msg)
			result.Errors[fsPath] = msg
			continue
		}
		if file.McpServers == nil {
			msg := fmt.Sprintf("MCP config at %s missing or invalid 'mcpServers' field", fsPath)
			s.logger.Warn(msg)
			result.Errors[fsPath] = msg
			continue
		}

		for name, rawEntry := range file.McpServers {
			if name == entity.PermissionWildcard {
				msg := fmt.Sprintf("MCP server name '*' in %s is reserved, skipping", fsPath)
				s.logger.Warn(msg)
				result.Errors[name] = msg
				continue
			}
			var cfg entity.ToolServerConfig
			if err := json.Unmarshal(rawEntry, &cfg); err != nil {
				msg := fmt.Sprintf("invalid MCP server entry '%s' in %s: %s", name, fsPath, err)
				s.logger.Warn(msg)
				result.Errors[name] = msg
				continue
			}
			if cfg.Command == "" {
				msg := fmt.Sprintf("MCP server '%s' in %s missing required 'command', skipping", name, fsPath)
				s.logger.Warn(msg)
				result.Errors[name] = msg
				continue
			}
			cfg.Name = name
			cfg.ConfigPath = fsPath
			cfg.Global = fsPath == globalPath

			sanitized := SanitizeName(name)
			if existing, ok := result.Servers[sanitized]; ok {
				if existing.Global && !cfg.Global {
					s.logger.Warnf("workspace override for MCP server '%s' in %s; replacing global configuration", name, fsPath)
				} else {
					scope := "workspace"
					if existing.Global {
						scope = "global"
					}
					s.logger.Warnf("ignoring %s MCP server duplicate for '%s' in %s", scope, name, fsPath)
					continue
				}
			}

			result.Servers[sanitized] = cfg
			result.NameMapping[sanitized] = name
			s.logger.Infof("loaded MCP server '%s' (as '%s') from %s", name, sanitized, fsPath)
		}
	}

	return result
}

// LoadPermissions merges persona files in order. The global file (created
// with an allow-all wildcard if no persona file exists anywhere) loads first,
// then workspace files; later files override earlier entries for the same
// server, and a workspace file without a wildcard drops servers that were
// enabled only by the global scope.
func (s *store) LoadPermissions(paths []string) map[string]entity.PermissionEntry {
	result := make(map[string]entity.PermissionEntry)

	globalPath, err := s.GlobalPermissionPath()
	if err != nil {
		s.logger.Warnf("could not resolve global persona path: %s", err)
		globalPath = ""
	}

	ordered := make([]string, 0, len(paths)+1)
	if globalPath != "" {
		ordered = append(ordered, globalPath)
	}
	for _, p := range dedupePaths(paths) {
		if p != globalPath {
			ordered = append(ordered, p)
		}
	}

	if globalPath != "" && !s.anyExists(ordered) {
		s.writeDefaultPersona(globalPath)
	}

	for _, fsPath := range ordered {
		exists, err := s.fsys.FileExists(fsPath)
		if err != nil || !exists {
			continue
		}
		raw, err := s.fsys.ReadFile(fsPath)
		if err != nil {
			s.logger.Warnf("failed to read persona file at %s: %s", fsPath, err)
			continue
		}
		var file PermissionFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			s.logger.Warnf("invalid persona config in %s: %s", fsPath, err)
			continue
		}

		enabled := make(map[string]bool, len(file.McpServers))
		for _, name := range file.McpServers {
			enabled[name] = true
		}
		hasWildcard := enabled[entity.PermissionWildcard]

		isWorkspace := fsPath != globalPath
		if isWorkspace && !hasWildcard {
			// Workspace scope fully shadows the global wildcard.
			for key, e := range result {
				if e.Path == globalPath && !enabled[e.ServerName] {
					delete(result, key)
				}
			}
		}

		for name := range enabled {
			key := name
			if name != entity.PermissionWildcard {
				key = SanitizeName(name)
			}
			result[key] = entity.PermissionEntry{
				ServerName:      name,
				Enabled:         true,
				ToolPermissions: map[string]entity.PermissionSetting{},
				Path:            fsPath,
			}
		}

		for server, perms := range file.ToolPerms {
			if !hasWildcard && !enabled[server] {
				continue
			}
			key := server
			if server != entity.PermissionWildcard {
				key = SanitizeName(server)
			}
			entry, ok := result[key]
			if !ok {
				entry = entity.PermissionEntry{
					ServerName:      server,
					Enabled:         true,
					ToolPermissions: map[string]entity.PermissionSetting{},
					Path:            fsPath,
				}
			}
			entry.ToolPermissions = perms
			entry.Path = fsPath
			result[key] = entry
		}
	}

	return result
}

// MutateServerConfig applies fn to a freshly-read copy of the config file and
// writes the result back, holding the server-config mutex for the full cycle.
func (s *store) MutateServerConfig(path string, fn func(*ServerConfigFile) error) error {
	s.serverMu.Lock()
	defer s.serverMu.Unlock()

	path = NormalizePath(path)
	file := ServerConfigFile{McpServers: map[string]entity.ToolServerConfig{}}
	if exists, err := s.fsys.FileExists(path); err == nil && exists {
		raw, err := s.fsys.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading config at %s: %w", path, err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("parsing config at %s: %w", path, err)
			}
			if file.McpServers == nil {
				file.McpServers = map[string]entity.ToolServerConfig{}
			}
		}
	}

	if err := fn(&file); err != nil {
		return err
	}

	out, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing config for %s: %w", path, err)
	}
	if err := s.fsys.MkdirAll(s.fsys.Dir(path)); err != nil {
		return fmt.Errorf("creating config dir for %s: %w", path, err)
	}
	if err := s.fsys.WriteFile(path, string(out)); err != nil {
		return fmt.Errorf("writing config at %s: %w", path, err)
	}
	return nil
}

// MutatePermissionFile is the persona-file analogue of MutateServerConfig,
// serialized on its own mutex.
func (s *store) MutatePermissionFile(path string, fn func(*PermissionFile) error) error {
	s.permMu.Lock()
	defer s.permMu.Unlock()

	path = NormalizePath(path)
	file := PermissionFile{ToolPerms: map[string]map[string]entity.PermissionSetting{}}
	if exists, err := s.fsys.FileExists(path); err == nil && exists {
		raw, err := s.fsys.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading persona at %s: %w", path, err)
		}
		if len(raw) > 0 {
			if err := yaml.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("parsing persona at %s: %w", path, err)
			}
			if file.ToolPerms == nil {
				file.ToolPerms = map[string]map[string]entity.PermissionSetting{}
			}
		}
	}

	if err := fn(&file); err != nil {
		return err
	}

	out, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing persona for %s: %w", path, err)
	}
	if err := s.fsys.MkdirAll(s.fsys.Dir(path)); err != nil {
		return fmt.Errorf("creating persona dir for %s: %w", path, err)
	}
	if err := s.fsys.WriteFile(path, string(out)); err != nil {
		return fmt.Errorf("writing persona at %s: %w", path, err)
	}
	return nil
}

func (s *store) anyExists(paths []string) bool {
	for _, p := range paths {
		if exists, err := s.fsys.FileExists(p); err == nil && exists {
			return true
		}
	}
	return false
}

func (s *store) writeDefaultPersona(globalPath string) {
	if err := s.fsys.MkdirAll(s.fsys.Dir(globalPath)); err != nil {
		s.logger.Errorf("failed to create persona dir: %s", err)
		return
	}
	if err := s.fsys.WriteFile(globalPath, _defaultPersonaRaw); err != nil {
		s.logger.Errorf("failed to create default persona file: %s", err)
		return
	}
	s.logger.Infof("created default persona file at %s", globalPath)
}

// SanitizeName filters a server name down to ASCII alphanumerics, underscores,
// and hyphens, stripping the namespace delimiter. An empty result falls back
// to a short hash of the original so distinct inputs stay distinguishable.
func SanitizeName(orig string) string {
	if _nameAllowed.MatchString(orig) && !strings.Contains(orig, _namespaceDelim) {
		return orig
	}

	var b strings.Builder
	for _, c := range orig {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			b.WriteRune(c)
		}
	}
	sanitized := strings.Replace(b.String(), _namespaceDelim, "", 1)

	if sanitized == "" {
		sum := md5.Sum([]byte(orig))
		return hex.EncodeToString(sum[:])[:3]
	}
	return sanitized
}

// NormalizePath converts a file URI to a filesystem path, leaving plain paths
// untouched.
func NormalizePath(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "file:") {
		parsed, err := uri.Parse(raw)
		if err == nil {
			return parsed.Filename()
		}
	}
	return filepath.Clean(raw)
}

func dedupePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		n := NormalizePath(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
