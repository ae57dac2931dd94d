// Package mcpmanager orchestrates the lifecycle of every configured MCP tool
// server: discovery, permission resolution, tool invocation, admin mutations,
// and change notification for the UI layer.
package mcpmanager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/uber-go/tally"
	"github.com/uber/assist-lsp/src/alsp/entity"
	"github.com/uber/assist-lsp/src/alsp/gateway/telemetry"
	"github.com/uber/assist-lsp/src/alsp/internal/clock"
	"github.com/uber/assist-lsp/src/alsp/internal/configstore"
	alsperrors "github.com/uber/assist-lsp/src/alsp/internal/errors"
	"github.com/uber/assist-lsp/src/alsp/internal/toolserver"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

const (
	_nameKey = "mcp-manager"

	// Servers are initialized in batches of this size during discovery.
	_maxConcurrentInits = 5
)

// Config holds the settings for this controller.
type Config struct {
	// WatchConfigFiles enables reinitialization when a config file changes on disk.
	WatchConfigFiles bool `yaml:"watchConfigFiles"`
	// ReinitializeDebounceMs coalesces bursts of file events into one reload.
	ReinitializeDebounceMs int `yaml:"reinitializeDebounceMs"`
}

// StatusListener observes per-server runtime state transitions.
type StatusListener func(serverName string, state entity.ServerRuntimeState)

// ToolsListener observes changes to a server's enabled tool set.
type ToolsListener func(serverName string, tools []entity.ToolDefinition)

// NamespacedTool pairs an upstream-facing unique name with its definition.
type NamespacedTool struct {
	Name string
	Tool entity.ToolDefinition
}

// Controller manages the full set of configured tool servers.
type Controller interface {
	// Init performs one-time discovery. Concurrent and repeated callers all
	// observe the same fully-discovered state; discovery is never re-run here.
	Init(ctx context.Context, workspaceRoots []string) error

	// CallTool invokes a tool on a connected server. Unknown server, unknown
	// tool, and disconnected server all fail fast without touching the wire.
	CallTool(ctx context.Context, serverName, toolName string, args map[string]any) (any, error)

	// AddServer persists a new server to the given config file and starts it.
	// Failures are captured into the server's runtime state, not returned.
	AddServer(ctx context.Context, serverName string, cfg entity.ToolServerConfig, configPath string)

	// RemoveServer stops the server, deletes it from disk and memory.
	RemoveServer(ctx context.Context, serverName string) error

	// UpdateServer persists a config mutation, then tears down and restarts
	// the connection. Failures are captured into the server's runtime state.
	UpdateServer(ctx context.Context, serverName string, mutate func(*entity.ToolServerConfig))

	// UpdateServerPermission persists a permission change. Only a whole-server
	// enable/disable toggles the live connection; per-tool changes do not.
	UpdateServerPermission(ctx context.Context, serverName string, perm entity.PermissionEntry)

	// ReinitializeMcpServers tears down all connections and re-runs discovery.
	// Namespaced tool names assigned before the reload are preserved.
	ReinitializeMcpServers(ctx context.Context)

	GetAllTools() []entity.ToolDefinition
	GetEnabledTools() []entity.ToolDefinition
	GetNamespacedTools() []NamespacedTool
	ResolveNamespacedTool(name string) (ToolIdentity, bool)
	ListServersAndTools() map[string][]string
	GetAllServerConfigs() map[string]entity.ToolServerConfig
	GetServerState(serverName string) (entity.ServerRuntimeState, bool)
	GetAllServerStates() map[string]entity.ServerRuntimeState
	GetConfigLoadErrors() string
	IsServerGlobal(serverName string) bool
	RequiresApproval(serverName, toolName string) bool

	OnServerStatusChanged(fn StatusListener)
	OnToolsChanged(fn ToolsListener)

	// Close stops the watcher and every live connection.
	Close() error
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Store     configstore.Store
	Factory   toolserver.Factory
	Telemetry telemetry.Emitter
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Config    config.Provider
	Clock     clock.Clock
}

type controller struct {
	store     configstore.Store
	factory   toolserver.Factory
	telemetry telemetry.Emitter
	logger    *zap.SugaredLogger
	stats     tally.Scope
	clock     clock.Clock
	cfg       Config

	initOnce sync.Once
	initErr  error

	mu             sync.RWMutex
	workspaceRoots []string
	servers        map[string]entity.ToolServerConfig
	serverNames    map[string]string
	states         map[string]entity.ServerRuntimeState
	perms          map[string]entity.PermissionEntry
	tools          []entity.ToolDefinition
	conns          map[string]toolserver.Connection
	loadErrors     map[string]string

	namer   *toolNamer
	watcher *configWatcher

	listenerMu      sync.RWMutex
	statusListeners []StatusListener
	toolsListeners  []ToolsListener
}

// New creates a new controller for MCP server management.
func New(p Params) Controller {
	var cfg Config
	if err := p.Config.Get(entity.McpConfigKey).Populate(&cfg); err != nil {
		p.Logger.With("plugin", _nameKey).Warnf("unable to load mcp config, using defaults: %s", err)
	}
	if cfg.ReinitializeDebounceMs <= 0 {
		cfg.ReinitializeDebounceMs = 1000
	}

	return &controller{
		store:       p.Store,
		factory:     p.Factory,
		telemetry:   p.Telemetry,
		logger:      p.Logger.With("plugin", _nameKey),
		stats:       p.Stats.SubScope("mcp_manager"),
		clock:       p.Clock,
		cfg:         cfg,
		servers:     make(map[string]entity.ToolServerConfig),
		serverNames: make(map[string]string),
		states:      make(map[string]entity.ServerRuntimeState),
		perms:       make(map[string]entity.PermissionEntry),
		conns:       make(map[string]toolserver.Connection),
		loadErrors:  make(map[string]string),
		namer:       newToolNamer(),
	}
}

func (c *controller) Init(ctx context.Context, workspaceRoots []string) error {
	c.initOnce.Do(func() {
		c.mu.Lock()
		c.workspaceRoots = append([]string{}, workspaceRoots...)
		c.mu.Unlock()

		c.discoverAllServers(ctx)
		c.logger.Infof("discovered %d tools across all servers", len(c.GetAllTools()))

		if c.cfg.WatchConfigFiles {
			w, err := newConfigWatcher(c.logger, c.clock, c.watchedPaths(), c.cfg.ReinitializeDebounceMs, func() {
				c.ReinitializeMcpServers(context.Background())
			})
			if err != nil {
				c.logger.Warnf("config watching disabled: %s", err)
			} else {
				c.mu.Lock()
				c.watcher = w
				c.mu.Unlock()
			}
		}
	})
	return c.initErr
}

// discoverAllServers reloads permissions then configs and initializes every
// permitted server. One server's failure never aborts the others.
func (c *controller) discoverAllServers(ctx context.Context) {
	c.mu.RLock()
	roots := append([]string{}, c.workspaceRoots...)
	c.mu.RUnlock()

	perms := c.store.LoadPermissions(c.store.WorkspacePermissionPaths(roots))

	configPaths := c.store.WorkspaceConfigPaths(roots)
	if global, err := c.store.GlobalConfigPath(); err == nil {
		configPaths = append([]string{global}, configPaths...)
	}
	loaded := c.store.LoadServerConfigs(configPaths)

	c.mu.Lock()
	c.perms = perms
	c.servers = loaded.Servers
	c.serverNames = loaded.NameMapping
	c.loadErrors = loaded.Errors
	names := make([]string, 0, len(loaded.Servers))
	for name := range loaded.Servers {
		names = append(names, name)
	}
	c.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		c.setState(name, entity.ServerRuntimeState{Status: entity.ServerStatusUninitialized})
	}

	toInit := make([]string, 0, len(names))
	for _, name := range names {
		c.mu.RLock()
		cfg := c.servers[name]
		enabled := configstore.IsServerEnabled(perms, name)
		c.mu.RUnlock()
		if cfg.Disabled || !enabled {
			c.setState(name, entity.ServerRuntimeState{Status: entity.ServerStatusDisabled})
			c.emitToolsChanged(name)
			continue
		}
		toInit = append(toInit, name)
	}

	if len(toInit) == 0 {
		return
	}
	c.logger.Infof("initializing %d servers with max concurrency of %d", len(toInit), _maxConcurrentInits)

	sem := make(chan struct{}, _maxConcurrentInits)
	var wg sync.WaitGroup
	for _, name := range toInit {
		wg.Add(1)
		sem <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()
			c.mu.RLock()
			cfg := c.servers[name]
			c.mu.RUnlock()
			c.initOneServer(ctx, name, cfg)
		}(name)
	}
	wg.Wait()
	c.logger.Infof("completed initialization of %d servers", len(toInit))
}

// initOneServer connects one server and registers its tools. Errors are
// captured into the server's runtime state.
func (c *controller) initOneServer(ctx context.Context, name string, cfg entity.ToolServerConfig) {
	c.setState(name, entity.ServerRuntimeState{Status: entity.ServerStatusInitializing})
	c.logger.Debugf("initializing server [%s]", name)

	conn := c.factory.NewConnection(name)
	tools, err := conn.Start(ctx, cfg)
	if err != nil {
		_ = conn.Stop()
		c.removeServerTools(name)
		c.handleError(name, err)
		return
	}

	for _, t := range tools {
		c.logger.Infof("discovered tool %s::%s", name, t.ToolName)
	}

	c.mu.Lock()
	if old, ok := c.conns[name]; ok {
		_ = old.Stop()
	}
	c.conns[name] = conn
	kept := c.tools[:0]
	for _, t := range c.tools {
		if t.ServerName != name {
			kept = append(kept, t)
		}
	}
	c.tools = append(kept, tools...)
	c.mu.Unlock()

	c.setState(name, entity.ServerRuntimeState{Status: entity.ServerStatusEnabled, ToolCount: len(tools)})
	c.emitToolsChanged(name)
}

func (c *controller) CallTool(ctx context.Context, serverName, toolName string, args map[string]any) (any, error) {
	c.mu.RLock()
	_, configured := c.servers[serverName]
	conn := c.conns[serverName]
	c.mu.RUnlock()

	if conn == nil {
		return nil, &alsperrors.ServerNotConnectedError{Server: serverName}
	}
	if !configured {
		return nil, &alsperrors.ServerNotConfiguredError{Server: serverName}
	}

	available := make([]string, 0)
	for _, t := range c.GetEnabledTools() {
		if t.ServerName == serverName {
			available = append(available, t.ToolName)
		}
	}
	found := false
	for _, name := range available {
		if name == toolName {
			found = true
			break
		}
	}
	if !found {
		return nil, &alsperrors.ToolNotFoundError{Server: serverName, Tool: toolName, Available: available}
	}

	result, err := conn.Invoke(ctx, toolName, args)
	c.telemetry.EmitToolInvocation(serverName, toolName, err == nil)
	if err != nil {
		if alsperrors.IsTimeout(err) {
			c.logger.Errorf("%s", err)
		}
		return nil, err
	}
	return result, nil
}

func (c *controller) AddServer(ctx context.Context, serverName string, cfg entity.ToolServerConfig, configPath string) {
	sanitized := configstore.SanitizeName(serverName)

	c.mu.RLock()
	_, exists := c.servers[sanitized]
	state := c.states[sanitized]
	enabled := configstore.IsServerEnabled(c.perms, sanitized)
	c.mu.RUnlock()

	if exists && state.Status == entity.ServerStatusEnabled {
		c.handleError(sanitized, fmt.Errorf("MCP: server '%s' already exists", sanitized))
		return
	}

	err := c.store.MutateServerConfig(configPath, func(file *configstore.ServerConfigFile) error {
		file.McpServers[serverName] = cfg
		return nil
	})
	if err != nil {
		c.logger.Errorf("failed to add MCP server '%s': %s", serverName, err)
		c.handleError(sanitized, err)
		return
	}

	if !enabled {
		c.enableServerInPersona(serverName, sanitized)
	}

	cfg.Name = serverName
	cfg.ConfigPath = configPath
	if global, gerr := c.store.GlobalConfigPath(); gerr == nil {
		cfg.Global = configPath == global
	}

	c.mu.Lock()
	c.servers[sanitized] = cfg
	c.serverNames[sanitized] = serverName
	c.mu.Unlock()

	c.initOneServer(ctx, sanitized, cfg)
}

func (c *controller) RemoveServer(ctx context.Context, serverName string) error {
	c.mu.Lock()
	cfg, ok := c.servers[serverName]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("MCP: server '%s' not found", serverName)
	}
	originalName := c.serverNames[serverName]
	conn := c.conns[serverName]
	delete(c.conns, serverName)
	delete(c.servers, serverName)
	delete(c.serverNames, serverName)
	delete(c.states, serverName)
	permEntry, hasPerm := c.perms[serverName]
	delete(c.perms, serverName)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Stop()
	}
	c.removeServerTools(serverName)

	if originalName == "" {
		originalName = serverName
	}
	err := c.store.MutateServerConfig(cfg.ConfigPath, func(file *configstore.ServerConfigFile) error {
		delete(file.McpServers, originalName)
		return nil
	})
	if err != nil {
		c.logger.Warnf("failed to delete server '%s' from config file %s: %s", originalName, cfg.ConfigPath, err)
	}

	if hasPerm && permEntry.Path != "" {
		err := c.store.MutatePermissionFile(permEntry.Path, func(file *configstore.PermissionFile) error {
			configstore.SetServerEnabled(file, originalName, false)
			return nil
		})
		if err != nil {
			c.logger.Warnf("failed to remove server '%s' from persona file %s: %s", originalName, permEntry.Path, err)
		}
	}

	c.emitToolsChanged(serverName)
	return nil
}

func (c *controller) UpdateServer(ctx context.Context, serverName string, mutate func(*entity.ToolServerConfig)) {
	c.mu.RLock()
	oldCfg, ok := c.servers[serverName]
	originalName := c.serverNames[serverName]
	c.mu.RUnlock()

	if !ok {
		c.handleError(serverName, fmt.Errorf("MCP: server '%s' not found", serverName))
		return
	}
	if originalName == "" {
		originalName = serverName
	}

	newCfg := oldCfg
	err := c.store.MutateServerConfig(oldCfg.ConfigPath, func(file *configstore.ServerConfigFile) error {
		onDisk := file.McpServers[originalName]
		mutate(&onDisk)
		file.McpServers[originalName] = onDisk

		newCfg = onDisk
		newCfg.Name = originalName
		newCfg.ConfigPath = oldCfg.ConfigPath
		newCfg.Global = oldCfg.Global
		return nil
	})
	if err != nil {
		c.handleError(serverName, err)
		return
	}

	c.mu.Lock()
	if conn, ok := c.conns[serverName]; ok {
		_ = conn.Stop()
		delete(c.conns, serverName)
	}
	c.servers[serverName] = newCfg
	c.mu.Unlock()
	c.removeServerTools(serverName)

	c.initOneServer(ctx, serverName, newCfg)
}

func (c *controller) UpdateServerPermission(ctx context.Context, serverName string, perm entity.PermissionEntry) {
	c.mu.RLock()
	cfg, configured := c.servers[serverName]
	originalName := c.serverNames[serverName]
	wasEnabled := configstore.IsServerEnabled(c.perms, serverName)
	c.mu.RUnlock()

	if originalName == "" {
		originalName = serverName
	}

	path := perm.Path
	if path == "" {
		global, err := c.store.GlobalPermissionPath()
		if err != nil {
			c.handleError(serverName, err)
			return
		}
		path = global
	}

	err := c.store.MutatePermissionFile(path, func(file *configstore.PermissionFile) error {
		configstore.SetServerEnabled(file, originalName, perm.Enabled)
		for tool, setting := range perm.ToolPermissions {
			configstore.SetToolPermission(file, originalName, tool, setting)
		}
		return nil
	})
	if err != nil {
		c.handleError(serverName, err)
		return
	}

	c.mu.Lock()
	roots := append([]string{}, c.workspaceRoots...)
	c.mu.Unlock()
	perms := c.store.LoadPermissions(c.store.WorkspacePermissionPaths(roots))
	c.mu.Lock()
	c.perms = perms
	nowEnabled := configstore.IsServerEnabled(perms, serverName)
	conn := c.conns[serverName]
	c.mu.Unlock()

	c.logger.Infof("permissions updated for '%s'", serverName)

	switch {
	case wasEnabled && !nowEnabled:
		if conn != nil {
			_ = conn.Stop()
			c.mu.Lock()
			delete(c.conns, serverName)
			c.mu.Unlock()
		}
		c.removeServerTools(serverName)
		c.setState(serverName, entity.ServerRuntimeState{Status: entity.ServerStatusDisabled})
		c.emitToolsChanged(serverName)
	case !wasEnabled && nowEnabled && configured:
		c.initOneServer(ctx, serverName, cfg)
	default:
		// Tool-level change only; the live connection stays up.
		c.emitToolsChanged(serverName)
	}
}

func (c *controller) ReinitializeMcpServers(ctx context.Context) {
	c.logger.Info("reinitializing MCP servers")

	c.closeConnections()
	c.namer.Release()

	c.mu.Lock()
	c.tools = nil
	c.servers = make(map[string]entity.ToolServerConfig)
	c.serverNames = make(map[string]string)
	c.states = make(map[string]entity.ServerRuntimeState)
	c.mu.Unlock()

	c.discoverAllServers(ctx)

	c.mu.RLock()
	total := len(c.servers)
	c.mu.RUnlock()
	c.logger.Infof("MCP servers reinitialized. Total servers: %d", total)
}

func (c *controller) GetAllTools() []entity.ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]entity.ToolDefinition{}, c.tools...)
}

func (c *controller) GetEnabledTools() []entity.ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	enabled := make([]entity.ToolDefinition, 0, len(c.tools))
	for _, t := range c.tools {
		if c.isToolDisabledLocked(t.ServerName, t.ToolName) {
			continue
		}
		enabled = append(enabled, t)
	}
	return enabled
}

func (c *controller) GetNamespacedTools() []NamespacedTool {
	tools := c.GetEnabledTools()
	out := make([]NamespacedTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, NamespacedTool{Name: c.namer.Name(t.ServerName, t.ToolName), Tool: t})
	}
	return out
}

func (c *controller) ResolveNamespacedTool(name string) (ToolIdentity, bool) {
	return c.namer.Resolve(name)
}

func (c *controller) ListServersAndTools() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string][]string)
	for _, t := range c.tools {
		result[t.ServerName] = append(result[t.ServerName], t.ToolName)
	}
	return result
}

func (c *controller) GetAllServerConfigs() map[string]entity.ToolServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]entity.ToolServerConfig, len(c.servers))
	for name, cfg := range c.servers {
		out[name] = cfg
	}
	return out
}

func (c *controller) GetServerState(serverName string) (entity.ServerRuntimeState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.states[serverName]
	return state, ok
}

func (c *controller) GetAllServerStates() map[string]entity.ServerRuntimeState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]entity.ServerRuntimeState, len(c.states))
	for name, state := range c.states {
		out[name] = state
	}
	return out
}

// GetConfigLoadErrors returns any errors from the last config load, one block
// per file or entry, or the empty string when the load was clean.
func (c *controller) GetConfigLoadErrors() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.loadErrors) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c.loadErrors))
	for key := range c.loadErrors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	blocks := make([]string, 0, len(keys))
	for _, key := range keys {
		blocks = append(blocks, fmt.Sprintf("File: %s, Error: %s", key, c.loadErrors[key]))
	}
	return strings.Join(blocks, "\n\n")
}

func (c *controller) IsServerGlobal(serverName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.servers[serverName]
	return ok && cfg.Global
}

func (c *controller) RequiresApproval(serverName, toolName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if cfg, ok := c.servers[serverName]; ok {
		if override, ok := cfg.ToolOverrides[toolName]; ok && override.AutoApprove != nil && *override.AutoApprove {
			return false
		}
	}
	return configstore.ResolveToolPermission(c.perms, serverName, toolName) != entity.PermissionAlwaysAllow
}

func (c *controller) OnServerStatusChanged(fn StatusListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.statusListeners = append(c.statusListeners, fn)
}

func (c *controller) OnToolsChanged(fn ToolsListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.toolsListeners = append(c.toolsListeners, fn)
}

func (c *controller) Close() error {
	c.mu.Lock()
	watcher := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	var err error
	if watcher != nil {
		err = multierr.Append(err, watcher.Close())
	}
	err = multierr.Append(err, c.closeConnections())

	c.mu.Lock()
	c.tools = nil
	c.servers = make(map[string]entity.ToolServerConfig)
	c.states = make(map[string]entity.ServerRuntimeState)
	c.mu.Unlock()
	return err
}

func (c *controller) closeConnections() error {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]toolserver.Connection)
	c.mu.Unlock()

	var err error
	for name, conn := range conns {
		if stopErr := conn.Stop(); stopErr != nil {
			c.logger.Errorf("error closing client %s: %s", name, stopErr)
			err = multierr.Append(err, stopErr)
		} else {
			c.logger.Infof("closed client for %s", name)
		}
	}
	return err
}

// isToolDisabledLocked requires c.mu held.
func (c *controller) isToolDisabledLocked(serverName, toolName string) bool {
	if cfg, ok := c.servers[serverName]; ok {
		if override, ok := cfg.ToolOverrides[toolName]; ok && override.Disabled != nil && *override.Disabled {
			return true
		}
	}
	return configstore.ResolveToolPermission(c.perms, serverName, toolName) == entity.PermissionDeny
}

func (c *controller) removeServerTools(serverName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.tools[:0]
	for _, t := range c.tools {
		if t.ServerName != serverName {
			kept = append(kept, t)
		}
	}
	c.tools = kept
}

func (c *controller) enableServerInPersona(originalName, sanitized string) {
	global, err := c.store.GlobalPermissionPath()
	if err != nil {
		c.logger.Warnf("could not resolve persona path to enable '%s': %s", originalName, err)
		return
	}
	err = c.store.MutatePermissionFile(global, func(file *configstore.PermissionFile) error {
		configstore.SetServerEnabled(file, originalName, true)
		return nil
	})
	if err != nil {
		c.logger.Warnf("could not enable server '%s' in persona file: %s", originalName, err)
		return
	}

	c.mu.Lock()
	c.perms[sanitized] = entity.PermissionEntry{
		ServerName:      originalName,
		Enabled:         true,
		ToolPermissions: map[string]entity.PermissionSetting{},
		Path:            global,
	}
	c.mu.Unlock()
}

// setState records a transition and notifies observers and metrics.
func (c *controller) setState(serverName string, state entity.ServerRuntimeState) {
	c.mu.Lock()
	c.states[serverName] = state
	c.mu.Unlock()

	c.telemetry.EmitServerState(serverName, state.Status)

	c.listenerMu.RLock()
	listeners := append([]StatusListener{}, c.statusListeners...)
	c.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(serverName, state)
	}
}

func (c *controller) emitToolsChanged(serverName string) {
	enabled := make([]entity.ToolDefinition, 0)
	for _, t := range c.GetEnabledTools() {
		if t.ServerName == serverName {
			enabled = append(enabled, t)
		}
	}
	c.logger.Debugf("tools changed for server=%s toolCount=%d", serverName, len(enabled))

	c.listenerMu.RLock()
	listeners := append([]ToolsListener{}, c.toolsListeners...)
	c.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(serverName, enabled)
	}
}

// handleError logs the failure, marks the server Failed, and notifies
// observers. Never propagates so sibling workflow continues.
func (c *controller) handleError(serverName string, err error) {
	c.logger.Errorf("MCP ERROR [%s]: %s", serverName, err)
	c.removeServerTools(serverName)
	c.setState(serverName, entity.ServerRuntimeState{Status: entity.ServerStatusFailed, LastError: err.Error()})
	c.emitToolsChanged(serverName)
}

func (c *controller) watchedPaths() []string {
	c.mu.RLock()
	roots := append([]string{}, c.workspaceRoots...)
	c.mu.RUnlock()

	paths := c.store.WorkspaceConfigPaths(roots)
	paths = append(paths, c.store.WorkspacePermissionPaths(roots)...)
	if p, err := c.store.GlobalConfigPath(); err == nil {
		paths = append(paths, p)
	}
	if p, err := c.store.GlobalPermissionPath(); err == nil {
		paths = append(paths, p)
	}
	return paths
}
