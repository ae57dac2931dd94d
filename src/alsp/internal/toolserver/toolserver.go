// Package toolserver owns one external MCP tool server's transport lifecycle:
// spawn, handshake with timeout, tool discovery, invocation, and teardown.
package toolserver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/uber/assist-lsp/src/alsp/entity"
	"github.com/uber/assist-lsp/src/alsp/internal/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(NewFactory)

const _defaultTimeoutMs int64 = 60000

// Connection manages a single tool server process.
type Connection interface {
	// Start spawns the server and returns its discovered tools.
	Start(ctx context.Context, cfg entity.ToolServerConfig) ([]entity.ToolDefinition, error)

	// Invoke calls one tool with the configured execution timeout.
	Invoke(ctx context.Context, tool string, args map[string]any) (any, error)

	// Stop tears the connection down. Safe to call repeatedly or before Start.
	Stop() error
}

// Factory creates Connections, one per configured server.
type Factory interface {
	NewConnection(serverName string) Connection
}

// Params defines the dependencies of this package.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
}

// rpcSession is the slice of the MCP client session the connection uses.
type rpcSession interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

type dialFunc func(ctx context.Context, cfg entity.ToolServerConfig) (rpcSession, error)

type factory struct {
	logger *zap.SugaredLogger
	dial   dialFunc
}

// NewFactory creates a Factory backed by the MCP stdio command transport.
func NewFactory(p Params) Factory {
	return &factory{
		logger: p.Logger.With("plugin", "toolserver"),
		dial:   dialCommand,
	}
}

func (f *factory) NewConnection(serverName string) Connection {
	return &connection{
		name:   serverName,
		logger: f.logger.With("server", serverName),
		dial:   f.dial,
	}
}

type connection struct {
	name   string
	logger *zap.SugaredLogger
	dial   dialFunc

	mu      sync.Mutex
	session rpcSession
	cfg     entity.ToolServerConfig
}

func (c *connection) Start(ctx context.Context, cfg entity.ToolServerConfig) ([]entity.ToolDefinition, error) {
	initTimeout := timeoutOrDefault(cfg.InitializationTimeoutMs)

	connectCtx := ctx
	if initTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, time.Duration(initTimeout)*time.Millisecond)
		defer cancel()
	}

	session, err := c.dial(connectCtx, cfg)
	if err != nil {
		if connectCtx.Err() == context.DeadlineExceeded {
			return nil, &errors.InitTimeoutError{Server: c.name, TimeoutMs: initTimeout}
		}
		return nil, fmt.Errorf("connecting to server %q: %w", c.name, err)
	}

	listed, err := session.ListTools(connectCtx, &mcp.ListToolsParams{})
	if err != nil {
		_ = session.Close()
		if connectCtx.Err() == context.DeadlineExceeded {
			return nil, &errors.InitTimeoutError{Server: c.name, TimeoutMs: initTimeout}
		}
		return nil, fmt.Errorf("listing tools on server %q: %w", c.name, err)
	}

	tools := make([]entity.ToolDefinition, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		if t.Name == "" {
			c.logger.Warnf("server %q returned a tool with no name, skipping", c.name)
			continue
		}
		tools = append(tools, entity.ToolDefinition{
			ServerName:  c.name,
			ToolName:    t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	c.mu.Lock()
	c.session = session
	c.cfg = cfg
	c.mu.Unlock()

	return tools, nil
}

func (c *connection) Invoke(ctx context.Context, tool string, args map[string]any) (any, error) {
	c.mu.Lock()
	session := c.session
	execTimeout := timeoutOrDefault(c.cfg.TimeoutMs)
	c.mu.Unlock()

	if session == nil {
		return nil, &errors.ServerNotConnectedError{Server: c.name}
	}

	callCtx := ctx
	if execTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(execTimeout)*time.Millisecond)
		defer cancel()
	}

	result, err := session.CallTool(callCtx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, &errors.ToolExecTimeoutError{Server: c.name, Tool: tool, TimeoutMs: execTimeout}
		}
		return nil, fmt.Errorf("calling tool %q on server %q: %w", tool, c.name, err)
	}
	return result, nil
}

func (c *connection) Stop() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}

// dialCommand spawns the configured command and completes the MCP handshake.
// Config env entries override inherited process env entries on conflict.
func dialCommand(ctx context.Context, cfg entity.ToolServerConfig) (rpcSession, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = mergedEnv(cfg.Env)

	client := mcp.NewClient(&mcp.Implementation{Name: "assist-lsp", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func mergedEnv(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}
	keys := make(map[string]int, len(env))
	for i, kv := range env {
		for j := 0; j < len(kv); j++ {
			if kv[j] == '=' {
				keys[kv[:j]] = i
				break
			}
		}
	}
	for k, v := range overrides {
		if i, ok := keys[k]; ok {
			env[i] = k + "=" + v
		} else {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// timeoutOrDefault maps a nil timeout to the default and keeps an explicit 0
// as "no timeout".
func timeoutOrDefault(ms *int64) int64 {
	if ms == nil {
		return _defaultTimeoutMs
	}
	return *ms
}
