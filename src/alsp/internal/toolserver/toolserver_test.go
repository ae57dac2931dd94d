package toolserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/assist-lsp/src/alsp/entity"
	alsperrors "github.com/uber/assist-lsp/src/alsp/internal/errors"
	"go.uber.org/zap"
)

type fakeSession struct {
	tools       []*mcp.Tool
	listErr     error
	callErr     error
	callResult  *mcp.CallToolResult
	lastTool    string
	lastArgs    map[string]any
	closed      int
	callBlocks  bool
	listBlocks  bool
}

func (s *fakeSession) ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	if s.listBlocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &mcp.ListToolsResult{Tools: s.tools}, nil
}

func (s *fakeSession) CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	if s.callBlocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.lastTool = params.Name
	if args, ok := params.Arguments.(map[string]any); ok {
		s.lastArgs = args
	}
	if s.callErr != nil {
		return nil, s.callErr
	}
	return s.callResult, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

func newTestConnection(session *fakeSession, dialErr error) *connection {
	return &connection{
		name:   "srv",
		logger: zap.NewNop().Sugar(),
		dial: func(ctx context.Context, cfg entity.ToolServerConfig) (rpcSession, error) {
			if dialErr != nil {
				return nil, dialErr
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return session, nil
		},
	}
}

func int64p(v int64) *int64 { return &v }

func TestStartDiscoversTools(t *testing.T) {
	session := &fakeSession{tools: []*mcp.Tool{
		{Name: "tool1", Description: "first"},
		{Name: ""},
		{Name: "tool2"},
	}}
	conn := newTestConnection(session, nil)

	tools, err := conn.Start(context.Background(), entity.ToolServerConfig{Command: "srv-bin"})
	require.NoError(t, err)

	// The unnamed tool is dropped.
	require.Len(t, tools, 2)
	assert.Equal(t, "tool1", tools[0].ToolName)
	assert.Equal(t, "srv", tools[0].ServerName)
	assert.Equal(t, "first", tools[0].Description)
	assert.Equal(t, "tool2", tools[1].ToolName)
}

func TestStartDialFailure(t *testing.T) {
	conn := newTestConnection(nil, errors.New("spawn failed"))

	_, err := conn.Start(context.Background(), entity.ToolServerConfig{Command: "missing-bin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spawn failed")
}

func TestStartInitTimeout(t *testing.T) {
	session := &fakeSession{listBlocks: true}
	conn := newTestConnection(session, nil)

	cfg := entity.ToolServerConfig{Command: "slow-bin", InitializationTimeoutMs: int64p(10)}
	_, err := conn.Start(context.Background(), cfg)
	require.Error(t, err)

	var timeoutErr *alsperrors.InitTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "MCP: server 'srv' initialization timed out after 10 ms", err.Error())
	assert.Equal(t, 1, session.closed)
}

func TestInvokeBeforeStart(t *testing.T) {
	conn := newTestConnection(&fakeSession{}, nil)

	_, err := conn.Invoke(context.Background(), "tool1", nil)
	require.Error(t, err)

	var notConnected *alsperrors.ServerNotConnectedError
	require.ErrorAs(t, err, &notConnected)
	assert.Equal(t, "MCP: server 'srv' not connected", err.Error())
}

func TestInvokePassesArguments(t *testing.T) {
	session := &fakeSession{callResult: &mcp.CallToolResult{}}
	conn := newTestConnection(session, nil)
	_, err := conn.Start(context.Background(), entity.ToolServerConfig{Command: "srv-bin"})
	require.NoError(t, err)

	args := map[string]any{"path": "/tmp"}
	result, err := conn.Invoke(context.Background(), "tool1", args)
	require.NoError(t, err)
	assert.Equal(t, session.callResult, result)
	assert.Equal(t, "tool1", session.lastTool)
	assert.Equal(t, args, session.lastArgs)
}

func TestInvokeExecTimeout(t *testing.T) {
	session := &fakeSession{}
	conn := newTestConnection(session, nil)

	cfg := entity.ToolServerConfig{Command: "srv-bin", TimeoutMs: int64p(10)}
	_, err := conn.Start(context.Background(), cfg)
	require.NoError(t, err)

	session.callBlocks = true
	_, err = conn.Invoke(context.Background(), "slow_tool", nil)
	require.Error(t, err)

	var timeoutErr *alsperrors.ToolExecTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "MCP: tool 'srv::slow_tool' execution timed out after 10 ms", err.Error())
}

func TestStopIdempotent(t *testing.T) {
	session := &fakeSession{}
	conn := newTestConnection(session, nil)

	// Stop before Start is a no-op.
	require.NoError(t, conn.Stop())

	_, err := conn.Start(context.Background(), entity.ToolServerConfig{Command: "srv-bin"})
	require.NoError(t, err)

	require.NoError(t, conn.Stop())
	require.NoError(t, conn.Stop())
	assert.Equal(t, 1, session.closed)

	_, err = conn.Invoke(context.Background(), "tool1", nil)
	require.Error(t, err)
}

func TestMergedEnvOverrides(t *testing.T) {
	t.Setenv("ALSP_TEST_KEEP", "inherited")
	t.Setenv("ALSP_TEST_OVERRIDE", "old")

	env := mergedEnv(map[string]string{
		"ALSP_TEST_OVERRIDE": "new",
		"ALSP_TEST_ADDED":    "value",
	})

	assert.Contains(t, env, "ALSP_TEST_KEEP=inherited")
	assert.Contains(t, env, "ALSP_TEST_OVERRIDE=new")
	assert.Contains(t, env, "ALSP_TEST_ADDED=value")
	assert.NotContains(t, env, "ALSP_TEST_OVERRIDE=old")
}

func TestTimeoutOrDefault(t *testing.T) {
	assert.Equal(t, _defaultTimeoutMs, timeoutOrDefault(nil))
	assert.Equal(t, int64(0), timeoutOrDefault(int64p(0)))
	assert.Equal(t, int64(5000), timeoutOrDefault(int64p(5000)))
}

func TestFactoryWiresServerName(t *testing.T) {
	f := NewFactory(Params{Logger: zap.NewNop().Sugar()})
	conn := f.NewConnection("my-server")
	require.NotNil(t, conn)
	assert.Equal(t, "my-server", conn.(*connection).name)
}

func TestStartInitTimeoutWaits(t *testing.T) {
	session := &fakeSession{listBlocks: true}
	conn := newTestConnection(session, nil)

	start := time.Now()
	cfg := entity.ToolServerConfig{Command: "slow-bin", InitializationTimeoutMs: int64p(20)}
	_, err := conn.Start(context.Background(), cfg)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
