package inlinecompletion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/assist-lsp/src/alsp/entity"
	"github.com/uber/assist-lsp/src/alsp/gateway/backend"
	"github.com/uber/assist-lsp/src/alsp/gateway/backend/backendmock"
	"github.com/uber/assist-lsp/src/alsp/gateway/telemetry"
	"github.com/uber/assist-lsp/src/alsp/internal/clock"
	"github.com/uber/assist-lsp/src/alsp/internal/tracker"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const _testURI = protocol.DocumentURI("file:///ws/main.go")

func newTestCompletionController(t *testing.T, svc backend.Service) *controller {
	logger := zap.NewNop().Sugar()
	scope := tally.NewTestScope("testing", make(map[string]string))
	clk := clock.New()

	provider, err := config.NewStaticProvider(map[string]interface{}{
		_nameKey: map[string]interface{}{
			"editDebounceMs": 1,
			"maxEditRetries": 3,
		},
	})
	require.NoError(t, err)

	ctrl := New(Params{
		Backend:     svc,
		Telemetry:   telemetry.New(telemetry.Params{Stats: scope, Logger: logger}),
		RecentEdits: tracker.NewRecentEditTracker(tracker.RecentEditParams{Clock: clk, Logger: logger, Stats: scope}),
		Cursors:     tracker.NewCursorTracker(tracker.CursorParams{Clock: clk}),
		Rejected:    tracker.NewRejectedEditTracker(tracker.RejectedEditParams{Clock: clk, Logger: logger}),
		Streak:      tracker.NewStreakTracker(),
		Coverage:    tracker.NewCoverageTracker(),
		Clock:       clk,
		Logger:      logger,
		Stats:       scope,
		Config:      provider,
	})
	return ctrl.(*controller)
}

func completionRequest(triggerType entity.TriggerType) Request {
	return Request{
		URI:             _testURI,
		Position:        protocol.Position{Line: 10, Character: 4},
		Language:        "go",
		Filename:        "main.go",
		LeftFileContent: "package main\n\nfunc main() {\n",
		TriggerType:     triggerType,
	}
}

func TestOnInlineCompletionReturnsSuggestions(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).Return(&backend.Response{
		Suggestions: []entity.Suggestion{{ItemID: "i1", Content: "fmt.Println()"}},
	}, nil)

	c := newTestCompletionController(t, svc)
	result := c.OnInlineCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))

	require.Len(t, result.Items, 1)
	assert.Equal(t, "fmt.Println()", result.Items[0].Content)
	assert.NotEmpty(t, result.SessionID)

	session := c.completions.FindSession(result.SessionID)
	require.NotNil(t, session)
	assert.Equal(t, entity.SessionStateActive, session.State)
}

func TestOnInlineCompletionRejectsWhileInFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req backend.Request) (*backend.Response, error) {
			close(entered)
			<-release
			return &backend.Response{}, nil
		})

	c := newTestCompletionController(t, svc)

	done := make(chan Result, 1)
	go func() {
		done <- c.OnInlineCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))
	}()
	<-entered

	// The concurrent arrival is turned away without touching the backend.
	second := c.OnInlineCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))
	assert.Empty(t, second.Items)
	assert.Empty(t, second.SessionID)

	close(release)
	first := <-done
	assert.NotEmpty(t, first.SessionID)
}

func TestOnInlineCompletionBackendError(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).Return(nil, errors.New("backend unavailable"))

	c := newTestCompletionController(t, svc)
	result := c.OnInlineCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))

	assert.Empty(t, result.Items)
	require.NotEmpty(t, result.SessionID)

	session := c.completions.FindSession(result.SessionID)
	require.NotNil(t, session)
	assert.Equal(t, entity.SessionStateError, session.State)
}

func TestLogCompletionResultsClosesSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).Return(&backend.Response{
		Suggestions: []entity.Suggestion{{ItemID: "i1", Content: "x := 1"}},
	}, nil)

	c := newTestCompletionController(t, svc)
	result := c.OnInlineCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))

	c.LogCompletionResults(result.SessionID, map[string]entity.UserDecision{
		"i1": entity.UserDecisionAccept,
	})

	session := c.completions.FindSession(result.SessionID)
	require.NotNil(t, session)
	assert.Equal(t, entity.SessionStateClosed, session.State)

	decision, ok := c.completions.AggregatedDecision(session)
	require.True(t, ok)
	assert.Equal(t, entity.TriggerDecisionAccept, decision)
}

func TestLogCompletionResultsRecordsCoverage(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).Return(&backend.Response{
		Suggestions: []entity.Suggestion{{ItemID: "i1", Content: "return nil"}},
	}, nil)

	c := newTestCompletionController(t, svc)
	c.HandleDocumentOpen(_testURI, "package main\n")
	result := c.OnInlineCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))

	// The editor inserts the accepted text, then reports the acceptance.
	c.HandleDocumentChange(_testURI, "package main\nreturn nil")
	c.LogCompletionResults(result.SessionID, map[string]entity.UserDecision{
		"i1": entity.UserDecisionAccept,
	})

	stats := c.coverage.Snapshot()
	assert.Equal(t, len("return nil"), stats.AcceptedChars)
	assert.Equal(t, 1, stats.AcceptedSuggestions)
	assert.Greater(t, stats.Percentage, 0.0)
}

func TestOnEditCompletionAutoTriggerRequiresRecentEdit(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)
	// No backend expectation: the request never leaves the trigger gate.

	c := newTestCompletionController(t, svc)
	result := c.OnEditCompletion(context.Background(), completionRequest(entity.TriggerTypeAuto))

	assert.Empty(t, result.Items)
	assert.Empty(t, result.SessionID)
}

func TestOnEditCompletionRetriesOnDocumentChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)

	c := newTestCompletionController(t, svc)
	c.HandleDocumentOpen(_testURI, "package main\n")

	first := svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req backend.Request) (*backend.Response, error) {
			// Invalidate the in-flight result.
			c.HandleDocumentChange(_testURI, "package main\nvar x int\n")
			return &backend.Response{Suggestions: []entity.Suggestion{{ItemID: "stale", Content: "old"}}}, nil
		})
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).After(first).Return(&backend.Response{
		Suggestions: []entity.Suggestion{{ItemID: "fresh", Content: "new"}},
	}, nil)

	result := c.OnEditCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))

	require.Len(t, result.Items, 1)
	assert.Equal(t, "fresh", result.Items[0].ItemID)
}

func TestOnEditCompletionGivesUpAfterMaxRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)

	c := newTestCompletionController(t, svc)
	c.HandleDocumentOpen(_testURI, "package main\n")

	calls := 0
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).Times(3).DoAndReturn(
		func(ctx context.Context, req backend.Request) (*backend.Response, error) {
			calls++
			c.bumpDocVersion(_testURI)
			return &backend.Response{}, nil
		})

	result := c.OnEditCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))

	assert.Empty(t, result.Items)
	assert.Empty(t, result.SessionID)
	assert.Equal(t, 3, calls)
}

func TestOnEditCompletionSuppressesRejectedLookalikes(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).Return(&backend.Response{
		Suggestions: []entity.Suggestion{
			{ItemID: "seen", Content: "return a + b"},
			{ItemID: "novel", Content: "return a * b"},
		},
	}, nil)

	c := newTestCompletionController(t, svc)
	c.rejected.RecordRejection(_testURI, protocol.Position{Line: 10}, "return a + b")

	result := c.OnEditCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))

	require.Len(t, result.Items, 1)
	assert.Equal(t, "novel", result.Items[0].ItemID)
}

func TestOnEditCompletionCancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)

	c := newTestCompletionController(t, svc)
	// A long debounce keeps cancellation the only way out of the wait.
	c.cfg.EditDebounceMs = 60000

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := c.OnEditCompletion(ctx, completionRequest(entity.TriggerTypeOnDemand))
	assert.Empty(t, result.Items)
	assert.Empty(t, result.SessionID)
}

func TestLogEditResultsRecordsRejections(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).Return(&backend.Response{
		Suggestions: []entity.Suggestion{{ItemID: "i1", Content: "return nil"}},
	}, nil)

	c := newTestCompletionController(t, svc)
	result := c.OnEditCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))
	require.NotEmpty(t, result.SessionID)

	c.LogEditResults(result.SessionID, map[string]entity.UserDecision{
		"i1": entity.UserDecisionReject,
	})

	assert.Equal(t, 1, c.rejected.Count())
	assert.True(t, c.rejected.IsSimilarToRejected("return nil", _testURI))
}

func TestMarkEmptySuggestions(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := backendmock.NewMockService(ctrl)
	svc.EXPECT().GenerateSuggestions(gomock.Any(), gomock.Any()).Return(&backend.Response{
		Suggestions: []entity.Suggestion{{ItemID: "blank", Content: "   "}},
	}, nil)

	c := newTestCompletionController(t, svc)
	result := c.OnInlineCompletion(context.Background(), completionRequest(entity.TriggerTypeOnDemand))

	session := c.completions.FindSession(result.SessionID)
	require.NotNil(t, session)
	c.completions.CloseSession(session)

	decision, ok := c.completions.AggregatedDecision(session)
	require.True(t, ok)
	assert.Equal(t, entity.TriggerDecisionEmpty, decision)
}
