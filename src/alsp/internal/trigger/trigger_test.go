package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uber-go/tally"
	"github.com/uber/assist-lsp/src/alsp/internal/clock/clocktest"
	"github.com/uber/assist-lsp/src/alsp/internal/tracker"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

const _triggerURI = protocol.DocumentURI("file:///ws/main.go")

func newEditedTracker(t *testing.T) *tracker.RecentEditTracker {
	tr := tracker.NewRecentEditTracker(tracker.RecentEditParams{
		Clock:  clocktest.NewFake(time.Unix(1700000000, 0)),
		Logger: zap.NewNop().Sugar(),
		Stats:  tally.NewTestScope("testing", make(map[string]string)),
	})
	tr.HandleDocumentOpen(_triggerURI, "line0\nline1\nline2\n")
	tr.HandleDocumentChange(_triggerURI, "line0\nEDITED\nline2\n")
	return tr
}

func TestShouldTriggerRequiresBothSignals(t *testing.T) {
	cfg := DefaultConfig()
	edited := newEditedTracker(t)

	// Recent edit near the line plus upcoming content fires.
	assert.True(t, ShouldTrigger(cfg, Params{
		URI:              _triggerURI,
		Line:             1,
		RightFileContent: "rest\nmore code\n",
		RecentEdits:      edited,
	}))

	// Upcoming content alone is not enough.
	assert.False(t, ShouldTrigger(cfg, Params{
		URI:              _triggerURI,
		Line:             1,
		RightFileContent: "rest\nmore code\n",
	}))

	// A recent edit with nothing ahead is not enough either.
	assert.False(t, ShouldTrigger(cfg, Params{
		URI:              _triggerURI,
		Line:             1,
		RightFileContent: "rest\n\n\n",
		RecentEdits:      edited,
	}))
}

func TestShouldTriggerIgnoresCurrentLineRemainder(t *testing.T) {
	cfg := DefaultConfig()
	edited := newEditedTracker(t)

	// The first right-context line belongs to the current line; content there
	// does not count as an upcoming line.
	assert.False(t, ShouldTrigger(cfg, Params{
		URI:              _triggerURI,
		Line:             1,
		RightFileContent: "trailing-content",
		RecentEdits:      edited,
	}))
}

func TestShouldTriggerRespectsLineRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdjacentLineRange = 0
	edited := newEditedTracker(t)

	assert.True(t, ShouldTrigger(cfg, Params{
		URI:              _triggerURI,
		Line:             1,
		RightFileContent: "rest\nmore\n",
		RecentEdits:      edited,
	}))
	assert.False(t, ShouldTrigger(cfg, Params{
		URI:              _triggerURI,
		Line:             0,
		RightFileContent: "rest\nmore\n",
		RecentEdits:      edited,
	}))
}
