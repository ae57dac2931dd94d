package tracker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/assist-lsp/src/alsp/internal/clock/clocktest"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

const _editURI = protocol.DocumentURI("file:///ws/calc.go")

func newRecentEditTracker(fake *clocktest.Fake) *RecentEditTracker {
	return NewRecentEditTracker(RecentEditParams{
		Clock:  fake,
		Logger: zap.NewNop().Sugar(),
		Stats:  tally.NewTestScope("testing", make(map[string]string)),
	})
}

func TestHandleDocumentChangeDebounces(t *testing.T) {
	fake := clocktest.NewFake(time.Unix(1700000000, 0))
	tr := newRecentEditTracker(fake)

	tr.HandleDocumentOpen(_editURI, "v0")
	tr.HandleDocumentChange(_editURI, "v1")
	tr.HandleDocumentChange(_editURI, "v2")
	assert.Equal(t, 1, tr.SnapshotCount(_editURI))

	fake.Advance(3 * time.Second)
	tr.HandleDocumentChange(_editURI, "v3")
	require.Equal(t, 2, tr.SnapshotCount(_editURI))

	// Each snapshot captures the pre-edit content.
	snapshots := tr.Snapshots(_editURI)
	assert.Equal(t, "v0", snapshots[0].Content)
	assert.Equal(t, "v2", snapshots[1].Content)
}

func TestNonFileURIsIgnored(t *testing.T) {
	fake := clocktest.NewFake(time.Unix(1700000000, 0))
	tr := newRecentEditTracker(fake)
	untitled := protocol.DocumentURI("untitled:Untitled-1")

	tr.HandleDocumentOpen(untitled, "v0")
	tr.HandleDocumentChange(untitled, "v1")
	assert.Zero(t, tr.SnapshotCount(untitled))
}

func TestSnapshotsExpire(t *testing.T) {
	fake := clocktest.NewFake(time.Unix(1700000000, 0))
	tr := newRecentEditTracker(fake)

	tr.HandleDocumentOpen(_editURI, "v0")
	tr.HandleDocumentChange(_editURI, "v1")
	require.Equal(t, 1, tr.SnapshotCount(_editURI))

	fake.Advance(tr.config.MaxAge)
	assert.Zero(t, tr.SnapshotCount(_editURI))
}

func TestMemoryBudgetEvictsOldestFirst(t *testing.T) {
	fake := clocktest.NewFake(time.Unix(1700000000, 0))
	tr := newRecentEditTracker(fake)
	tr.config.MaxStorageBytes = 150
	other := protocol.DocumentURI("file:///ws/other.go")

	big := strings.Repeat("a", 100)
	tr.HandleDocumentOpen(_editURI, big)
	tr.HandleDocumentChange(_editURI, big+"b")

	fake.Advance(3 * time.Second)
	tr.HandleDocumentOpen(other, big)
	tr.HandleDocumentChange(other, big+"c")

	// The second snapshot pushed the total past the budget.
	assert.Zero(t, tr.SnapshotCount(_editURI))
	assert.Equal(t, 1, tr.SnapshotCount(other))
}

func TestHasRecentEditInLine(t *testing.T) {
	fake := clocktest.NewFake(time.Unix(1700000000, 0))
	tr := newRecentEditTracker(fake)

	before := "line0\nline1\nline2\nline3\nline4"
	after := "line0\nline1\nCHANGED\nline3\nline4"
	tr.HandleDocumentOpen(_editURI, before)
	tr.HandleDocumentChange(_editURI, after)

	assert.True(t, tr.HasRecentEditInLine(_editURI, 2, 20*time.Second, 0))
	assert.True(t, tr.HasRecentEditInLine(_editURI, 4, 20*time.Second, 2))
	assert.False(t, tr.HasRecentEditInLine(_editURI, 4, 20*time.Second, 0))

	// Outside the time window the edit no longer counts.
	fake.Advance(21 * time.Second)
	assert.False(t, tr.HasRecentEditInLine(_editURI, 2, 20*time.Second, 0))
}

func TestGenerateEditContextsNewestFirst(t *testing.T) {
	fake := clocktest.NewFake(time.Unix(1700000000, 0))
	tr := newRecentEditTracker(fake)

	tr.HandleDocumentOpen(_editURI, "one\nalpha\nthree\n")
	tr.HandleDocumentChange(_editURI, "one\nbeta\nthree\n")
	fake.Advance(3 * time.Second)
	tr.HandleDocumentChange(_editURI, "one\ngamma\nthree\n")

	contexts := tr.GenerateEditContexts(_editURI)
	require.Len(t, contexts, 2)
	assert.Contains(t, contexts[0].Content, "-beta")
	assert.Contains(t, contexts[1].Content, "-alpha")
}

func TestGenerateEditContextsCapped(t *testing.T) {
	fake := clocktest.NewFake(time.Unix(1700000000, 0))
	tr := newRecentEditTracker(fake)
	tr.config.MaxSupplementalContext = 1

	tr.HandleDocumentOpen(_editURI, "one\nalpha\n")
	tr.HandleDocumentChange(_editURI, "one\nbeta\n")
	fake.Advance(3 * time.Second)
	tr.HandleDocumentChange(_editURI, "one\ngamma\n")

	contexts := tr.GenerateEditContexts(_editURI)
	require.Len(t, contexts, 1)
	assert.Contains(t, contexts[0].Content, "-beta")
}

func TestReset(t *testing.T) {
	fake := clocktest.NewFake(time.Unix(1700000000, 0))
	tr := newRecentEditTracker(fake)

	tr.HandleDocumentOpen(_editURI, "v0")
	tr.HandleDocumentChange(_editURI, "v1")
	tr.Reset()

	assert.Zero(t, tr.SnapshotCount(_editURI))
	assert.Empty(t, tr.GenerateEditContexts(_editURI))
}
