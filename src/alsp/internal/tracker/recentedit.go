// Package tracker provides the bounded, time-decaying caches that observe
// document edits and cursor movement for completion trigger heuristics.
package tracker

import (
	"strings"
	"sync"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/assist-lsp/src/alsp/internal/clock"
	"github.com/uber/assist-lsp/src/alsp/internal/diff"
	"go.lsp.dev/protocol"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Options(
	fx.Provide(NewRecentEditTracker),
	fx.Provide(NewCursorTracker),
	fx.Provide(NewRejectedEditTracker),
	fx.Provide(NewStreakTracker),
	fx.Provide(NewCoverageTracker),
)

// RecentEditConfig bounds the snapshot store.
type RecentEditConfig struct {
	DebounceInterval       time.Duration
	MaxAge                 time.Duration
	MaxStorageBytes        int
	MaxSupplementalContext int
}

// DefaultRecentEditConfig mirrors the tracker's production limits.
func DefaultRecentEditConfig() RecentEditConfig {
	return RecentEditConfig{
		DebounceInterval:       2 * time.Second,
		MaxAge:                 30 * time.Second,
		MaxStorageBytes:        10 * 1000 * 1024,
		MaxSupplementalContext: 15,
	}
}

// DocumentSnapshot is a capture of a document's content before an edit.
type DocumentSnapshot struct {
	URI     protocol.DocumentURI
	Content string
	Size    int
	TakenAt time.Time
}

// RecentEditParams defines the dependencies of the RecentEditTracker.
type RecentEditParams struct {
	fx.In

	Clock  clock.Clock
	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

// RecentEditTracker stores debounced pre-edit snapshots per document and
// answers whether lines near a position changed recently.
type RecentEditTracker struct {
	clock  clock.Clock
	logger *zap.SugaredLogger
	config RecentEditConfig

	bytesGauge    tally.Gauge
	snapshotGauge tally.Gauge

	mu           sync.Mutex
	snapshots    map[protocol.DocumentURI][]*DocumentSnapshot
	shadowCopies map[protocol.DocumentURI]string
	storageBytes int
}

// NewRecentEditTracker creates a RecentEditTracker with default limits.
func NewRecentEditTracker(p RecentEditParams) *RecentEditTracker {
	scope := p.Stats.SubScope("recent_edit_tracker")
	return &RecentEditTracker{
		clock:         p.Clock,
		logger:        p.Logger.With("plugin", "recent-edit-tracker"),
		config:        DefaultRecentEditConfig(),
		bytesGauge:    scope.Gauge("tracked_bytes"),
		snapshotGauge: scope.Gauge("snapshots"),
		snapshots:     make(map[protocol.DocumentURI][]*DocumentSnapshot),
		shadowCopies:  make(map[protocol.DocumentURI]string),
	}
}

// HandleDocumentOpen seeds the shadow copy for a newly opened document.
func (t *RecentEditTracker) HandleDocumentOpen(uri protocol.DocumentURI, content string) {
	if !isFileURI(uri) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shadowCopies[uri] = content
}

// HandleDocumentClose drops the shadow copy for a closed document.
func (t *RecentEditTracker) HandleDocumentClose(uri protocol.DocumentURI) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.shadowCopies, uri)
}

// HandleDocumentChange snapshots the pre-edit content when the debounce
// window allows, then refreshes the shadow copy.
func (t *RecentEditTracker) HandleDocumentChange(uri protocol.DocumentURI, newContent string) {
	if !isFileURI(uri) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if previous, ok := t.shadowCopies[uri]; ok {
		t.processEditLocked(uri, previous)
	}
	t.shadowCopies[uri] = newContent
}

// ProcessEdit stores a snapshot of the content as of just before the edit,
// unless a snapshot for the same document was taken within the debounce window.
func (t *RecentEditTracker) ProcessEdit(uri protocol.DocumentURI, previousContent string) {
	if !isFileURI(uri) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processEditLocked(uri, previousContent)
}

func (t *RecentEditTracker) processEditLocked(uri protocol.DocumentURI, previousContent string) {
	existing := t.snapshots[uri]
	now := t.clock.Now()

	if len(existing) > 0 && now.Sub(existing[len(existing)-1].TakenAt) <= t.config.DebounceInterval {
		return
	}

	snapshot := &DocumentSnapshot{
		URI:     uri,
		Content: previousContent,
		Size:    len(previousContent),
		TakenAt: now,
	}
	t.snapshots[uri] = append(existing, snapshot)
	t.storageBytes += snapshot.Size
	t.logger.Debugw("snapshot taken", "uri", uri, "bytes", t.storageBytes)

	t.enforceMemoryLimitsLocked()
	t.scheduleExpiry(snapshot)
	t.reportLocked()
}

// scheduleExpiry removes the snapshot once it exceeds the max age.
func (t *RecentEditTracker) scheduleExpiry(snapshot *DocumentSnapshot) {
	t.clock.AfterFunc(t.config.MaxAge, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		list := t.snapshots[snapshot.URI]
		for i, s := range list {
			if s == snapshot {
				t.snapshots[snapshot.URI] = append(list[:i], list[i+1:]...)
				t.storageBytes -= snapshot.Size
				break
			}
		}
		if len(t.snapshots[snapshot.URI]) == 0 {
			delete(t.snapshots, snapshot.URI)
		}
		t.reportLocked()
	})
}

// enforceMemoryLimitsLocked evicts oldest-first across files until the total
// tracked size fits the budget.
func (t *RecentEditTracker) enforceMemoryLimitsLocked() {
	for t.storageBytes > t.config.MaxStorageBytes {
		oldestURI, ok := t.oldestFileLocked()
		if !ok {
			return
		}
		list := t.snapshots[oldestURI]
		if len(list) == 0 {
			delete(t.snapshots, oldestURI)
			continue
		}
		removed := list[0]
		t.snapshots[oldestURI] = list[1:]
		t.storageBytes -= removed.Size
		if len(t.snapshots[oldestURI]) == 0 {
			delete(t.snapshots, oldestURI)
		}
		t.logger.Debugw("snapshot evicted", "uri", oldestURI, "bytes", t.storageBytes)
	}
}

func (t *RecentEditTracker) oldestFileLocked() (protocol.DocumentURI, bool) {
	var oldestURI protocol.DocumentURI
	var oldestTime time.Time
	found := false
	for uri, list := range t.snapshots {
		if len(list) == 0 {
			continue
		}
		if !found || list[0].TakenAt.Before(oldestTime) {
			oldestTime = list[0].TakenAt
			oldestURI = uri
			found = true
		}
	}
	return oldestURI, found
}

// HasRecentEditInLine reports whether any line within lineRange of line
// differs between the oldest snapshot inside the time window and the current
// shadow copy.
func (t *RecentEditTracker) HasRecentEditInLine(uri protocol.DocumentURI, line int, timeWindow time.Duration, lineRange int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.snapshots[uri]
	if len(list) == 0 {
		return false
	}

	cutoff := t.clock.Now().Add(-timeWindow)
	var oldestRecent *DocumentSnapshot
	for _, s := range list {
		if s.TakenAt.Before(cutoff) {
			continue
		}
		if oldestRecent == nil || s.TakenAt.Before(oldestRecent.TakenAt) {
			oldestRecent = s
		}
	}
	if oldestRecent == nil {
		return false
	}

	current, ok := t.shadowCopies[uri]
	if !ok {
		return false
	}

	currentLines := splitAnyEOL(current)
	snapshotLines := splitAnyEOL(oldestRecent.Content)

	start := line - lineRange
	if start < 0 {
		start = 0
	}
	longest := len(currentLines)
	if len(snapshotLines) > longest {
		longest = len(snapshotLines)
	}
	end := line + lineRange + 1
	if end > longest {
		end = longest
	}

	for i := start; i < end; i++ {
		inSnapshot := i < len(snapshotLines)
		inCurrent := i < len(currentLines)
		if inSnapshot != inCurrent {
			return true
		}
		if inSnapshot && inCurrent && snapshotLines[i] != currentLines[i] {
			return true
		}
	}
	return false
}

// GenerateEditContexts produces unified-diff supplemental contexts between
// each snapshot of the document and its current shadow copy, newest-first.
func (t *RecentEditTracker) GenerateEditContexts(uri protocol.DocumentURI) []diff.ContextItem {
	t.mu.Lock()
	list := t.snapshots[uri]
	current, hasShadow := t.shadowCopies[uri]
	snapshots := make([]diff.SnapshotContent, 0, len(list))
	for _, s := range list {
		snapshots = append(snapshots, diff.SnapshotContent{
			FilePath: string(s.URI),
			Content:  s.Content,
			Time:     s.TakenAt,
		})
	}
	t.mu.Unlock()

	if !hasShadow || len(snapshots) == 0 {
		return nil
	}
	return diff.GenerateDiffContexts(string(uri), current, snapshots, t.config.MaxSupplementalContext)
}

// SnapshotCount returns the number of stored snapshots for the document.
func (t *RecentEditTracker) SnapshotCount(uri protocol.DocumentURI) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.snapshots[uri])
}

// Snapshots returns a copy of the stored snapshots for the document.
func (t *RecentEditTracker) Snapshots(uri protocol.DocumentURI) []DocumentSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DocumentSnapshot, 0, len(t.snapshots[uri]))
	for _, s := range t.snapshots[uri] {
		out = append(out, *s)
	}
	return out
}

// Reset clears all tracked state.
func (t *RecentEditTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots = make(map[protocol.DocumentURI][]*DocumentSnapshot)
	t.shadowCopies = make(map[protocol.DocumentURI]string)
	t.storageBytes = 0
	t.reportLocked()
}

func (t *RecentEditTracker) reportLocked() {
	t.bytesGauge.Update(float64(t.storageBytes))
	count := 0
	for _, list := range t.snapshots {
		count += len(list)
	}
	t.snapshotGauge.Update(float64(count))
}

func isFileURI(uri protocol.DocumentURI) bool {
	return strings.HasPrefix(string(uri), "file")
}

func splitAnyEOL(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}
