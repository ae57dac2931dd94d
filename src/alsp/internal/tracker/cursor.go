package tracker

import (
	"sync"
	"time"

	"github.com/uber/assist-lsp/src/alsp/internal/clock"
	"go.lsp.dev/protocol"
	"go.uber.org/fx"
)

const (
	_maxCursorHistory = 100
	_cursorMaxAge     = 30 * time.Minute
)

// CursorPosition is one observed cursor location with its timestamp.
type CursorPosition struct {
	URI      protocol.DocumentURI
	Position protocol.Position
	Time     time.Time
}

// CursorParams defines the dependencies of the CursorTracker.
type CursorParams struct {
	fx.In

	Clock clock.Clock
}

// CursorTracker records cursor positions over time to detect user pauses.
type CursorTracker struct {
	clock clock.Clock

	mu      sync.Mutex
	history map[protocol.DocumentURI][]CursorPosition
}

// NewCursorTracker creates a CursorTracker.
func NewCursorTracker(p CursorParams) *CursorTracker {
	return &CursorTracker{
		clock:   p.Clock,
		history: make(map[protocol.DocumentURI][]CursorPosition),
	}
}

// TrackPosition appends a cursor observation, capping per-document history
// and scheduling the entry's expiry.
func (t *CursorTracker) TrackPosition(uri protocol.DocumentURI, position protocol.Position) CursorPosition {
	entry := CursorPosition{URI: uri, Position: position, Time: t.clock.Now()}

	t.mu.Lock()
	list := append(t.history[uri], entry)
	if len(list) > _maxCursorHistory {
		list = list[1:]
	}
	t.history[uri] = list
	t.mu.Unlock()

	t.clock.AfterFunc(_cursorMaxAge, func() {
		t.expire(uri, entry)
	})

	return entry
}

// LastPositionTime returns when the cursor was most recently at the exact
// position, or false if it never was.
func (t *CursorTracker) LastPositionTime(uri protocol.DocumentURI, position protocol.Position) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.history[uri]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Position.Line == position.Line && list[i].Position.Character == position.Character {
			return list[i].Time, true
		}
	}
	return time.Time{}, false
}

// HasPositionChanged reports whether the cursor either never visited the
// position or has stayed there for at least the given duration.
func (t *CursorTracker) HasPositionChanged(uri protocol.DocumentURI, position protocol.Position, duration time.Duration) bool {
	last, ok := t.LastPositionTime(uri, position)
	if !ok {
		return true
	}
	return t.clock.Now().Sub(last) >= duration
}

// ClearHistory drops all observations for a document.
func (t *CursorTracker) ClearHistory(uri protocol.DocumentURI) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, uri)
}

// History returns a copy of the observations for a document.
func (t *CursorTracker) History(uri protocol.DocumentURI) []CursorPosition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CursorPosition, len(t.history[uri]))
	copy(out, t.history[uri])
	return out
}

// Reset clears all tracked state.
func (t *CursorTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = make(map[protocol.DocumentURI][]CursorPosition)
}

func (t *CursorTracker) expire(uri protocol.DocumentURI, entry CursorPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.history[uri]
	for i := range list {
		if list[i] == entry {
			t.history[uri] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(t.history[uri]) == 0 {
		delete(t.history, uri)
	}
}
