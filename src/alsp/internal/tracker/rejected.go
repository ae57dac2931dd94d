package tracker

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/uber/assist-lsp/src/alsp/internal/clock"
	"github.com/uber/assist-lsp/src/alsp/internal/diff"
	"go.lsp.dev/protocol"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RejectedEditConfig bounds the rejection ring and sets the match threshold.
type RejectedEditConfig struct {
	MaxEntries int
	// SimilarityThreshold of 1.0 suppresses only exact matches after normalization.
	SimilarityThreshold float64
}

// DefaultRejectedEditConfig returns the production limits.
func DefaultRejectedEditConfig() RejectedEditConfig {
	return RejectedEditConfig{MaxEntries: 50, SimilarityThreshold: 1.0}
}

// RejectedEditEntry is one recorded rejection.
type RejectedEditEntry struct {
	Content  string
	Time     time.Time
	URI      protocol.DocumentURI
	Position protocol.Position
}

var _hunkHeader = regexp.MustCompile(`@@\s+-\d+,\d+\s+\+\d+,\d+\s+@@`)

// RejectedEditParams defines the dependencies of the RejectedEditTracker.
type RejectedEditParams struct {
	fx.In

	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// RejectedEditTracker remembers rejected suggestions so similar ones are not
// shown again. Entries are kept most-recent-first in a capped ring.
type RejectedEditTracker struct {
	clock  clock.Clock
	logger *zap.SugaredLogger
	config RejectedEditConfig

	mu      sync.Mutex
	entries []RejectedEditEntry
}

// NewRejectedEditTracker creates a RejectedEditTracker with default limits.
func NewRejectedEditTracker(p RejectedEditParams) *RejectedEditTracker {
	return &RejectedEditTracker{
		clock:  p.Clock,
		logger: p.Logger.With("plugin", "rejected-edit-tracker"),
		config: DefaultRejectedEditConfig(),
	}
}

// NewRejectedEditTrackerWithConfig creates a tracker with explicit limits.
func NewRejectedEditTrackerWithConfig(p RejectedEditParams, config RejectedEditConfig) *RejectedEditTracker {
	t := NewRejectedEditTracker(p)
	t.config = config
	return t
}

// RecordRejection stores a rejected suggestion.
func (t *RejectedEditTracker) RecordRejection(uri protocol.DocumentURI, position protocol.Position, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append([]RejectedEditEntry{{
		Content:  content,
		Time:     t.clock.Now(),
		URI:      uri,
		Position: position,
	}}, t.entries...)
	if len(t.entries) > t.config.MaxEntries {
		t.entries = t.entries[:t.config.MaxEntries]
	}
}

// IsSimilarToRejected reports whether the candidate content, after
// normalization, is at least threshold-similar to any rejection recorded for
// the same document.
func (t *RejectedEditTracker) IsSimilarToRejected(content string, uri protocol.DocumentURI) bool {
	t.mu.Lock()
	entries := make([]RejectedEditEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.URI == uri {
			entries = append(entries, e)
		}
	}
	t.mu.Unlock()

	normalized := normalizeEditContent(content)
	for _, e := range entries {
		similarity := similarity(normalized, normalizeEditContent(e.Content))
		if similarity >= t.config.SimilarityThreshold {
			t.logger.Debugw("suggestion matches rejected edit", "uri", uri, "similarity", similarity)
			return true
		}
	}
	return false
}

// Count returns the number of recorded rejections.
func (t *RejectedEditTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear drops all recorded rejections.
func (t *RejectedEditTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// normalizeEditContent strips hunk headers, unifies line endings, trims blank
// boundary lines, and removes common leading indentation.
func normalizeEditContent(content string) string {
	normalized := _hunkHeader.ReplaceAllString(content, "")
	normalized = strings.ReplaceAll(normalized, "\r\n", "\n")

	lines := strings.Split(normalized, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	minIndent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if minIndent < 0 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent > 0 {
		for i, line := range lines {
			if len(line) >= minIndent {
				lines[i] = line[minIndent:]
			}
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// similarity is 1 - levenshtein/maxLen, with exact matches short-circuited.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1.0 - float64(diff.Levenshtein(a, b))/float64(maxLen)
}
