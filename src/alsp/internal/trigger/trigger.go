// Package trigger decides whether editor state justifies firing an
// edit-prediction request.
package trigger

import (
	"strings"
	"time"

	"github.com/uber/assist-lsp/src/alsp/internal/tracker"
	"go.lsp.dev/protocol"
)

// Config bounds the auto-trigger's lookups.
type Config struct {
	// RecentEditThreshold is how far back an edit still counts as recent.
	RecentEditThreshold time.Duration
	// AdjacentLineRange is the +/- line window inspected for recent edits.
	AdjacentLineRange int
	// MaxLinesToScan bounds the lookahead for non-empty suffix content.
	MaxLinesToScan int
}

// DefaultConfig returns the production trigger limits.
func DefaultConfig() Config {
	return Config{
		RecentEditThreshold: 20 * time.Second,
		AdjacentLineRange:   5,
		MaxLinesToScan:      5,
	}
}

// Params is the editor state an auto-trigger decision is made from.
type Params struct {
	URI              protocol.DocumentURI
	Line             int
	RightFileContent string
	RecentEdits      *tracker.RecentEditTracker
}

// ShouldTrigger fires only when the current line's vicinity was edited
// recently AND one of the next few lines has non-empty content. Both
// conditions are required to control request volume.
func ShouldTrigger(cfg Config, p Params) bool {
	hasRecentEdit := p.RecentEdits != nil && p.RecentEdits.HasRecentEditInLine(
		p.URI, p.Line, cfg.RecentEditThreshold, cfg.AdjacentLineRange)

	rightLines := strings.Split(strings.ReplaceAll(p.RightFileContent, "\r\n", "\n"), "\n")
	hasNonEmptySuffix := false
	limit := cfg.MaxLinesToScan + 1
	if limit > len(rightLines) {
		limit = len(rightLines)
	}
	// The first right-context line is the remainder of the current line.
	for i := 1; i < limit; i++ {
		if strings.TrimSpace(rightLines[i]) != "" {
			hasNonEmptySuffix = true
			break
		}
	}

	return hasRecentEdit && hasNonEmptySuffix
}
