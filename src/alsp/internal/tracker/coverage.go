package tracker

import (
	"math"
	"sync"

	"go.lsp.dev/protocol"
)

// CoverageStats is a point-in-time summary of how much of the code written in
// the editor came from accepted suggestions.
type CoverageStats struct {
	// Percentage is accepted over total characters, rounded to two decimals.
	Percentage          float64
	AcceptedChars       int
	TotalChars          int
	AcceptedSuggestions int
}

// CoverageTracker accumulates inserted-character counts per document and the
// character volume of accepted suggestions, backing the coverage telemetry.
// Deletions are ignored; only growth counts as written code.
type CoverageTracker struct {
	mu                  sync.Mutex
	docLengths          map[protocol.DocumentURI]int
	totalChars          int
	acceptedChars       int
	acceptedSuggestions int
}

// NewCoverageTracker creates a CoverageTracker.
func NewCoverageTracker() *CoverageTracker {
	return &CoverageTracker{
		docLengths: make(map[protocol.DocumentURI]int),
	}
}

// HandleDocumentOpen seeds the length baseline for a document. Content
// already present when the document opens is not counted as written.
func (t *CoverageTracker) HandleDocumentOpen(uri protocol.DocumentURI, contentLen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docLengths[uri] = contentLen
}

// HandleDocumentChange counts the document's growth since the last
// observation toward the total written characters.
func (t *CoverageTracker) HandleDocumentChange(uri protocol.DocumentURI, contentLen int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if previous, ok := t.docLengths[uri]; ok && contentLen > previous {
		t.totalChars += contentLen - previous
	}
	t.docLengths[uri] = contentLen
}

// HandleDocumentClose drops the length baseline for a closed document.
func (t *CoverageTracker) HandleDocumentClose(uri protocol.DocumentURI) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.docLengths, uri)
}

// RecordAcceptance attributes chars of the written total to an accepted
// suggestion. The insertion itself arrives through HandleDocumentChange.
func (t *CoverageTracker) RecordAcceptance(chars int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acceptedChars += chars
	t.acceptedSuggestions++
}

// Snapshot returns the accumulated coverage statistics.
func (t *CoverageTracker) Snapshot() CoverageStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := CoverageStats{
		AcceptedChars:       t.acceptedChars,
		TotalChars:          t.totalChars,
		AcceptedSuggestions: t.acceptedSuggestions,
	}
	if stats.TotalChars > 0 {
		ratio := float64(stats.AcceptedChars) / float64(stats.TotalChars) * 100
		stats.Percentage = math.Round(ratio*100) / 100
	}
	return stats
}

// Reset clears all accumulated counts and baselines.
func (t *CoverageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docLengths = make(map[protocol.DocumentURI]int)
	t.totalChars = 0
	t.acceptedChars = 0
	t.acceptedSuggestions = 0
}
