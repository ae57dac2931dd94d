package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lsp.dev/protocol"
)

const _coverageURI = protocol.DocumentURI("file:///ws/main.go")

func TestCoverageCountsGrowthOnly(t *testing.T) {
	tr := NewCoverageTracker()

	tr.HandleDocumentOpen(_coverageURI, 10)
	tr.HandleDocumentChange(_coverageURI, 25)
	tr.HandleDocumentChange(_coverageURI, 20)
	tr.HandleDocumentChange(_coverageURI, 30)

	stats := tr.Snapshot()
	assert.Equal(t, 25, stats.TotalChars)
	assert.Zero(t, stats.AcceptedChars)
	assert.Zero(t, stats.Percentage)
}

func TestCoverageOpenBaselineNotCounted(t *testing.T) {
	tr := NewCoverageTracker()

	// A document arriving with existing content contributes nothing until it
	// grows past the baseline.
	tr.HandleDocumentOpen(_coverageURI, 500)
	assert.Zero(t, tr.Snapshot().TotalChars)

	// Changes on a document that was never opened are ignored too.
	tr.HandleDocumentChange(protocol.DocumentURI("file:///ws/unknown.go"), 40)
	assert.Zero(t, tr.Snapshot().TotalChars)
}

func TestCoveragePercentage(t *testing.T) {
	tr := NewCoverageTracker()

	tr.HandleDocumentOpen(_coverageURI, 0)
	tr.HandleDocumentChange(_coverageURI, 300)
	tr.RecordAcceptance(100)

	stats := tr.Snapshot()
	assert.Equal(t, 300, stats.TotalChars)
	assert.Equal(t, 100, stats.AcceptedChars)
	assert.Equal(t, 1, stats.AcceptedSuggestions)
	assert.InDelta(t, 33.33, stats.Percentage, 0.001)
}

func TestCoverageCloseDropsBaseline(t *testing.T) {
	tr := NewCoverageTracker()

	tr.HandleDocumentOpen(_coverageURI, 0)
	tr.HandleDocumentChange(_coverageURI, 10)
	tr.HandleDocumentClose(_coverageURI)
	tr.HandleDocumentChange(_coverageURI, 50)

	assert.Equal(t, 10, tr.Snapshot().TotalChars)
}

func TestCoverageReset(t *testing.T) {
	tr := NewCoverageTracker()
	tr.HandleDocumentOpen(_coverageURI, 0)
	tr.HandleDocumentChange(_coverageURI, 10)
	tr.RecordAcceptance(5)

	tr.Reset()
	stats := tr.Snapshot()
	assert.Zero(t, stats.TotalChars)
	assert.Zero(t, stats.AcceptedChars)
	assert.Zero(t, stats.AcceptedSuggestions)
}
