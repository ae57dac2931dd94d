// Package diff produces unified-diff text and similarity measurements for
// document snapshots, backing supplemental contexts and rejected-edit matching.
package diff

import (
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const _defaultContextLines = 3

// ContextItem is one unified-diff supplemental context entry for a backend request.
type ContextItem struct {
	FilePath string
	Content  string
	Score    float64
}

// SnapshotContent is a point-in-time capture of a file used as the old side of a diff.
type SnapshotContent struct {
	FilePath string
	Content  string
	Time     time.Time
}

// GenerateUnifiedDiff renders a unified diff between two versions of a file,
// with millisecond timestamps in the file headers and three lines of context.
func GenerateUnifiedDiff(oldPath, newPath, oldContent, newContent string, oldTime, newTime time.Time) string {
	ops := lineDiff(oldContent, newContent)
	hunks := buildHunks(ops, _defaultContextLines)
	if len(hunks) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\t%d\n", oldPath, oldTime.UnixMilli())
	fmt.Fprintf(&b, "+++ %s\t%d\n", newPath, newTime.UnixMilli())
	for _, h := range hunks {
		writeHunk(&b, h)
	}
	return b.String()
}

// GenerateDiffContexts diffs each snapshot against the current content,
// newest-first, dropping empty diffs and trimming to maxContexts items.
// Snapshots are expected in oldest-first order.
func GenerateDiffContexts(filePath, currentContent string, snapshots []SnapshotContent, maxContexts int) []ContextItem {
	now := time.Now()
	items := make([]ContextItem, 0, len(snapshots))
	for i := len(snapshots) - 1; i >= 0; i-- {
		s := snapshots[i]
		d := GenerateUnifiedDiff(s.FilePath, filePath, s.Content, currentContent, s.Time, now)
		if strings.TrimSpace(d) == "" {
			continue
		}
		items = append(items, ContextItem{FilePath: s.FilePath, Content: d, Score: 1.0})
	}
	if maxContexts >= 0 && len(items) > maxContexts {
		items = items[:maxContexts]
	}
	return items
}

// Levenshtein returns the edit distance between two strings.
func Levenshtein(a, b string) int {
	dmp := diffmatchpatch.New()
	return dmp.DiffLevenshtein(dmp.DiffMain(a, b, false))
}

// AddedAndDeletedLines extracts the body of added and deleted lines from a
// unified diff, excluding the file headers.
func AddedAndDeletedLines(unifiedDiff string) (added []string, deleted []string) {
	for _, line := range strings.Split(unifiedDiff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added = append(added, line[1:])
		case strings.HasPrefix(line, "-"):
			deleted = append(deleted, line[1:])
		}
	}
	return added, deleted
}

// lineOp is one line-granular diff operation.
type lineOp struct {
	op   diffmatchpatch.Operation
	text string
}

// lineDiff computes a line-level diff via the diffmatchpatch
// lines-to-chars transformation, then flattens it to per-line operations.
func lineDiff(oldContent, newContent string) []lineOp {
	dmp := diffmatchpatch.New()
	oldChars, newChars, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(oldChars, newChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			ops = append(ops, lineOp{op: d.Type, text: line})
		}
	}
	return ops
}

type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	ops                []lineOp
}

// buildHunks groups changed lines into hunks with the given number of
// unchanged context lines on each side, merging hunks whose context overlaps.
func buildHunks(ops []lineOp, context int) []hunk {
	changed := make([]bool, len(ops))
	any := false
	for i, op := range ops {
		if op.op != diffmatchpatch.DiffEqual {
			changed[i] = true
			any = true
		}
	}
	if !any {
		return nil
	}

	include := make([]bool, len(ops))
	for i := range ops {
		if !changed[i] {
			continue
		}
		lo := i - context
		if lo < 0 {
			lo = 0
		}
		hi := i + context
		if hi > len(ops)-1 {
			hi = len(ops) - 1
		}
		for j := lo; j <= hi; j++ {
			include[j] = true
		}
	}

	var hunks []hunk
	oldLine, newLine := 1, 1
	i := 0
	for i < len(ops) {
		if !include[i] {
			advance(ops[i], &oldLine, &newLine)
			i++
			continue
		}
		h := hunk{oldStart: oldLine, newStart: newLine}
		for i < len(ops) && include[i] {
			h.ops = append(h.ops, ops[i])
			switch ops[i].op {
			case diffmatchpatch.DiffDelete:
				h.oldCount++
			case diffmatchpatch.DiffInsert:
				h.newCount++
			default:
				h.oldCount++
				h.newCount++
			}
			advance(ops[i], &oldLine, &newLine)
			i++
		}
		hunks = append(hunks, h)
	}
	return hunks
}

func advance(op lineOp, oldLine, newLine *int) {
	switch op.op {
	case diffmatchpatch.DiffDelete:
		*oldLine++
	case diffmatchpatch.DiffInsert:
		*newLine++
	default:
		*oldLine++
		*newLine++
	}
}

func writeHunk(b *strings.Builder, h hunk) {
	oldStart := h.oldStart
	if h.oldCount == 0 {
		oldStart--
	}
	newStart := h.newStart
	if h.newCount == 0 {
		newStart--
	}
	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", oldStart, h.oldCount, newStart, h.newCount)
	for _, op := range h.ops {
		switch op.op {
		case diffmatchpatch.DiffDelete:
			b.WriteString("-")
		case diffmatchpatch.DiffInsert:
			b.WriteString("+")
		default:
			b.WriteString(" ")
		}
		b.WriteString(op.text)
		b.WriteString("\n")
	}
}

// splitLines splits content into lines without trailing newline characters.
// A trailing newline does not produce an empty final element.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
