package diff

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnifiedDiffHeadersAndHunk(t *testing.T) {
	oldTime := time.UnixMilli(1700000000000)
	newTime := time.UnixMilli(1700000005000)
	oldContent := "line1\nline2\nline3\n"
	newContent := "line1\nchanged\nline3\n"

	got := GenerateUnifiedDiff("file:///a.go", "file:///a.go", oldContent, newContent, oldTime, newTime)

	lines := strings.Split(got, "\n")
	require.GreaterOrEqual(t, len(lines), 6)
	assert.Equal(t, "--- file:///a.go\t1700000000000", lines[0])
	assert.Equal(t, "+++ file:///a.go\t1700000005000", lines[1])
	assert.Equal(t, "@@ -1,3 +1,3 @@", lines[2])
	assert.Contains(t, lines, "-line2")
	assert.Contains(t, lines, "+changed")
	assert.Contains(t, lines, " line1")
	assert.Contains(t, lines, " line3")
}

func TestGenerateUnifiedDiffNoChanges(t *testing.T) {
	content := "same\ncontent\n"
	got := GenerateUnifiedDiff("a", "a", content, content, time.Now(), time.Now())
	assert.Empty(t, got)
}

func TestGenerateUnifiedDiffSeparateHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 20; i++ {
		oldLines = append(oldLines, "line")
		newLines = append(newLines, "line")
	}
	newLines[0] = "first"
	newLines[19] = "last"

	got := GenerateUnifiedDiff("a", "a",
		strings.Join(oldLines, "\n")+"\n",
		strings.Join(newLines, "\n")+"\n",
		time.Now(), time.Now())

	// Changes far apart produce two hunks.
	assert.Equal(t, 2, strings.Count(got, "@@ -"))
}

func TestGenerateDiffContextsNewestFirst(t *testing.T) {
	base := time.Unix(1700000000, 0)
	snapshots := []SnapshotContent{
		{FilePath: "file:///a.go", Content: "alpha\n", Time: base},
		{FilePath: "file:///a.go", Content: "beta\n", Time: base.Add(5 * time.Second)},
	}

	items := GenerateDiffContexts("file:///a.go", "gamma\n", snapshots, 15)
	require.Len(t, items, 2)
	assert.Contains(t, items[0].Content, "-beta")
	assert.Contains(t, items[1].Content, "-alpha")
}

func TestGenerateDiffContextsDropsEmptyAndTrims(t *testing.T) {
	base := time.Unix(1700000000, 0)
	snapshots := []SnapshotContent{
		{FilePath: "a", Content: "one\n", Time: base},
		{FilePath: "a", Content: "current\n", Time: base.Add(time.Second)},
		{FilePath: "a", Content: "two\n", Time: base.Add(2 * time.Second)},
	}

	items := GenerateDiffContexts("a", "current\n", snapshots, 15)
	require.Len(t, items, 2)

	items = GenerateDiffContexts("a", "current\n", snapshots, 1)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Content, "-two")
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
	assert.Equal(t, 0, Levenshtein("same", "same"))
	assert.Equal(t, 5, Levenshtein("", "hello"))
}

func TestAddedAndDeletedLines(t *testing.T) {
	unified := strings.Join([]string{
		"--- a\t0",
		"+++ b\t1",
		"@@ -1,2 +1,2 @@",
		" context",
		"-removed",
		"+added one",
		"+added two",
	}, "\n")

	added, deleted := AddedAndDeletedLines(unified)
	assert.Equal(t, []string{"added one", "added two"}, added)
	assert.Equal(t, []string{"removed"}, deleted)
}
