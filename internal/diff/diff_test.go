package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChanges_SimpleAddition(t *testing.T) {
	oldLines := SplitLines("line1\nline2\nline3")
	newLines := SplitLines("line1\nline2\nline2.5\nline3")

	got := NewEngine().Changes(oldLines, newLines)
	want := []Change{{OldStart: 2, OldEnd: 2, NewStart: 2, NewEnd: 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
}

func TestChanges_SimpleDeletion(t *testing.T) {
	got := NewEngine().Changes(
		SplitLines("line1\nline2\nline3\nline4"),
		SplitLines("line1\nline2\nline4"),
	)
	want := []Change{{OldStart: 2, OldEnd: 3, NewStart: 2, NewEnd: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
}

func TestChanges_Replacement(t *testing.T) {
	got := NewEngine().Changes(
		SplitLines("a\nb\nc"),
		SplitLines("a\nB\nc"),
	)
	want := []Change{{OldStart: 1, OldEnd: 2, NewStart: 1, NewEnd: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
}

func TestChanges_LastLineWithoutNewline(t *testing.T) {
	got := NewEngine().Changes(SplitLines("a\nb"), SplitLines("a\nbc"))
	want := []Change{{OldStart: 1, OldEnd: 2, NewStart: 1, NewEnd: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
}

func TestChanges_NoChanges(t *testing.T) {
	lines := SplitLines("same\ncontent\n")
	if got := NewEngine().Changes(lines, lines); len(got) != 0 {
		t.Errorf("Expected no changes, got %v", got)
	}
}

func TestChanges_MultipleRegions(t *testing.T) {
	var oldB, newB strings.Builder
	for i := 0; i < 20; i++ {
		line := "line" + string(rune('a'+i))
		oldB.WriteString(line + "\n")
		switch i {
		case 2:
			newB.WriteString("changed-early\n")
		case 15:
			newB.WriteString("changed-late\n")
		default:
			newB.WriteString(line + "\n")
		}
	}
	got := NewEngine().Changes(SplitLines(oldB.String()), SplitLines(newB.String()))
	want := []Change{
		{OldStart: 2, OldEnd: 3, NewStart: 2, NewEnd: 3},
		{OldStart: 15, OldEnd: 16, NewStart: 15, NewEnd: 16},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
}

func numberedLines(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("l%d", i)
	}
	return out
}

func TestChanges_LinesPastTen(t *testing.T) {
	oldLines := numberedLines(12)
	newLines := numberedLines(12)
	newLines[11] = "changed"

	got := NewEngine().Changes(oldLines, newLines)
	want := []Change{{OldStart: 11, OldEnd: 12, NewStart: 11, NewEnd: 12}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
}

func TestChanges_ManyDistinctLines(t *testing.T) {
	oldLines := numberedLines(60000)
	newLines := append([]string(nil), oldLines...)
	newLines[56000] = "changed"
	newLines = append(newLines[:100], newLines[101:]...)

	got := NewEngine().Changes(oldLines, newLines)
	want := []Change{
		{OldStart: 100, OldEnd: 101, NewStart: 100, NewEnd: 100},
		{OldStart: 56000, OldEnd: 56001, NewStart: 55999, NewEnd: 56000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
}

func TestLineEncoderSkipsSurrogates(t *testing.T) {
	var le lineEncoder
	runes := le.encode(numberedLines(surrogateStart + 2))
	for i, r := range runes {
		if r >= surrogateStart && r < surrogateStart+surrogateGap {
			t.Fatalf("line %d encoded as surrogate %U", i, r)
		}
		if got := le.decode([]rune(string(r))[0]); got != fmt.Sprintf("l%d", i) {
			t.Fatalf("line %d decoded as %q", i, got)
		}
	}
}

func TestComputeDiff_Unified(t *testing.T) {
	oldContent := "one\ntwo\nthree\nfour\nfive\nsix\nseven"
	newContent := "one\ntwo\nthree\nFOUR\nfive\nsix\nseven"

	fd := NewEngine().ComputeDiff("a/x.go", "b/x.go", oldContent, newContent, 1)
	if len(fd.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(fd.Hunks))
	}
	h := fd.Hunks[0]
	if h.OldStart != 3 || h.OldCount != 3 || h.NewStart != 3 || h.NewCount != 3 {
		t.Errorf("unexpected hunk header: %+v", h)
	}

	want := "--- a/x.go\n+++ b/x.go\n@@ -3,3 +3,3 @@\n three\n-four\n+FOUR\n five\n"
	if got := fd.String(); got != want {
		t.Errorf("String() mismatch:\n%s", cmp.Diff(want, got))
	}
}

func TestComputeDiff_NoChangesRendersEmpty(t *testing.T) {
	fd := NewEngine().ComputeDiff("a", "b", "x\ny", "x\ny", 3)
	if fd.String() != "" || len(fd.Hunks) != 0 {
		t.Errorf("expected empty diff, got %q", fd.String())
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"kitten", "sitting", 3},
		{"", "four", 4},
	}
	for _, tt := range tests {
		if got := Levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func BenchmarkChanges_Large(b *testing.B) {
	var oldB, newB strings.Builder
	for i := 0; i < 2000; i++ {
		oldB.WriteString("line content here\n")
		if i%100 == 0 {
			newB.WriteString("modified line\n")
		} else {
			newB.WriteString("line content here\n")
		}
	}
	oldLines, newLines := SplitLines(oldB.String()), SplitLines(newB.String())
	e := NewEngine()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Changes(oldLines, newLines)
	}
}
