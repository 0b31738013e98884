package chunker

import (
	"strings"
	"testing"

	"github.com/seanblong/reviewbot/pkg/models"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 6000), 1500},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestPostProcessDropsEmptyAndKeepsSmall(t *testing.T) {
	b := NewBudgetSplitter()
	in := []models.Chunk{
		{Content: "   \n\t  "},
		{Content: "small chunk", StartLine: 1, EndLine: 1, PartIndex: 1, PartTotal: 1},
	}
	out := b.PostProcess(in)
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if out[0].Content != "small chunk" || out[0].PartTotal != 1 {
		t.Errorf("out = %+v", out[0])
	}
}

func TestPostProcessSplitsOversized(t *testing.T) {
	// 100 lines of 60 chars each: 6099 chars, 1525 tokens over a 1500
	// budget splits into 2 parts of 50 lines.
	line := strings.Repeat("a", 60)
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = line
	}
	content := strings.Join(lines, "\n")

	c := models.Chunk{
		FilePath:  "big.py",
		Type:      models.ChunkFunction,
		Content:   content,
		StartLine: 10,
		EndLine:   109,
	}

	b := NewBudgetSplitter()
	out := b.PostProcess([]models.Chunk{c})
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}

	p1, p2 := out[0], out[1]
	if p1.PartIndex != 1 || p1.PartTotal != 2 || p2.PartIndex != 2 || p2.PartTotal != 2 {
		t.Errorf("part indices = %d/%d and %d/%d", p1.PartIndex, p1.PartTotal, p2.PartIndex, p2.PartTotal)
	}

	// part 1: lines 0..49 of the parent, so file lines 10..59
	if p1.StartLine != 10 || p1.EndLine != 59 {
		t.Errorf("p1 span = %d:%d, want 10:59", p1.StartLine, p1.EndLine)
	}
	// part 2 repeats the previous 7 lines: head 43, so file lines 53..109
	if p2.StartLine != 53 || p2.EndLine != 109 {
		t.Errorf("p2 span = %d:%d, want 53:109", p2.StartLine, p2.EndLine)
	}

	if n := len(strings.Split(p1.Content, "\n")); n != 50 {
		t.Errorf("p1 lines = %d, want 50", n)
	}
	if n := len(strings.Split(p2.Content, "\n")); n != 57 {
		t.Errorf("p2 lines = %d, want 57 (50 + 7 overlap)", n)
	}

	// non-overlapped ranges tile the parent exactly
	tail := strings.Split(p2.Content, "\n")[7:]
	rebuilt := p1.Content + "\n" + strings.Join(tail, "\n")
	if rebuilt != content {
		t.Error("parts do not reassemble to the parent content")
	}

	// derived fields survive the split
	if p2.FilePath != "big.py" || p2.Type != models.ChunkFunction {
		t.Errorf("p2 metadata = %+v", p2)
	}
}

func TestPostProcessNoProvenanceKeepsNegativeLines(t *testing.T) {
	content := strings.Join(make([]string, 40), strings.Repeat("b", 200)+"\n")
	c := models.Chunk{Content: content, StartLine: -1, EndLine: -1}
	b := NewBudgetSplitter()
	out := b.PostProcess([]models.Chunk{c})
	if len(out) < 2 {
		t.Fatalf("len = %d, want >= 2", len(out))
	}
	for _, p := range out {
		if p.StartLine != -1 || p.EndLine != -1 {
			t.Errorf("part span = %d:%d, want -1:-1", p.StartLine, p.EndLine)
		}
	}
}

func TestPostProcessSingleLineOversizedStaysWhole(t *testing.T) {
	// one giant line cannot be split on line boundaries
	c := models.Chunk{Content: strings.Repeat("x", 10000), StartLine: 1, EndLine: 1}
	b := NewBudgetSplitter()
	out := b.PostProcess([]models.Chunk{c})
	if len(out) != 1 || len(out[0].Content) != 10000 {
		t.Errorf("out = %d chunks", len(out))
	}
}
