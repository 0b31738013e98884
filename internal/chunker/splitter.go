package chunker

import (
	"strings"

	"github.com/seanblong/reviewbot/pkg/models"
)

const (
	// DefaultTokenBudget is the per-chunk token ceiling before splitting.
	// Token counts are approximated as characters / 4.
	DefaultTokenBudget = 1500
	// DefaultOverlapLines is how many trailing lines of one part repeat at
	// the head of the next so neighbors share context.
	DefaultOverlapLines = 7
)

// BudgetSplitter post-processes chunks that exceed a token budget into
// overlapping line-based parts with recomputed line provenance.
type BudgetSplitter struct {
	TokenBudget  int
	OverlapLines int
}

func NewBudgetSplitter() *BudgetSplitter {
	return &BudgetSplitter{TokenBudget: DefaultTokenBudget, OverlapLines: DefaultOverlapLines}
}

// EstimateTokens approximates the token count of text as len/4, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// PostProcess drops empty chunks and splits oversized ones. A chunk of T
// tokens against budget B becomes ceil(T/B) parts of equal line count; each
// part after the first repeats the previous part's last OverlapLines lines,
// so the non-overlapped ranges tile the parent span with no gap.
func (b *BudgetSplitter) PostProcess(chunks []models.Chunk) []models.Chunk {
	var out []models.Chunk
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		tokens := EstimateTokens(c.Content)
		if tokens <= b.TokenBudget {
			out = append(out, c)
			continue
		}
		out = append(out, b.split(c, tokens)...)
	}
	return out
}

func (b *BudgetSplitter) split(c models.Chunk, tokens int) []models.Chunk {
	lines := strings.Split(c.Content, "\n")
	n := (tokens + b.TokenBudget - 1) / b.TokenBudget
	if n > len(lines) {
		n = len(lines)
	}
	if n <= 1 {
		return []models.Chunk{c}
	}
	perPart := (len(lines) + n - 1) / n

	var parts []models.Chunk
	for i := 0; i < n; i++ {
		lo := i * perPart
		hi := lo + perPart
		if hi > len(lines) {
			hi = len(lines)
		}
		if lo >= hi {
			break
		}
		head := lo
		if i > 0 && b.OverlapLines > 0 {
			head = lo - b.OverlapLines
			if head < 0 {
				head = 0
			}
		}
		body := strings.Join(lines[head:hi], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		p := c
		p.Content = body
		if c.StartLine >= 0 {
			p.StartLine = c.StartLine + head
			p.EndLine = c.StartLine + hi - 1
		}
		parts = append(parts, p)
	}
	for i := range parts {
		parts[i].PartIndex = i + 1
		parts[i].PartTotal = len(parts)
	}
	return parts
}
