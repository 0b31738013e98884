package chunker

import (
	"strings"

	"github.com/seanblong/reviewbot/pkg/models"
)

const (
	// DefaultTextChunkSize is the target character count for generic text
	// splitting, with DefaultTextOverlap characters carried between chunks.
	DefaultTextChunkSize = 2000
	DefaultTextOverlap   = 200

	// Routing files (urls.py and friends) pack one route per line, so a
	// smaller window keeps each chunk focused.
	RoutingTextChunkSize = 500
	RoutingTextOverlap   = 50
)

// separators in decreasing order of granularity. The splitter prefers the
// coarsest separator that still yields pieces under the target size.
var separators = []string{"\n\n", "\n", ". ", " "}

// TextSplitter is the generic recursive-character splitter: the structural
// default for unmatched extensions and every other strategy's fallback.
// Output chunks carry no line provenance (-1/-1) because separator splits
// cross line-boundary bookkeeping.
type TextSplitter struct {
	ChunkSize int
	Overlap   int
}

func NewTextSplitter(size, overlap int) *TextSplitter {
	if size <= 0 {
		size = DefaultTextChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &TextSplitter{ChunkSize: size, Overlap: overlap}
}

func (s *TextSplitter) Split(content, filePath string) ([]models.Chunk, error) {
	pieces := s.splitRecursive(content, 0)
	out := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, newChunk(filePath, models.ChunkTextParagraph, p, -1, -1))
	}
	return out, nil
}

// splitRecursive cuts text on the separator at depth, recursing to finer
// separators for pieces still over the target, then re-merges neighbors up
// to the target size with the configured character overlap.
func (s *TextSplitter) splitRecursive(text string, depth int) []string {
	if len(text) <= s.ChunkSize {
		return []string{text}
	}
	if depth >= len(separators) {
		return s.hardSplit(text)
	}

	sep := separators[depth]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return s.splitRecursive(text, depth+1)
	}

	var atoms []string
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if len(p) > s.ChunkSize {
			atoms = append(atoms, s.splitRecursive(p, depth+1)...)
		} else {
			atoms = append(atoms, p)
		}
	}
	return s.merge(atoms)
}

// merge greedily packs adjacent atoms into windows of at most ChunkSize
// characters, starting each new window with the tail of the previous one.
func (s *TextSplitter) merge(atoms []string) []string {
	var out []string
	var cur strings.Builder
	for _, a := range atoms {
		if cur.Len() > 0 && cur.Len()+len(a) > s.ChunkSize {
			chunk := cur.String()
			out = append(out, chunk)
			cur.Reset()
			if s.Overlap > 0 && len(chunk) > s.Overlap {
				cur.WriteString(chunk[len(chunk)-s.Overlap:])
			}
		}
		cur.WriteString(a)
	}
	if strings.TrimSpace(cur.String()) != "" {
		out = append(out, cur.String())
	}
	return out
}

// hardSplit is the last resort for text with no separators at all.
func (s *TextSplitter) hardSplit(text string) []string {
	var out []string
	step := s.ChunkSize - s.Overlap
	for i := 0; i < len(text); i += step {
		end := i + s.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[i:end])
		if end == len(text) {
			break
		}
	}
	return out
}
