package chunker

import (
	"strings"

	"github.com/seanblong/reviewbot/pkg/models"
)

// MarkdownSplitter cuts a document on level-1 and level-2 headings. Each
// section chunk is prefixed with its heading name, or "Root Content" for
// text before the first heading. Sections are line-contiguous, so chunks
// keep real line spans.
type MarkdownSplitter struct{}

func (s *MarkdownSplitter) Split(content, filePath string) ([]models.Chunk, error) {
	lines := strings.Split(content, "\n")

	type section struct {
		heading    string
		start, end int
	}
	var sections []section
	cur := section{heading: "Root Content", start: 0}
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if inFence || !isHeading(line) {
			continue
		}
		cur.end = i - 1
		sections = append(sections, cur)
		cur = section{heading: headingText(line), start: i}
	}
	cur.end = len(lines) - 1
	sections = append(sections, cur)

	var chunks []models.Chunk
	for _, sec := range sections {
		if sec.end < sec.start {
			continue
		}
		body := strings.Join(lines[sec.start:sec.end+1], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		chunks = append(chunks, newChunk(filePath, models.ChunkMarkdownSection,
			sec.heading+":\n"+body, sec.start+1, sec.end+1))
	}
	return chunks, nil
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ")
}

func headingText(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "# "))
}
