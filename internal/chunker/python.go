package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seanblong/reviewbot/pkg/models"
)

// PythonSplitter cuts a Python module into top-level definitions: one chunk
// per function/class (decorators included), one aggregated chunk for all
// top-level imports, and residual module-level code grouped into blocks.
// With Settings set, top-level if/try blocks become their own chunks too,
// which keeps Django settings files from collapsing into one blob.
//
// Parsing is a line scanner, not a full grammar: it tracks bracket depth,
// string state and indentation, which is enough to find top-level statement
// boundaries. Files it cannot scan (unterminated strings, unbalanced
// brackets, stray indentation) return an error so the dispatcher can fall
// back to text splitting.
type PythonSplitter struct {
	Settings bool
}

func (s *PythonSplitter) Split(content, filePath string) ([]models.Chunk, error) {
	lines := strings.Split(content, "\n")
	sc := &pyScanner{lines: lines}

	var chunks []models.Chunk
	var importFirst, importLast = -1, -1
	var importLines []string
	var modStart = -1
	var modLines []string

	flushModule := func(endIdx int) {
		if modStart == -1 {
			return
		}
		body := strings.Join(modLines, "\n")
		if strings.TrimSpace(body) != "" {
			chunks = append(chunks, newChunk(filePath, models.ChunkModuleLevelCode, body, modStart+1, endIdx+1))
		}
		modStart, modLines = -1, nil
	}

	decoStart := -1
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			flushModule(i - 1)
			i++
			continue
		}
		if indentOf(lines[i]) > 0 {
			return nil, fmt.Errorf("line %d: unexpected indentation at top level", i+1)
		}

		switch {
		case strings.HasPrefix(trimmed, "@"):
			flushModule(i - 1)
			if decoStart == -1 {
				decoStart = i
			}
			end, err := sc.stmtEnd(i)
			if err != nil {
				return nil, err
			}
			i = end + 1

		case isDefOrClass(trimmed):
			flushModule(i - 1)
			start := i
			if decoStart != -1 {
				start = decoStart
				decoStart = -1
			}
			end, err := sc.blockEnd(i)
			if err != nil {
				return nil, err
			}
			t := models.ChunkFunction
			if strings.HasPrefix(trimmed, "class ") || strings.HasPrefix(trimmed, "class:") {
				t = models.ChunkClass
			}
			chunks = append(chunks, newChunk(filePath, t,
				strings.Join(lines[start:end+1], "\n"), start+1, end+1))
			i = end + 1

		case strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from "):
			flushModule(i - 1)
			decoStart = -1
			end, err := sc.stmtEnd(i)
			if err != nil {
				return nil, err
			}
			if importFirst == -1 {
				importFirst = i
			}
			importLast = end
			importLines = append(importLines, lines[i:end+1]...)
			i = end + 1

		case s.Settings && (strings.HasPrefix(trimmed, "if ") || trimmed == "try:" || strings.HasPrefix(trimmed, "try ")):
			flushModule(i - 1)
			decoStart = -1
			end, err := sc.compoundEnd(i)
			if err != nil {
				return nil, err
			}
			t := models.ChunkIfBlock
			if strings.HasPrefix(trimmed, "try") {
				t = models.ChunkTryBlock
			}
			chunks = append(chunks, newChunk(filePath, t,
				strings.Join(lines[i:end+1], "\n"), i+1, end+1))
			i = end + 1

		default:
			decoStart = -1
			end, err := sc.blockEnd(i)
			if err != nil {
				return nil, err
			}
			if modStart == -1 {
				modStart = i
			}
			modLines = append(modLines, lines[i:end+1]...)
			i = end + 1
		}
	}
	flushModule(len(lines) - 1)

	if importFirst != -1 {
		chunks = append(chunks, newChunk(filePath, models.ChunkImportBlock,
			strings.Join(importLines, "\n"), importFirst+1, importLast+1))
	}

	sort.SliceStable(chunks, func(a, b int) bool { return chunks[a].StartLine < chunks[b].StartLine })
	return chunks, nil
}

func isDefOrClass(trimmed string) bool {
	return strings.HasPrefix(trimmed, "def ") ||
		strings.HasPrefix(trimmed, "async def ") ||
		strings.HasPrefix(trimmed, "class ") ||
		strings.HasPrefix(trimmed, "class:")
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 8
		default:
			return n
		}
	}
	return 0
}

// pyScanner tracks just enough lexical state to find statement boundaries.
type pyScanner struct {
	lines []string
}

// stmtEnd returns the index of the last physical line of the logical
// statement starting at i, following open brackets, string literals and
// backslash continuations.
func (sc *pyScanner) stmtEnd(i int) (int, error) {
	depth := 0
	quote := ""
	for j := i; j < len(sc.lines); j++ {
		depth, quote = scanPyLine(sc.lines[j], depth, quote)
		if depth < 0 {
			return 0, fmt.Errorf("line %d: unbalanced closing bracket", j+1)
		}
		cont := quote != "" || depth > 0
		if !cont && !strings.HasSuffix(strings.TrimRight(sc.lines[j], " \t"), "\\") {
			return j, nil
		}
	}
	if quote != "" {
		return 0, fmt.Errorf("line %d: unterminated string literal", i+1)
	}
	if depth > 0 {
		return 0, fmt.Errorf("line %d: unterminated bracket", i+1)
	}
	return len(sc.lines) - 1, nil
}

// blockEnd returns the last line of the suite introduced at i: the header
// statement plus every following line indented under it. Trailing blank
// lines are not included.
func (sc *pyScanner) blockEnd(i int) (int, error) {
	end, err := sc.stmtEnd(i)
	if err != nil {
		return 0, err
	}
	j := end + 1
	for j < len(sc.lines) {
		t := strings.TrimSpace(sc.lines[j])
		if t == "" {
			j++
			continue
		}
		if indentOf(sc.lines[j]) == 0 {
			break
		}
		e, err := sc.stmtEnd(j)
		if err != nil {
			return 0, err
		}
		end = e
		j = e + 1
	}
	return end, nil
}

// compoundEnd extends blockEnd across continuation clauses (elif/else/
// except/finally) that sit back at column zero.
func (sc *pyScanner) compoundEnd(i int) (int, error) {
	end, err := sc.blockEnd(i)
	if err != nil {
		return 0, err
	}
	for end+1 < len(sc.lines) {
		j := end + 1
		for j < len(sc.lines) && strings.TrimSpace(sc.lines[j]) == "" {
			j++
		}
		if j >= len(sc.lines) {
			break
		}
		t := strings.TrimSpace(sc.lines[j])
		if indentOf(sc.lines[j]) != 0 || !isClauseKeyword(t) {
			break
		}
		end, err = sc.blockEnd(j)
		if err != nil {
			return 0, err
		}
	}
	return end, nil
}

func isClauseKeyword(trimmed string) bool {
	return strings.HasPrefix(trimmed, "elif ") ||
		strings.HasPrefix(trimmed, "else:") ||
		strings.HasPrefix(trimmed, "else ") ||
		strings.HasPrefix(trimmed, "except") ||
		strings.HasPrefix(trimmed, "finally")
}

// scanPyLine advances bracket depth and string state across one line.
// quote is "" outside strings, or the active delimiter (', ", ''', """).
func scanPyLine(line string, depth int, quote string) (int, string) {
	i := 0
	for i < len(line) {
		if quote != "" {
			if line[i] == '\\' && len(quote) == 1 {
				i += 2
				continue
			}
			if strings.HasPrefix(line[i:], quote) {
				i += len(quote)
				quote = ""
				continue
			}
			i++
			continue
		}
		switch c := line[i]; c {
		case '#':
			return depth, ""
		case '\'', '"':
			if strings.HasPrefix(line[i:], strings.Repeat(string(c), 3)) {
				quote = strings.Repeat(string(c), 3)
				i += 3
			} else {
				quote = string(c)
				i++
			}
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
		i++
	}
	// single-quoted strings do not span lines unless backslash-continued;
	// treat an open one as closed at end of line
	if len(quote) == 1 && !strings.HasSuffix(line, "\\") {
		quote = ""
	}
	return depth, quote
}
