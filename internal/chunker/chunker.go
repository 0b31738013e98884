package chunker

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reviewbot/pkg/models"
)

// Strategy splits one file's content into chunks. A strategy that cannot
// make sense of the content returns an error; the dispatcher falls back to
// the generic text splitter instead of failing the file.
type Strategy interface {
	Split(content, filePath string) ([]models.Chunk, error)
}

// Matcher decides whether a strategy applies to a file path.
type Matcher func(filePath string) bool

type route struct {
	match    Matcher
	strategy Strategy
}

// Chunker dispatches files to format-specific strategies. Routes are
// evaluated in order, so exact-filename routes must be registered before
// extension routes. Unmatched files use the fallback text splitter.
type Chunker struct {
	routes   []route
	fallback Strategy
}

// New returns a Chunker with the default routing table.
func New() *Chunker {
	fallback := NewTextSplitter(DefaultTextChunkSize, DefaultTextOverlap)
	c := &Chunker{fallback: fallback}

	// Exact filenames first: Django settings get the if/try-aware variant,
	// urls.py is dense single-purpose routing and gets a tighter window.
	c.Register(FileNameIs("settings.py"), &PythonSplitter{Settings: true})
	c.Register(FileNameIs("urls.py"), NewTextSplitter(RoutingTextChunkSize, RoutingTextOverlap))

	c.Register(ExtensionIs(".py"), &PythonSplitter{})
	c.Register(ExtensionIs(".yaml", ".yml"), &YAMLSplitter{})
	c.Register(ExtensionIs(".json"), &JSONSplitter{})
	c.Register(ExtensionIs(".md", ".markdown"), &MarkdownSplitter{})
	return c
}

// Register appends a (matcher, strategy) route. Later routes only see files
// no earlier route claimed.
func (c *Chunker) Register(m Matcher, s Strategy) {
	c.routes = append(c.routes, route{match: m, strategy: s})
}

// Chunk splits content using the first matching strategy. Strategy errors
// degrade to the generic text splitter; they never fail the file.
func (c *Chunker) Chunk(content, filePath string) []models.Chunk {
	for _, r := range c.routes {
		if !r.match(filePath) {
			continue
		}
		chunks, err := r.strategy.Split(content, filePath)
		if err != nil {
			log.Warn().Err(err).Str("path", filePath).Msg("strategy failed, falling back to text splitting")
			break
		}
		return chunks
	}
	chunks, _ := c.fallback.Split(content, filePath)
	return chunks
}

// FileNameIs matches on the path's base name.
func FileNameIs(names ...string) Matcher {
	return func(filePath string) bool {
		base := filepath.Base(filePath)
		for _, n := range names {
			if base == n {
				return true
			}
		}
		return false
	}
}

// ExtensionIs matches on the path's extension, case-insensitively.
func ExtensionIs(exts ...string) Matcher {
	return func(filePath string) bool {
		ext := strings.ToLower(filepath.Ext(filePath))
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}

// newChunk fills in the file-derived fields shared by every strategy.
func newChunk(filePath string, t models.ChunkType, content string, start, end int) models.Chunk {
	return models.Chunk{
		FileName:      filepath.Base(filePath),
		FilePath:      filePath,
		FileExtension: strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), "."),
		Type:          t,
		Content:       content,
		StartLine:     start,
		EndLine:       end,
		PartIndex:     1,
		PartTotal:     1,
	}
}
