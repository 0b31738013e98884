package chunker

import (
	"strings"
	"testing"

	"github.com/seanblong/reviewbot/pkg/models"
)

const pySample = `import os
from typing import (
    Any,
    Optional,
)

CONSTANT = 42
OTHER = "x"

@decorator
def handler(request):
    data = request.body
    return data


class Widget:
    """A widget."""

    def __init__(self, name):
        self.name = name

    def render(self):
        return self.name


async def fetch(url):
    return await get(url)
`

func chunkTypes(chunks []models.Chunk) []models.ChunkType {
	out := make([]models.ChunkType, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}

func findType(chunks []models.Chunk, t models.ChunkType) []models.Chunk {
	var out []models.Chunk
	for _, c := range chunks {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func TestPythonSplitterTopLevelDefinitions(t *testing.T) {
	s := &PythonSplitter{}
	chunks, err := s.Split(pySample, "app/views.py")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	funcs := findType(chunks, models.ChunkFunction)
	if len(funcs) != 2 {
		t.Fatalf("functions = %d, want 2; types: %v", len(funcs), chunkTypes(chunks))
	}

	// decorator included, correct line span
	h := funcs[0]
	if !strings.HasPrefix(h.Content, "@decorator\ndef handler") {
		t.Errorf("handler chunk content starts %q", h.Content[:30])
	}
	if h.StartLine != 10 || h.EndLine != 13 {
		t.Errorf("handler span = %d:%d, want 10:13", h.StartLine, h.EndLine)
	}

	classes := findType(chunks, models.ChunkClass)
	if len(classes) != 1 {
		t.Fatalf("classes = %d, want 1", len(classes))
	}
	cl := classes[0]
	if !strings.Contains(cl.Content, "def render(self):") {
		t.Errorf("class chunk missing method body: %q", cl.Content)
	}
	if cl.StartLine != 16 {
		t.Errorf("class start = %d, want 16", cl.StartLine)
	}

	imports := findType(chunks, models.ChunkImportBlock)
	if len(imports) != 1 {
		t.Fatalf("import blocks = %d, want 1", len(imports))
	}
	if !strings.Contains(imports[0].Content, "import os") ||
		!strings.Contains(imports[0].Content, "Optional,") {
		t.Errorf("import chunk = %q", imports[0].Content)
	}

	mods := findType(chunks, models.ChunkModuleLevelCode)
	if len(mods) != 1 {
		t.Fatalf("module-level blocks = %d, want 1; types: %v", len(mods), chunkTypes(chunks))
	}
	if !strings.Contains(mods[0].Content, "CONSTANT = 42") ||
		!strings.Contains(mods[0].Content, `OTHER = "x"`) {
		t.Errorf("module chunk = %q", mods[0].Content)
	}

	// chunks come back ordered by start line
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartLine < chunks[i-1].StartLine {
			t.Errorf("chunks out of order at %d: %v", i, chunkTypes(chunks))
		}
	}
}

func TestPythonSplitterSettingsMode(t *testing.T) {
	content := `import os

DEBUG = False

if os.environ.get("CI"):
    DEBUG = True
else:
    DEBUG = False

try:
    from .local import *
except ImportError:
    pass
`
	s := &PythonSplitter{Settings: true}
	chunks, err := s.Split(content, "project/settings.py")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	ifs := findType(chunks, models.ChunkIfBlock)
	if len(ifs) != 1 {
		t.Fatalf("if blocks = %d, want 1; types: %v", len(ifs), chunkTypes(chunks))
	}
	if !strings.Contains(ifs[0].Content, "else:") {
		t.Errorf("if block truncated before else clause: %q", ifs[0].Content)
	}

	tries := findType(chunks, models.ChunkTryBlock)
	if len(tries) != 1 {
		t.Fatalf("try blocks = %d, want 1", len(tries))
	}
	if !strings.Contains(tries[0].Content, "except ImportError:") {
		t.Errorf("try block truncated before except clause: %q", tries[0].Content)
	}
}

func TestPythonSplitterSettingsModeOffKeepsIfInModuleCode(t *testing.T) {
	content := `x = 1
if x:
    y = 2
`
	s := &PythonSplitter{}
	chunks, err := s.Split(content, "app.py")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(findType(chunks, models.ChunkIfBlock)) != 0 {
		t.Error("if block emitted without Settings mode")
	}
}

func TestPythonSplitterErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"top-level indentation", "    x = 1\n"},
		{"unterminated bracket", "x = [1, 2,\n"},
		{"unterminated triple quote", "s = \"\"\"abc\n"},
	}
	s := &PythonSplitter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Split(tt.content, "bad.py"); err == nil {
				t.Error("Split() expected error")
			}
		})
	}
}

func TestPythonSplitterMultilineStatements(t *testing.T) {
	content := `ROUTES = {
    "a": 1,
    "b": 2,
}

s = "it's fine # not a comment"  # real comment
`
	s := &PythonSplitter{}
	chunks, err := s.Split(content, "conf.py")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	mods := findType(chunks, models.ChunkModuleLevelCode)
	if len(mods) != 2 {
		t.Fatalf("module blocks = %d, want 2; types: %v", len(mods), chunkTypes(chunks))
	}
	if mods[0].StartLine != 1 || mods[0].EndLine != 4 {
		t.Errorf("dict span = %d:%d, want 1:4", mods[0].StartLine, mods[0].EndLine)
	}
}

func TestChunkerRoutesAndFallback(t *testing.T) {
	c := New()

	// python syntax errors degrade to text splitting
	chunks := c.Chunk("    broken indent\n", "bad.py")
	if len(chunks) != 1 || chunks[0].Type != models.ChunkTextParagraph {
		t.Errorf("fallback chunks = %v", chunkTypes(chunks))
	}

	// unmatched extensions go straight to the text splitter
	chunks = c.Chunk("some prose here", "notes.txt")
	if len(chunks) != 1 || chunks[0].Type != models.ChunkTextParagraph {
		t.Errorf("txt chunks = %v", chunkTypes(chunks))
	}

	// settings.py routes to the settings-aware python splitter
	chunks = c.Chunk("if True:\n    x = 1\n", "proj/settings.py")
	if len(findType(chunks, models.ChunkIfBlock)) != 1 {
		t.Errorf("settings.py not routed to settings splitter: %v", chunkTypes(chunks))
	}

	// urls.py routes to the text splitter even though it is .py
	chunks = c.Chunk("urlpatterns = [\n    path('a/'),\n]\n", "proj/urls.py")
	for _, ch := range chunks {
		if ch.Type != models.ChunkTextParagraph {
			t.Errorf("urls.py chunk type = %v, want text", ch.Type)
		}
	}
}
