package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog"
	"github.com/seanblong/reviewbot/internal/ai"
	"github.com/seanblong/reviewbot/internal/chunker"
	"github.com/seanblong/reviewbot/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockWalker feeds a fixed path list through the walk callback
type MockWalker struct {
	paths []string
}

func (m *MockWalker) Walk(root string, options *godirwalk.Options) error {
	for _, p := range m.paths {
		if err := options.Callback(p, nil); err != nil {
			return err
		}
	}
	return nil
}

// MockReader serves file contents from a map
type MockReader struct {
	files map[string]string
}

func (m *MockReader) ReadFile(filename string) ([]byte, error) {
	return []byte(m.files[filename]), nil
}

// MockStore records upserts
type MockStore struct {
	mu       sync.Mutex
	ensured  []string
	upserted map[string][]models.Chunk
}

func (m *MockStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured = append(m.ensured, name)
	return nil
}

func (m *MockStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (m *MockStore) Upsert(ctx context.Context, collection string, c models.Chunk, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upserted == nil {
		m.upserted = map[string][]models.Chunk{}
	}
	m.upserted[collection] = append(m.upserted[collection], c)
	return nil
}

func (m *MockStore) Query(ctx context.Context, collection string, vec []float32, k int) ([]models.ScoredChunk, error) {
	return nil, nil
}

func (m *MockStore) RenameViaAlias(ctx context.Context, oldName, newName string) error {
	return nil
}

func (m *MockStore) DeleteCollection(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (m *MockStore) DeletePointsByPath(ctx context.Context, collection, filePath string) error {
	return nil
}

func (m *MockStore) ListCollections(ctx context.Context, prefix string, olderThan time.Duration) ([]string, error) {
	return nil, nil
}

func TestIndexerRun(t *testing.T) {
	files := map[string]string{
		"/repo/app.py":       "def main():\n    pass\n",
		"/repo/README.md":    "# Demo\nA demo project.\n",
		"/repo/img/logo.png": "binary",
	}

	st := &MockStore{}
	ix := &Indexer{
		Store:      st,
		Client:     ai.NewStubClient(8),
		RepoRoot:   "/repo",
		Collection: "aibot-acme-demo-1",
		Chunker:    chunker.New(),
		Splitter:   chunker.NewBudgetSplitter(),
		Walker:     &MockWalker{paths: []string{"/repo/app.py", "/repo/README.md", "/repo/img/logo.png"}},
		FileReader: &MockReader{files: files},
	}

	if err := ix.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(st.ensured) != 1 || st.ensured[0] != "aibot-acme-demo-1" {
		t.Errorf("ensured = %v", st.ensured)
	}

	chunks := st.upserted["aibot-acme-demo-1"]
	if len(chunks) < 2 {
		t.Fatalf("upserted %d chunks, want >= 2", len(chunks))
	}

	paths := map[string]bool{}
	for _, c := range chunks {
		paths[c.FilePath] = true
	}
	if !paths["app.py"] || !paths["README.md"] {
		t.Errorf("indexed paths = %v, want repo-relative app.py and README.md", paths)
	}
	if paths["img/logo.png"] {
		t.Error("skip-listed file was indexed")
	}
}

func TestIndexerNewDefaults(t *testing.T) {
	ix := New(&MockStore{}, ai.NewStubClient(8), "/repo", "col")
	if ix.Chunker == nil || ix.Splitter == nil || ix.Walker == nil || ix.FileReader == nil {
		t.Error("New() left collaborators nil")
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/repo/src/app.py", false},
		{"/repo/node_modules/x/index.js", true},
		{"/repo/.git/HEAD", true},
		{"/repo/img/logo.png", true},
		{"/repo/package-lock.json", true},
		{"/repo/go.sum", true},
		{"/repo/main.go", false},
		{"/repo/__pycache__/x.pyc", true},
		{"/repo/docs/readme.md", false},
	}
	for _, tt := range tests {
		if got := shouldSkip(tt.path); got != tt.want {
			t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
