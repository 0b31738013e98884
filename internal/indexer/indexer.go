// Package indexer bulk-indexes a checked-out repository into a source
// collection. The webhook pipeline keeps that collection current
// incrementally; this is the initial backfill (and re-backfill) path.
package indexer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/reviewbot/internal/ai"
	"github.com/seanblong/reviewbot/internal/chunker"
	"github.com/seanblong/reviewbot/internal/store"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Indexer walks a repository root and upserts every eligible file's
// chunks into Collection.
type Indexer struct {
	Store      store.VectorStore
	Client     ai.Client
	RepoRoot   string
	Collection string
	Chunker    *chunker.Chunker
	Splitter   *chunker.BudgetSplitter
	Walker     FileSystemWalker
	FileReader FileReader
}

// New creates a new Indexer instance.
func New(s store.VectorStore, client ai.Client, repoRoot, collection string) *Indexer {
	return &Indexer{
		Store:      s,
		Client:     client,
		RepoRoot:   repoRoot,
		Collection: collection,
		Chunker:    chunker.New(),
		Splitter:   chunker.NewBudgetSplitter(),
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
	}
}

// workItem represents a file to be processed
type workItem struct {
	path    string
	content string
}

func (ix *Indexer) processWorkItem(ctx context.Context, item workItem) {
	relPath := rel(ix.RepoRoot, item.path)
	chunks := ix.Splitter.PostProcess(ix.Chunker.Chunk(item.content, relPath))
	for _, c := range chunks {
		vec, err := ix.Client.EmbedDocument(ctx, c.Content)
		if err != nil {
			log.Warn().Err(err).Str("path", relPath).Int("start", c.StartLine).Msg("embedding failed, chunk skipped")
			continue
		}
		if err := ix.Store.Upsert(ctx, ix.Collection, c, vec); err != nil {
			log.Error().Err(err).Str("path", relPath).Msg("upsert failed")
		}
	}
	log.Info().Str("path", relPath).Int("chunks", len(chunks)).Msg("indexed file")
}

// Run walks the repository and indexes files concurrently.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.Store.EnsureCollection(ctx, ix.Collection, ix.Client.Dim()); err != nil {
		return err
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > 8 {
		numWorkers = 8 // avoid overwhelming the embedding API
	}
	log.Info().Int("workers", numWorkers).Str("collection", ix.Collection).Msg("starting concurrent indexing")

	workChan := make(chan workItem, numWorkers*2)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug().Int("worker", workerID).Msg("worker started")
			for item := range workChan {
				ix.processWorkItem(ctx, item)
			}
			log.Debug().Int("worker", workerID).Msg("worker finished")
		}(i)
	}

	walkErr := ix.Walker.Walk(ix.RepoRoot, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			if shouldSkip(path) {
				return nil
			}

			b, err := ix.FileReader.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file")
				return nil
			}
			if !utf8.Valid(b) {
				return nil
			}

			select {
			case workChan <- workItem{path: path, content: string(b)}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})

	close(workChan)
	wg.Wait()
	return walkErr
}

// shouldSkip returns true if the file at path should be skipped.
func shouldSkip(path string) bool {
	p := strings.ToLower(path)
	if strings.Contains(p, "/vendor/") ||
		strings.Contains(p, "/.git/") ||
		strings.Contains(p, "/.terraform/") ||
		strings.Contains(p, "/node_modules/") ||
		strings.Contains(p, "/target/") ||
		strings.Contains(p, "/build/") ||
		strings.Contains(p, "/dist/") ||
		strings.Contains(p, "/out/") ||
		strings.Contains(p, "/bin/") ||
		strings.Contains(p, "/obj/") ||
		strings.Contains(p, "/.venv/") ||
		strings.Contains(p, "/venv/") ||
		strings.Contains(p, "/__pycache__/") ||
		strings.Contains(p, "/.pytest_cache/") ||
		strings.Contains(p, "/.gradle/") ||
		strings.Contains(p, "/.m2/") ||
		strings.Contains(p, "/.idea/") ||
		strings.Contains(p, "/coverage/") ||
		strings.Contains(p, "/.cache/") {
		return true
	}
	switch filepath.Base(p) {
	case "package-lock.json", "yarn.lock", "pnpm-lock.yaml", "cargo.lock", "go.sum", "poetry.lock":
		return true
	}
	switch filepath.Ext(p) {
	case ".png", ".jpg", ".jpeg", ".gif", ".pdf", ".webp", ".lock", ".zip", ".svg", ".exe", ".dll", ".sum", ".mod",
		".min.js", ".map", ".pyc", ".so", ".woff", ".woff2", ".ttf", ".eot", ".ico", ".gz", ".tar", ".jar":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}
