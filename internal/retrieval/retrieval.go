// Package retrieval names collections and merges repository-wide context
// with pull-request-local context into one deduplicated set.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/seanblong/reviewbot/internal/store"
	"github.com/seanblong/reviewbot/pkg/models"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Sanitize maps arbitrary repo/branch names into the collection-name
// alphabet.
func Sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "-")
}

// SourceCollectionName is the long-lived per-repository collection name.
func SourceCollectionName(repoFullName string, repoID int64) string {
	return fmt.Sprintf("aibot-%s-%d", Sanitize(repoFullName), repoID)
}

// TempCollectionName is the per-pull-request collection name.
func TempCollectionName(headBranch string, prNumber int) string {
	return fmt.Sprintf("temp_%s_%d", Sanitize(headBranch), prNumber)
}

// Merger reconciles the persistent source index with the ephemeral PR
// index.
type Merger struct {
	Store store.VectorStore
}

func NewMerger(s store.VectorStore) *Merger {
	return &Merger{Store: s}
}

// Merge queries both collections for the top k each and unions them with
// local-truth precedence: temp hits are added unconditionally (their paths
// rewritten through the rename mapping), then source hits are added only
// for paths no temp hit already covers. This is a precedence rule, not a
// re-ranking: the result holds between k and 2k chunks. A missing
// collection contributes nothing rather than failing the merge.
func (m *Merger) Merge(ctx context.Context, sourceCollection, tempCollection string, queryVec []float32, k int, renameMapping map[string]string) (models.RetrievalResult, error) {
	var res models.RetrievalResult
	covered := map[string]bool{}

	tempHits, err := m.query(ctx, tempCollection, queryVec, k)
	if err != nil {
		return res, err
	}
	for _, hit := range tempHits {
		hit.Chunk.FilePath = rewrite(hit.Chunk.FilePath, renameMapping)
		covered[hit.Chunk.FilePath] = true
		res.Chunks = append(res.Chunks, hit)
	}

	sourceHits, err := m.query(ctx, sourceCollection, queryVec, k)
	if err != nil {
		return res, err
	}
	for _, hit := range sourceHits {
		effective := rewrite(hit.Chunk.FilePath, renameMapping)
		if covered[effective] {
			continue
		}
		hit.Chunk.FilePath = effective
		res.Chunks = append(res.Chunks, hit)
	}
	return res, nil
}

func (m *Merger) query(ctx context.Context, collection string, vec []float32, k int) ([]models.ScoredChunk, error) {
	if collection == "" {
		return nil, nil
	}
	hits, err := m.Store.Query(ctx, collection, vec, k)
	if errors.Is(err, store.ErrCollectionNotFound) {
		return nil, nil
	}
	return hits, err
}

func rewrite(path string, renameMapping map[string]string) string {
	if to, ok := renameMapping[path]; ok {
		return to
	}
	return path
}
