// Package store owns vector-collection lifecycle on Postgres/pgvector.
// Each collection is a physical points table registered under a logical
// name in a registry table; renames swap the logical name only, so readers
// keep an uninterrupted view and no data is copied.
package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/reviewbot/pkg/models"
)

// ErrCollectionNotFound is returned for operations that require the named
// collection to exist.
var ErrCollectionNotFound = errors.New("collection not found")

// collection names are the only identifier callers control; anything
// outside this alphabet is rejected before it reaches SQL.
var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Store provides collection lifecycle and point operations.
type Store struct {
	pool *pgxpool.Pool
}

// VectorStore defines the methods that the Store must implement.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	Upsert(ctx context.Context, collection string, c models.Chunk, embedding []float32) error
	Query(ctx context.Context, collection string, vec []float32, k int) ([]models.ScoredChunk, error)
	RenameViaAlias(ctx context.Context, oldName, newName string) error
	DeleteCollection(ctx context.Context, name string) (bool, error)
	DeletePointsByPath(ctx context.Context, collection, filePath string) error
	ListCollections(ctx context.Context, prefix string, olderThan time.Duration) ([]string, error)
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Migrate sets up the vector extension and the collection registry.
func (s *Store) Migrate(ctx context.Context) error {
	const q = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS collections (
  name       TEXT PRIMARY KEY,
  tbl        TEXT NOT NULL UNIQUE,
  dim        INT  NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
);
`
	_, err := s.pool.Exec(ctx, q)
	return err
}

// PointID derives the stable identifier for a chunk's point. Line-addressed
// chunks key on (path, start, end) so re-indexing an unchanged span
// overwrites in place; chunks without line provenance key on their content
// hash instead, which is equally stable across re-runs.
func PointID(filePath string, startLine, endLine int, content string) string {
	var h [20]byte
	if startLine >= 0 {
		h = sha1.Sum([]byte(fmt.Sprintf("%s#%d:%d", filePath, startLine, endLine)))
	} else {
		c := sha1.Sum([]byte(content))
		h = sha1.Sum([]byte(filePath + "#x:" + hex.EncodeToString(c[:])))
	}
	return hex.EncodeToString(h[:])
}

// tableFor is the physical table name for a collection. Derived from the
// name at creation time and never changed afterwards, so renames are
// registry-only.
func tableFor(name string) string {
	h := sha1.Sum([]byte(name))
	return "points_" + hex.EncodeToString(h[:6])
}

// resolve maps a logical collection name to its physical table.
func (s *Store) resolve(ctx context.Context, name string) (string, error) {
	var tbl string
	err := s.pool.QueryRow(ctx, `SELECT tbl FROM collections WHERE name = $1`, name).Scan(&tbl)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCollectionNotFound
	}
	if err != nil {
		return "", err
	}
	return tbl, nil
}

// EnsureCollection creates the collection if it does not exist; calling it
// for an existing collection is a no-op.
func (s *Store) EnsureCollection(ctx context.Context, name string, dim int) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	if _, err := s.resolve(ctx, name); err == nil {
		return nil
	} else if !errors.Is(err, ErrCollectionNotFound) {
		return err
	}

	tbl := tableFor(name)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO collections (name, tbl, dim) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		name, tbl, dim); err != nil {
		return err
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  id             TEXT PRIMARY KEY,
  file_name      TEXT,
  file_path      TEXT NOT NULL,
  file_extension TEXT,
  chunk_type     TEXT,
  content        TEXT NOT NULL,
  start_line     INT,
  end_line       INT,
  part_index     INT,
  part_total     INT,
  embedding      vector(%[2]d),
  created_at     TIMESTAMP WITH TIME ZONE DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[1]s_path_idx ON %[1]s (file_path);
CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx
  ON %[1]s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`, tbl, dim)
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CollectionExists reports whether a collection is registered.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.resolve(ctx, name)
	if errors.Is(err, ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upsert writes one point keyed by its deterministic id, overwriting any
// prior point with the same id.
func (s *Store) Upsert(ctx context.Context, collection string, c models.Chunk, embedding []float32) error {
	tbl, err := s.resolve(ctx, collection)
	if err != nil {
		return err
	}
	id := PointID(c.FilePath, c.StartLine, c.EndLine, c.Content)
	q := fmt.Sprintf(`
INSERT INTO %s (
  id, file_name, file_path, file_extension, chunk_type, content,
  start_line, end_line, part_index, part_total, embedding, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now())
ON CONFLICT (id) DO UPDATE SET
  file_name      = EXCLUDED.file_name,
  file_extension = EXCLUDED.file_extension,
  chunk_type     = EXCLUDED.chunk_type,
  content        = EXCLUDED.content,
  part_index     = EXCLUDED.part_index,
  part_total     = EXCLUDED.part_total,
  embedding      = EXCLUDED.embedding;`, tbl)

	_, err = s.pool.Exec(ctx, q,
		id, c.FileName, c.FilePath, c.FileExtension, string(c.Type), c.Content,
		c.StartLine, c.EndLine, c.PartIndex, c.PartTotal, pgvector.NewVector(embedding),
	)
	return err
}

// Query returns up to k nearest points by cosine similarity.
func (s *Store) Query(ctx context.Context, collection string, vec []float32, k int) ([]models.ScoredChunk, error) {
	tbl, err := s.resolve(ctx, collection)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
SELECT file_name, file_path, file_extension, chunk_type, content,
       start_line, end_line, part_index, part_total,
       1 - (embedding <=> $1) AS score
FROM %s
WHERE embedding IS NOT NULL
ORDER BY embedding <=> $1
LIMIT %d;`, tbl, k)

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var c models.Chunk
		var t string
		var score float64
		if err := rows.Scan(
			&c.FileName, &c.FilePath, &c.FileExtension, &t, &c.Content,
			&c.StartLine, &c.EndLine, &c.PartIndex, &c.PartTotal, &score,
		); err != nil {
			return nil, err
		}
		c.Type = models.ChunkType(t)
		out = append(out, models.ScoredChunk{Chunk: c, Score: score})
	}
	return out, rows.Err()
}

// RenameViaAlias atomically re-points the logical name at the same physical
// table. Fails with ErrCollectionNotFound when oldName does not exist.
func (s *Store) RenameViaAlias(ctx context.Context, oldName, newName string) error {
	if !validName.MatchString(newName) {
		return fmt.Errorf("invalid collection name %q", newName)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE collections SET name = $2 WHERE name = $1`, oldName, newName)
	if err != nil {
		return fmt.Errorf("rename %s -> %s: %w", oldName, newName, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rename %s: %w", oldName, ErrCollectionNotFound)
	}
	return nil
}

// DeleteCollection drops the collection. Returns false without error when
// the collection is already absent.
func (s *Store) DeleteCollection(ctx context.Context, name string) (bool, error) {
	tbl, err := s.resolve(ctx, name)
	if errors.Is(err, ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM collections WHERE name = $1`, name); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tbl)); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// DeletePointsByPath purges every point for one file path; called for the
// old path on renames and for removed files before re-indexing.
func (s *Store) DeletePointsByPath(ctx context.Context, collection, filePath string) error {
	tbl, err := s.resolve(ctx, collection)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE file_path = $1`, tbl), filePath)
	return err
}

// ListCollections returns collection names with the given prefix created
// more than olderThan ago; the janitor uses it to find stale temp
// collections.
func (s *Store) ListCollections(ctx context.Context, prefix string, olderThan time.Duration) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM collections WHERE name LIKE $1 || '%' AND created_at < now() - $2::interval ORDER BY name`,
		prefix, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
