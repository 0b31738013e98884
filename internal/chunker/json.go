package chunker

import (
	"encoding/json"
	"fmt"

	"github.com/seanblong/reviewbot/pkg/models"
)

// JSONSplitter cuts structured JSON: an array of objects yields one chunk
// per element, an object whose values are all objects yields one chunk per
// key, and anything else stays whole.
type JSONSplitter struct{}

func (s *JSONSplitter) Split(content, filePath string) ([]models.Chunk, error) {
	var root any
	if err := json.Unmarshal([]byte(content), &root); err != nil {
		return nil, fmt.Errorf("json parse: %w", err)
	}

	switch t := root.(type) {
	case []any:
		if len(t) > 0 && allObjects(t) {
			chunks := make([]models.Chunk, 0, len(t))
			for _, item := range t {
				chunks = append(chunks, newChunk(filePath, models.ChunkJSONArrayItem, renderJSON(item), -1, -1))
			}
			return chunks, nil
		}
	case map[string]any:
		if len(t) > 0 && allObjectValues(t) {
			keys := sortedKeys(t)
			chunks := make([]models.Chunk, 0, len(keys))
			for _, k := range keys {
				body := renderJSON(map[string]any{k: t[k]})
				chunks = append(chunks, newChunk(filePath, models.ChunkJSONNestedObj, body, -1, -1))
			}
			return chunks, nil
		}
	}
	return []models.Chunk{newChunk(filePath, models.ChunkJSONFullObj, renderJSON(root), -1, -1)}, nil
}

func allObjects(items []any) bool {
	for _, it := range items {
		if _, ok := it.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func allObjectValues(m map[string]any) bool {
	for _, v := range m {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func renderJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
