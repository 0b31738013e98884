package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seanblong/reviewbot/pkg/models"
	"gopkg.in/yaml.v3"
)

// YAMLSplitter flattens a YAML document into dotted-key "a.b.c: value"
// lines and groups them by top-level key: scalar depth-1 lines form one
// chunk, and each top-level key with nested values becomes its own chunk
// prefixed with the source path for context. Documents that fail to parse
// return an error for text-splitter fallback.
type YAMLSplitter struct{}

func (s *YAMLSplitter) Split(content, filePath string) ([]models.Chunk, error) {
	var doc any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("yaml parse: %w", err)
	}

	root, ok := doc.(map[string]any)
	if !ok {
		// sequences and bare scalars have no key structure to group by
		return []models.Chunk{newChunk(filePath, models.ChunkYAMLGroup, strings.TrimSpace(content), -1, -1)}, nil
	}

	var scalarLines []string
	nested := map[string][]string{}
	for _, key := range sortedKeys(root) {
		lines := flattenYAML(key, root[key])
		if len(lines) == 1 && !strings.Contains(lines[0], ".") {
			scalarLines = append(scalarLines, lines[0])
			continue
		}
		nested[key] = lines
	}

	var chunks []models.Chunk
	if len(scalarLines) > 0 {
		chunks = append(chunks, newChunk(filePath, models.ChunkYAMLGroup,
			strings.Join(scalarLines, "\n"), -1, -1))
	}
	for _, key := range sortedKeysOf(nested) {
		body := filePath + ":\n" + strings.Join(nested[key], "\n")
		chunks = append(chunks, newChunk(filePath, models.ChunkYAMLGroup, body, -1, -1))
	}
	return chunks, nil
}

// flattenYAML renders a value under prefix as dotted "key: value" lines.
func flattenYAML(prefix string, v any) []string {
	switch t := v.(type) {
	case map[string]any:
		var out []string
		for _, k := range sortedKeys(t) {
			out = append(out, flattenYAML(prefix+"."+k, t[k])...)
		}
		if len(out) == 0 {
			return []string{fmt.Sprintf("%s: {}", prefix)}
		}
		return out
	case []any:
		var out []string
		for i, item := range t {
			out = append(out, flattenYAML(fmt.Sprintf("%s.%d", prefix, i), item)...)
		}
		if len(out) == 0 {
			return []string{fmt.Sprintf("%s: []", prefix)}
		}
		return out
	default:
		return []string{fmt.Sprintf("%s: %v", prefix, t)}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysOf(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
