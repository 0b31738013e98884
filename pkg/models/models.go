package models

// ChunkType classifies the semantic scope a chunk was cut from.
type ChunkType string

const (
	ChunkFunction        ChunkType = "function"
	ChunkClass           ChunkType = "class"
	ChunkImportBlock     ChunkType = "import_block"
	ChunkModuleLevelCode ChunkType = "module_level_code"
	ChunkIfBlock         ChunkType = "if_block"
	ChunkTryBlock        ChunkType = "try_block"
	ChunkMarkdownSection ChunkType = "markdown_section"
	ChunkYAMLGroup       ChunkType = "yaml_group"
	ChunkJSONArrayItem   ChunkType = "json_array_item"
	ChunkJSONNestedObj   ChunkType = "json_nested_object"
	ChunkJSONFullObj     ChunkType = "json_full_object"
	ChunkTextParagraph   ChunkType = "text_paragraph"
)

// Chunk is a contiguous, typed slice of a source file. Line numbers are
// 1-based; both are -1 when the slice has no stable line anchor (text
// splitter output).
type Chunk struct {
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	FileExtension string    `json:"file_extension"`
	Type          ChunkType `json:"chunk_type"`
	Content       string    `json:"content"`
	StartLine     int       `json:"start_line"`
	EndLine       int       `json:"end_line"`
	PartIndex     int       `json:"part_index"`
	PartTotal     int       `json:"part_total"`
}

// DiffStatus describes how a file changed within a diff.
type DiffStatus string

const (
	DiffAdded    DiffStatus = "added"
	DiffRemoved  DiffStatus = "removed"
	DiffRenamed  DiffStatus = "renamed"
	DiffModified DiffStatus = "modified"
	DiffBinary   DiffStatus = "binary"
)

// Hunk is one @@-delimited region of a file's diff, with context and
// +/- markers preserved in Body.
type Hunk struct {
	SourceStart int    `json:"source_start"`
	TargetStart int    `json:"target_start"`
	Body        string `json:"body"`
}

// DiffFile is one file's change within a parsed unified diff.
type DiffFile struct {
	SourcePath string     `json:"source_path"`
	TargetPath string     `json:"target_path"`
	Status     DiffStatus `json:"status"`
	Hunks      []Hunk     `json:"hunks"`
}

// ScoredChunk is a chunk payload returned from a similarity query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is the merged context set handed to the review prompt:
// deduplicated by effective (post-rename) file path, PR-local hits first.
type RetrievalResult struct {
	Chunks []ScoredChunk `json:"chunks"`
}
