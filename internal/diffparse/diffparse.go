// Package diffparse turns unified-diff text into per-file change records
// and a processed, section-labeled rendering for the review prompt.
package diffparse

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reviewbot/pkg/models"
)

// Result is a fully parsed diff.
type Result struct {
	Files []models.DiffFile
	// RenameMapping maps old path -> new path for every renamed file, so
	// retrieval can treat stale index entries under the old path as the new
	// one.
	RenameMapping map[string]string
	// Processed is the human/LLM-readable recombination of the diff, with
	// per-file sections labeled New / Removed / Renamed / Modified.
	Processed string
}

// skipNames are exact filenames that never contain reviewable content.
var skipNames = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"Cargo.lock":        true,
	"poetry.lock":       true,
	"Pipfile.lock":      true,
	"composer.lock":     true,
	"Gemfile.lock":      true,
	"go.sum":            true,
}

// skipExts are generated, minified or binary artifact extensions.
var skipExts = map[string]bool{
	".min.js": true, ".min.css": true, ".map": true, ".pyc": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".ico": true, ".svg": true, ".pdf": true, ".zip": true, ".gz": true,
	".tar": true, ".jar": true, ".exe": true, ".dll": true, ".so": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// Parse splits unified-diff text into DiffFile records, building the rename
// mapping and the processed rendering. A file whose hunks cannot be parsed
// is skipped with a warning rather than failing the whole diff.
func Parse(diffText string) *Result {
	res := &Result{RenameMapping: map[string]string{}}
	var sections []string

	for _, raw := range splitFileSections(diffText) {
		df, err := parseFileSection(raw)
		if err != nil {
			log.Warn().Err(err).Msg("skipping unparseable diff section")
			continue
		}
		if df == nil {
			continue
		}
		if df.Status == models.DiffRenamed || df.SourcePath != df.TargetPath {
			if df.SourcePath != "" && df.TargetPath != "" && df.SourcePath != df.TargetPath {
				res.RenameMapping[df.SourcePath] = df.TargetPath
			}
		}
		if shouldSkip(*df) {
			continue
		}
		res.Files = append(res.Files, *df)
		if s := renderSection(*df); s != "" {
			sections = append(sections, s)
		}
	}
	res.Processed = strings.Join(sections, "\n\n")
	return res
}

// shouldSkip reports whether a file's change carries no reviewable content.
func shouldSkip(df models.DiffFile) bool {
	if df.Status == models.DiffBinary {
		return true
	}
	path := df.TargetPath
	if path == "" || path == "/dev/null" {
		path = df.SourcePath
	}
	base := filepath.Base(path)
	if skipNames[base] {
		return true
	}
	lower := strings.ToLower(base)
	for ext := range skipExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// splitFileSections cuts the diff at "diff --git" boundaries.
func splitFileSections(diffText string) []string {
	var sections []string
	var cur []string
	for _, line := range strings.Split(diffText, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			if len(cur) > 0 {
				sections = append(sections, strings.Join(cur, "\n"))
			}
			cur = cur[:0]
		}
		if len(cur) > 0 || strings.HasPrefix(line, "diff --git ") {
			cur = append(cur, line)
		}
	}
	if len(cur) > 0 {
		sections = append(sections, strings.Join(cur, "\n"))
	}
	return sections
}

func parseFileSection(section string) (*models.DiffFile, error) {
	lines := strings.Split(section, "\n")
	df := &models.DiffFile{Status: models.DiffModified}

	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "diff --git "):
			src, dst := parseGitHeader(line)
			df.SourcePath, df.TargetPath = src, dst
		case strings.HasPrefix(line, "new file mode"):
			df.Status = models.DiffAdded
		case strings.HasPrefix(line, "deleted file mode"):
			df.Status = models.DiffRemoved
		case strings.HasPrefix(line, "rename from "):
			df.Status = models.DiffRenamed
			df.SourcePath = strings.TrimPrefix(line, "rename from ")
		case strings.HasPrefix(line, "rename to "):
			df.Status = models.DiffRenamed
			df.TargetPath = strings.TrimPrefix(line, "rename to ")
		case strings.HasPrefix(line, "Binary files ") || strings.HasPrefix(line, "GIT binary patch"):
			df.Status = models.DiffBinary
			return df, nil
		case strings.HasPrefix(line, "--- "):
			if p := stripPrefixPath(line[4:], "a/"); p != "" && df.Status != models.DiffRenamed {
				df.SourcePath = p
			}
		case strings.HasPrefix(line, "+++ "):
			if p := stripPrefixPath(line[4:], "b/"); p != "" && df.Status != models.DiffRenamed {
				df.TargetPath = p
			}
		}
		if strings.HasPrefix(line, "@@") {
			break
		}
	}

	if df.SourcePath == "" && df.TargetPath == "" {
		return nil, fmt.Errorf("diff section has no file paths")
	}

	// remaining lines are hunks
	for i < len(lines) {
		if !strings.HasPrefix(lines[i], "@@") {
			i++
			continue
		}
		m := hunkHeaderRe.FindStringSubmatch(lines[i])
		if m == nil {
			return nil, fmt.Errorf("malformed hunk header %q", lines[i])
		}
		srcStart, _ := strconv.Atoi(m[1])
		dstStart, _ := strconv.Atoi(m[2])
		var body []string
		body = append(body, lines[i])
		i++
		for i < len(lines) && !strings.HasPrefix(lines[i], "@@") {
			body = append(body, lines[i])
			i++
		}
		df.Hunks = append(df.Hunks, models.Hunk{
			SourceStart: srcStart,
			TargetStart: dstStart,
			Body:        strings.Join(body, "\n"),
		})
	}
	return df, nil
}

// parseGitHeader extracts paths from a "diff --git a/X b/Y" line. Paths with
// spaces are ambiguous in this header; the ---/+++/rename lines override.
func parseGitHeader(line string) (src, dst string) {
	rest := strings.TrimPrefix(line, "diff --git ")
	parts := strings.SplitN(rest, " b/", 2)
	if len(parts) == 2 {
		return strings.TrimPrefix(parts[0], "a/"), parts[1]
	}
	return "", ""
}

func stripPrefixPath(p, prefix string) string {
	p = strings.TrimSpace(p)
	if p == "/dev/null" {
		return ""
	}
	return strings.TrimPrefix(p, prefix)
}

// renderSection produces one labeled block of the processed diff. Added and
// removed files show only their own lines; renames without hunks show just
// the label; everything else keeps the full hunk text so the reader sees
// the change shape.
func renderSection(df models.DiffFile) string {
	var b strings.Builder
	switch {
	case df.Status == models.DiffAdded:
		fmt.Fprintf(&b, "New: %s\n", df.TargetPath)
		writeMarkedLines(&b, df.Hunks, "+")
	case df.Status == models.DiffRemoved:
		fmt.Fprintf(&b, "Removed: %s\n", df.SourcePath)
		writeMarkedLines(&b, df.Hunks, "-")
	case df.Status == models.DiffRenamed && len(df.Hunks) == 0:
		fmt.Fprintf(&b, "Renamed: %s -> %s", df.SourcePath, df.TargetPath)
	case df.Status == models.DiffRenamed:
		fmt.Fprintf(&b, "Renamed and Modified: %s -> %s\n", df.SourcePath, df.TargetPath)
		writeHunks(&b, df.Hunks)
	default:
		fmt.Fprintf(&b, "Modified: %s\n", df.TargetPath)
		writeHunks(&b, df.Hunks)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeMarkedLines(b *strings.Builder, hunks []models.Hunk, marker string) {
	for _, h := range hunks {
		for _, line := range strings.Split(h.Body, "\n") {
			if strings.HasPrefix(line, marker) && !strings.HasPrefix(line, marker+marker+marker) {
				b.WriteString(strings.TrimPrefix(line, marker))
				b.WriteString("\n")
			}
		}
	}
}

func writeHunks(b *strings.Builder, hunks []models.Hunk) {
	for _, h := range hunks {
		b.WriteString(h.Body)
		b.WriteString("\n")
	}
}
