package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reviewbot/pkg/models"
)

// searchQuery asks the model for a short retrieval query describing what
// repository context would help review the diff, falling back to the PR
// title when the model produces nothing usable.
func (o *Orchestrator) searchQuery(ctx context.Context, title, processedDiff string) string {
	const maxDiff = 8000
	if len(processedDiff) > maxDiff {
		processedDiff = processedDiff[:maxDiff]
	}
	prompt := "Given the following pull request diff, respond with a JSON object " +
		`of the form {"quer": "<search terms>"} describing what existing code ` +
		"would be most useful to consult while reviewing it. Respond with JSON only.\n\n" +
		processedDiff

	raw, err := o.AI.Review(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("search-query generation failed, using PR title")
		return title
	}
	if q := extractQuery(raw); q != "" {
		return q
	}
	return title
}

// extractQuery pulls the search terms out of the model's JSON reply. The
// upstream prompt contract names the field "quer"; "query" is accepted too
// in case the model corrects the spelling on its own.
func extractQuery(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return ""
	}
	for _, key := range []string{"quer", "query"} {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func contextBlock(merged models.RetrievalResult) string {
	if len(merged.Chunks) == 0 {
		return "(no indexed context available)"
	}
	var b strings.Builder
	for _, sc := range merged.Chunks {
		fmt.Fprintf(&b, "--- %s (lines %d-%d)\n%s\n", sc.Chunk.FilePath, sc.Chunk.StartLine, sc.Chunk.EndLine, sc.Chunk.Content)
	}
	return b.String()
}

func reviewPrompt(title, body, processedDiff string, merged models.RetrievalResult) string {
	return fmt.Sprintf(`You are a senior engineer reviewing a pull request.

Title: %s

Description:
%s

Relevant repository context:
%s

Changes:
%s

Write a concise, actionable code review. Point out bugs, risky changes and
missing tests. Do not restate the diff.`, title, body, contextBlock(merged), processedDiff)
}

func issuePrompt(text string, merged models.RetrievalResult) string {
	return fmt.Sprintf(`You are a senior engineer triaging an issue.

Issue:
%s

Relevant repository context:
%s

Write a concise analysis: likely cause, affected code, and suggested next
steps.`, text, contextBlock(merged))
}
