// Package pipeline wires webhook events into the review flow:
// fetch -> parse -> chunk -> embed -> store/query -> merge -> review ->
// comment.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reviewbot/internal/ai"
	"github.com/seanblong/reviewbot/internal/chunker"
	"github.com/seanblong/reviewbot/internal/diffparse"
	"github.com/seanblong/reviewbot/internal/githubapp"
	"github.com/seanblong/reviewbot/internal/retrieval"
	"github.com/seanblong/reviewbot/internal/store"
	"github.com/seanblong/reviewbot/internal/webhook"
	"github.com/seanblong/reviewbot/pkg/models"
)

// Comment markers distinguish bot output and let UpsertComment keep one
// comment per thread. PR analysis and issue analysis use different markers.
const (
	PRMarker    = "<!-- reviewbot:pr -->"
	IssueMarker = "<!-- reviewbot:issue -->"
)

// GitHubAPI is the slice of the GitHub client the pipeline uses.
type GitHubAPI interface {
	FetchDiff(ctx context.Context, installationID int64, diffURL string) (string, error)
	GetFileContent(ctx context.Context, installationID int64, repoFullName, path, ref string) (string, error)
	ListTree(ctx context.Context, installationID int64, repoFullName, ref string) ([]githubapp.TreeEntry, error)
	UpsertComment(ctx context.Context, installationID int64, repoFullName string, number int, body, marker string) error
}

// Orchestrator composes the pipeline per event.
type Orchestrator struct {
	GitHub    GitHubAPI
	AI        ai.Client
	Store     store.VectorStore
	Chunker   *chunker.Chunker
	Splitter  *chunker.BudgetSplitter
	Merger    *retrieval.Merger
	BotHandle string
	TopK      int
	Workers   int
}

func New(gh GitHubAPI, client ai.Client, st store.VectorStore, botHandle string) *Orchestrator {
	return &Orchestrator{
		GitHub:    gh,
		AI:        client,
		Store:     st,
		Chunker:   chunker.New(),
		Splitter:  chunker.NewBudgetSplitter(),
		Merger:    retrieval.NewMerger(st),
		BotHandle: botHandle,
		TopK:      5,
		Workers:   4,
	}
}

// Dispatch routes one validated webhook event. Unknown events and
// uninteresting actions are dropped silently.
func (o *Orchestrator) Dispatch(ctx context.Context, event string, p *webhook.Event) error {
	switch event {
	case "pull_request":
		switch p.Action {
		case "opened", "reopened", "synchronize":
			return o.handlePullRequest(ctx, p)
		case "closed":
			return o.handlePullRequestClosed(ctx, p)
		}
	case "issues":
		switch p.Action {
		case "opened", "edited":
			return o.handleIssue(ctx, p, p.Issue.Title+"\n\n"+p.Issue.Body)
		}
	case "issue_comment":
		if p.Action == "created" && o.mentionsBot(p.Comment) {
			return o.handleIssue(ctx, p, p.Comment.Body)
		}
	case "push":
		return o.handlePush(ctx, p)
	case "repository":
		if p.Action == "renamed" {
			return o.handleRepositoryRenamed(ctx, p)
		}
	case "installation", "installation_repositories":
		log.Info().Str("action", p.Action).Int64("installation", p.Installation.ID).Msg("installation event acknowledged")
	}
	return nil
}

func (o *Orchestrator) mentionsBot(c *webhook.Comment) bool {
	if c == nil || o.BotHandle == "" {
		return false
	}
	if strings.EqualFold(c.User.Login, o.BotHandle) || c.User.Type == "Bot" {
		return false
	}
	return strings.Contains(strings.ToLower(c.Body), "@"+strings.ToLower(o.BotHandle))
}

// handlePullRequest runs the full review flow for an opened or updated PR.
func (o *Orchestrator) handlePullRequest(ctx context.Context, p *webhook.Event) error {
	pr, repo, inst := p.PullRequest, p.Repository, p.Installation

	diffText, err := o.GitHub.FetchDiff(ctx, inst.ID, pr.DiffURL)
	if err != nil {
		return fmt.Errorf("fetch diff for %s#%d: %w", repo.FullName, pr.Number, err)
	}
	parsed := diffparse.Parse(diffText)
	if len(parsed.Files) == 0 {
		log.Info().Str("repo", repo.FullName).Int("pr", pr.Number).Msg("diff has no reviewable files")
		return nil
	}

	sourceName := retrieval.SourceCollectionName(repo.FullName, repo.ID)
	tempName := retrieval.TempCollectionName(pr.Head.Ref, pr.Number)
	if err := o.Store.EnsureCollection(ctx, tempName, o.AI.Dim()); err != nil {
		return fmt.Errorf("ensure temp collection: %w", err)
	}

	// Index the PR-local state of every file the PR modifies. The source
	// collection is left untouched: a PR's renames have not landed on the
	// default branch, so stale old-path entries there are reconciled at
	// merge time through the rename mapping instead. Pure renames carry no
	// content change and are not indexed either.
	var toIndex []indexItem
	for _, df := range parsed.Files {
		if df.Status == models.DiffBinary {
			continue
		}
		if df.Status == models.DiffRemoved {
			if err := o.Store.DeletePointsByPath(ctx, tempName, df.SourcePath); err != nil {
				log.Warn().Err(err).Str("path", df.SourcePath).Msg("failed to purge removed file from temp collection")
			}
			continue
		}
		if df.Status == models.DiffRenamed && len(df.Hunks) == 0 {
			continue
		}
		path := df.TargetPath
		content, err := o.GitHub.GetFileContent(ctx, inst.ID, repo.FullName, path, pr.Head.Ref)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping file, content fetch failed")
			continue
		}
		if err := o.Store.DeletePointsByPath(ctx, tempName, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to purge stale temp points")
		}
		toIndex = append(toIndex, indexItem{path: path, content: content})
	}
	o.indexFiles(ctx, tempName, toIndex)

	// Let the model pick what repository context to retrieve, then merge
	// the two indexes with PR-local precedence.
	query := o.searchQuery(ctx, pr.Title, parsed.Processed)
	qVec, err := o.AI.EmbedQuery(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("query embedding failed, abandoning event")
		return nil
	}
	merged, err := o.Merger.Merge(ctx, sourceName, tempName, qVec, o.TopK, parsed.RenameMapping)
	if err != nil {
		return fmt.Errorf("merge retrieval: %w", err)
	}

	prompt := reviewPrompt(pr.Title, pr.Body, parsed.Processed, merged)
	review, err := o.AI.Review(ctx, prompt)
	if err != nil || strings.TrimSpace(review) == "" {
		// a broken or empty review must never reach the PR
		log.Error().Err(err).Str("repo", repo.FullName).Int("pr", pr.Number).Msg("no review produced, posting nothing")
		return nil
	}

	body := PRMarker + "\n\n" + review
	if err := o.GitHub.UpsertComment(ctx, inst.ID, repo.FullName, pr.Number, body, PRMarker); err != nil {
		return fmt.Errorf("post review comment: %w", err)
	}
	return nil
}

// handlePullRequestClosed drops the PR's temp collection. Deletion is
// idempotent; the janitor catches anything missed here.
func (o *Orchestrator) handlePullRequestClosed(ctx context.Context, p *webhook.Event) error {
	name := retrieval.TempCollectionName(p.PullRequest.Head.Ref, p.PullRequest.Number)
	deleted, err := o.Store.DeleteCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("delete temp collection %s: %w", name, err)
	}
	log.Info().Str("collection", name).Bool("deleted", deleted).Msg("pull request closed")
	return nil
}

// handleIssue grounds an issue (or mention) against the source collection
// only; there is no PR-local state.
func (o *Orchestrator) handleIssue(ctx context.Context, p *webhook.Event, text string) error {
	repo, inst := p.Repository, p.Installation
	number := p.Issue.Number

	qVec, err := o.AI.EmbedQuery(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("query embedding failed, abandoning event")
		return nil
	}
	sourceName := retrieval.SourceCollectionName(repo.FullName, repo.ID)
	merged, err := o.Merger.Merge(ctx, sourceName, "", qVec, o.TopK, nil)
	if err != nil {
		return fmt.Errorf("issue retrieval: %w", err)
	}

	prompt := issuePrompt(text, merged)
	answer, err := o.AI.Review(ctx, prompt)
	if err != nil || strings.TrimSpace(answer) == "" {
		log.Error().Err(err).Str("repo", repo.FullName).Int("issue", number).Msg("no analysis produced, posting nothing")
		return nil
	}

	body := IssueMarker + "\n\n" + answer
	if err := o.GitHub.UpsertComment(ctx, inst.ID, repo.FullName, number, body, IssueMarker); err != nil {
		return fmt.Errorf("post issue comment: %w", err)
	}
	return nil
}

// handlePush keeps the source collection current with the default branch.
func (o *Orchestrator) handlePush(ctx context.Context, p *webhook.Event) error {
	repo, inst := p.Repository, p.Installation
	branch := strings.TrimPrefix(p.Ref, "refs/heads/")
	if repo.DefaultBranch != "" && branch != repo.DefaultBranch {
		return nil
	}

	sourceName := retrieval.SourceCollectionName(repo.FullName, repo.ID)
	if err := o.Store.EnsureCollection(ctx, sourceName, o.AI.Dim()); err != nil {
		return fmt.Errorf("ensure source collection: %w", err)
	}

	changed := map[string]bool{}
	for _, c := range p.Commits {
		for _, f := range c.Added {
			changed[f] = true
		}
		for _, f := range c.Modified {
			changed[f] = true
		}
		for _, f := range c.Removed {
			delete(changed, f)
			if err := o.Store.DeletePointsByPath(ctx, sourceName, f); err != nil {
				log.Warn().Err(err).Str("path", f).Msg("failed to purge removed path")
			}
		}
	}

	var toIndex []indexItem
	for path := range changed {
		content, err := o.GitHub.GetFileContent(ctx, inst.ID, repo.FullName, path, branch)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping file, content fetch failed")
			continue
		}
		if err := o.Store.DeletePointsByPath(ctx, sourceName, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to purge stale points")
		}
		toIndex = append(toIndex, indexItem{path: path, content: content})
	}
	o.indexFiles(ctx, sourceName, toIndex)
	return nil
}

// handleRepositoryRenamed swaps the source collection to the new name.
func (o *Orchestrator) handleRepositoryRenamed(ctx context.Context, p *webhook.Event) error {
	repo := p.Repository
	if p.Changes == nil || p.Changes.Repository.Name.From == "" {
		return fmt.Errorf("renamed event without previous name")
	}
	owner := repo.FullName
	if i := strings.Index(owner, "/"); i >= 0 {
		owner = owner[:i]
	}
	oldFull := owner + "/" + p.Changes.Repository.Name.From
	oldName := retrieval.SourceCollectionName(oldFull, repo.ID)
	newName := retrieval.SourceCollectionName(repo.FullName, repo.ID)

	if err := o.Store.RenameViaAlias(ctx, oldName, newName); err != nil {
		return fmt.Errorf("rename collection: %w", err)
	}
	log.Info().Str("from", oldName).Str("to", newName).Msg("source collection renamed")
	return nil
}

type indexItem struct {
	path    string
	content string
}

// indexFiles chunks, splits, embeds and upserts files into a collection
// with a bounded worker pool. Embeddings are independent per chunk and
// content-addressed, so ordering does not matter and failures are isolated
// per file.
func (o *Orchestrator) indexFiles(ctx context.Context, collection string, items []indexItem) {
	if len(items) == 0 {
		return
	}
	workers := o.Workers
	if workers < 1 {
		workers = 1
	}
	workChan := make(chan indexItem, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workChan {
				o.indexFile(ctx, collection, item)
			}
		}()
	}

	for _, item := range items {
		select {
		case workChan <- item:
		case <-ctx.Done():
			close(workChan)
			wg.Wait()
			return
		}
	}
	close(workChan)
	wg.Wait()
}

func (o *Orchestrator) indexFile(ctx context.Context, collection string, item indexItem) {
	chunks := o.Splitter.PostProcess(o.Chunker.Chunk(item.content, item.path))
	for _, c := range chunks {
		vec, err := o.AI.EmbedDocument(ctx, c.Content)
		if err != nil {
			log.Warn().Err(err).Str("path", c.FilePath).Int("start", c.StartLine).Msg("embedding failed, chunk skipped")
			continue
		}
		if err := o.Store.Upsert(ctx, collection, c, vec); err != nil {
			log.Error().Err(err).Str("path", c.FilePath).Msg("upsert failed")
		}
	}
	log.Info().Str("collection", collection).Str("path", item.path).Int("chunks", len(chunks)).Msg("indexed file")
}
