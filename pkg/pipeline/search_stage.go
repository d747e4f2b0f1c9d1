package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inquiryos/inquiryos/ent/researchstep"
)

// RunSearch executes the real searcher stage: queries the search client
// and persists one Source per result, in provider order.
func (o *Orchestrator) RunSearch(ctx context.Context, runID string) error {
	tx, err := o.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	run, err := loadRun(ctx, tx.ResearchRun, runID)
	if err != nil {
		return err
	}
	if err := checkStagePreconditions(ctx, tx.ResearchStep, runID, researchstep.StepTypeSearcher); err != nil {
		return err
	}

	started := time.Now()
	results, err := o.search.Search(ctx, run.Query, searchResultLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	nextIndex, err := nextStepIndex(ctx, tx.ResearchStep, runID)
	if err != nil {
		return err
	}

	provider := o.search.Provider()
	if _, err := tx.ResearchStep.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetStepIndex(nextIndex).
		SetStepType(researchstep.StepTypeSearcher).
		SetStatus(researchstep.StatusCompleted).
		SetStartedAt(started).
		SetCompletedAt(time.Now()).
		SetInput(map[string]interface{}{"query": run.Query, "limit": searchResultLimit}).
		SetOutput(map[string]interface{}{"result_count": len(results), "provider": provider}).
		Save(ctx); err != nil {
		return stepCreateError(err, researchstep.StepTypeSearcher)
	}

	for _, result := range results {
		if _, err := tx.Source.Create().
			SetID(uuid.New().String()).
			SetRunID(runID).
			SetURL(result.URL).
			SetTitle(result.Title).
			SetExtraMetadata(map[string]interface{}{"provider": provider}).
			Save(ctx); err != nil {
			return fmt.Errorf("failed to create source: %w", err)
		}
	}

	if err := setRunningIfPending(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RunDummySearch executes the searcher stage without network I/O,
// attaching three canned sources derived from the query slug.
func (o *Orchestrator) RunDummySearch(ctx context.Context, runID string) error {
	tx, err := o.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	run, err := loadRun(ctx, tx.ResearchRun, runID)
	if err != nil {
		return err
	}
	if err := checkStagePreconditions(ctx, tx.ResearchStep, runID, researchstep.StepTypeSearcher); err != nil {
		return err
	}

	nextIndex, err := nextStepIndex(ctx, tx.ResearchStep, runID)
	if err != nil {
		return err
	}

	now := time.Now()
	if _, err := tx.ResearchStep.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetStepIndex(nextIndex).
		SetStepType(researchstep.StepTypeSearcher).
		SetStatus(researchstep.StatusCompleted).
		SetStartedAt(now).
		SetCompletedAt(now).
		SetInput(map[string]interface{}{"query": run.Query}).
		SetOutput(map[string]interface{}{
			"notes": "Dummy searcher v0 – no real web search performed.",
			"hint":  "Later this will hit a search API and populate real sources.",
		}).
		Save(ctx); err != nil {
		return stepCreateError(err, researchstep.StepTypeSearcher)
	}

	for _, src := range dummySources(run.Query) {
		if _, err := tx.Source.Create().
			SetID(uuid.New().String()).
			SetRunID(runID).
			SetURL(src.url).
			SetTitle(src.title).
			SetSummary(src.summary).
			SetRelevanceScore(src.relevance).
			SetExtraMetadata(map[string]interface{}{"source_type": src.sourceType, "dummy": true}).
			Save(ctx); err != nil {
			return fmt.Errorf("failed to create source: %w", err)
		}
	}

	if err := setRunningIfPending(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type dummySource struct {
	url        string
	title      string
	summary    string
	relevance  float64
	sourceType string
}

func dummySources(query string) []dummySource {
	slug := querySlug(query)
	return []dummySource{
		{
			url:        fmt.Sprintf("https://example.com/articles/%s-overview", slug),
			title:      "High-level overview related to your research question",
			summary:    "Overview article (dummy source for dev/testing).",
			relevance:  0.9,
			sourceType: "overview",
		},
		{
			url:        fmt.Sprintf("https://example.com/blog/%s-tradeoffs", slug),
			title:      "Discussion of tradeoffs and practical considerations",
			summary:    "Tradeoffs and pros/cons (dummy source for dev/testing).",
			relevance:  0.8,
			sourceType: "discussion",
		},
		{
			url:        fmt.Sprintf("https://example.com/docs/%s-reference", slug),
			title:      "Reference documentation or spec-style material",
			summary:    "Reference-style material (dummy source for dev/testing).",
			relevance:  0.75,
			sourceType: "reference",
		},
	}
}

// querySlug turns a query into a URL-safe slug, capped at 50 characters.
func querySlug(query string) string {
	slug := strings.ReplaceAll(strings.ToLower(query), " ", "-")
	if runes := []rune(slug); len(runes) > 50 {
		slug = string(runes[:50])
	}
	if slug == "" {
		return "research-topic"
	}
	return slug
}
