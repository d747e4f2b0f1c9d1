package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inquiryos/inquiryos/ent"
	"github.com/inquiryos/inquiryos/ent/researchstep"
	"github.com/inquiryos/inquiryos/ent/source"
	"github.com/inquiryos/inquiryos/pkg/services"
	"github.com/inquiryos/inquiryos/pkg/webfetch"
	"golang.org/x/sync/semaphore"
)

const (
	// readerFetchLimit bounds how many unread sources one reader pass fetches.
	readerFetchLimit = 5

	// readerConcurrency bounds in-flight fetches.
	readerConcurrency = 4

	// maxRawContentChars caps stored page text.
	maxRawContentChars = 20000

	// maxSummaryChars caps the stored summary.
	maxSummaryChars = 900

	// maxFailedReported caps the failure list recorded in step output.
	maxFailedReported = 10
)

// RunReader executes the real reader stage: fetches unread sources
// concurrently, stores extracted text and summaries, and records
// per-URL failures in the step output. Per-URL errors never fail the
// step; only database errors and cancellation do.
func (o *Orchestrator) RunReader(ctx context.Context, runID string) error {
	tx, err := o.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := loadRun(ctx, tx.ResearchRun, runID); err != nil {
		return err
	}
	if err := checkStagePreconditions(ctx, tx.ResearchStep, runID, researchstep.StepTypeReader); err != nil {
		return err
	}

	total, err := tx.Source.Query().Where(source.RunIDEQ(runID)).Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count sources: %w", err)
	}
	if total == 0 {
		return services.NewInvalidStateError("No sources available to read.")
	}

	unread, err := tx.Source.Query().
		Where(source.RunIDEQ(runID), source.RawContentIsNil()).
		Order(ent.Asc(source.FieldCreatedAt)).
		Limit(readerFetchLimit).
		All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}

	started := time.Now()
	pages := o.fetchPages(ctx, unread)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reader cancelled: %w", err)
	}

	sourceIDs := make([]string, 0, len(unread))
	failed := make([]map[string]interface{}, 0)
	readCount := 0
	for i, src := range unread {
		sourceIDs = append(sourceIDs, src.ID)
		if pages[i].err != nil {
			failed = append(failed, map[string]interface{}{
				"url":   src.URL,
				"error": pages[i].err.Error(),
			})
			continue
		}
		if err := tx.Source.UpdateOneID(src.ID).
			SetRawContent(webfetch.TruncateChars(pages[i].text, maxRawContentChars)).
			SetSummary(webfetch.BasicSummary(pages[i].text, maxSummaryChars)).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to update source: %w", err)
		}
		readCount++
	}

	reported := failed
	if len(reported) > maxFailedReported {
		reported = reported[:maxFailedReported]
	}

	nextIndex, err := nextStepIndex(ctx, tx.ResearchStep, runID)
	if err != nil {
		return err
	}

	if _, err := tx.ResearchStep.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetStepIndex(nextIndex).
		SetStepType(researchstep.StepTypeReader).
		SetStatus(researchstep.StatusCompleted).
		SetStartedAt(started).
		SetCompletedAt(time.Now()).
		SetInput(map[string]interface{}{"source_ids": sourceIDs}).
		SetOutput(map[string]interface{}{
			"attempted":    len(unread),
			"read_count":   readCount,
			"failed_count": len(failed),
			"failed":       reported,
		}).
		Save(ctx); err != nil {
		return stepCreateError(err, researchstep.StepTypeReader)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pageResult struct {
	text string
	err  error
}

// fetchPages downloads and extracts text for the given sources, at most
// readerConcurrency in flight. Results are positional.
func (o *Orchestrator) fetchPages(ctx context.Context, sources []*ent.Source) []pageResult {
	results := make([]pageResult, len(sources))
	sem := semaphore.NewWeighted(readerConcurrency)
	var wg sync.WaitGroup

	for i, src := range sources {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = pageResult{err: err}
			continue
		}
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = o.fetchPage(ctx, url)
		}(i, src.URL)
	}

	wg.Wait()
	return results
}

func (o *Orchestrator) fetchPage(ctx context.Context, url string) pageResult {
	page, err := o.fetcher.FetchHTML(ctx, url)
	if err != nil {
		return pageResult{err: err}
	}
	text := webfetch.ExtractText(page.HTML)
	if text == "" {
		return pageResult{err: errors.New("No text content extracted.")}
	}
	return pageResult{text: text}
}

// RunDummyReader executes the reader stage without network I/O,
// stamping canned content and summaries on every source.
func (o *Orchestrator) RunDummyReader(ctx context.Context, runID string) error {
	tx, err := o.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := loadRun(ctx, tx.ResearchRun, runID); err != nil {
		return err
	}
	if err := checkStagePreconditions(ctx, tx.ResearchStep, runID, researchstep.StepTypeReader); err != nil {
		return err
	}

	sources, err := tx.Source.Query().
		Where(source.RunIDEQ(runID)).
		Order(ent.Asc(source.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	if len(sources) == 0 {
		return services.NewInvalidStateError("No sources available to read.")
	}

	sourceIDs := make([]string, 0, len(sources))
	for _, src := range sources {
		sourceIDs = append(sourceIDs, src.ID)
		name := titleOrURL(src)
		if err := tx.Source.UpdateOneID(src.ID).
			SetRawContent(fmt.Sprintf("This is dummy fetched content for source: %s. It simulates the full text content retrieved from the web.", name)).
			SetSummary(fmt.Sprintf("Summary for %s. This represents a condensed version of the source content.", name)).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to update source: %w", err)
		}
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
		SetStepType(researchstep.StepTypeReader).
		SetStatus(researchstep.StatusCompleted).
		SetStartedAt(now).
		SetCompletedAt(now).
		SetInput(map[string]interface{}{"source_ids": sourceIDs}).
		SetOutput(map[string]interface{}{"source_count": len(sources)}).
		Save(ctx); err != nil {
		return stepCreateError(err, researchstep.StepTypeReader)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// titleOrURL is the display name used in canned content and evidence
// blocks: the title when present, the URL otherwise.
func titleOrURL(src *ent.Source) string {
	if src.Title != "" {
		return src.Title
	}
	return src.URL
}
