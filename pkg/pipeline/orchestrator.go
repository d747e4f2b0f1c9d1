package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/inquiryos/inquiryos/ent"
	"github.com/inquiryos/inquiryos/ent/pipelineevent"
	"github.com/inquiryos/inquiryos/ent/researchrun"
	"github.com/inquiryos/inquiryos/ent/researchstep"
	"github.com/inquiryos/inquiryos/pkg/llm"
	"github.com/inquiryos/inquiryos/pkg/models"
	"github.com/inquiryos/inquiryos/pkg/search"
	"github.com/inquiryos/inquiryos/pkg/services"
	"github.com/inquiryos/inquiryos/pkg/webfetch"
)

const (
	// searchResultLimit bounds how many results the searcher persists.
	searchResultLimit = 5

	// executeStage tags failed events emitted by the execute wrapper.
	executeStage = "execute_pipeline"
)

// PageFetcher is the fetch capability the reader stage depends on.
// Implemented by webfetch.Fetcher.
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (*webfetch.FetchedPage, error)
}

// Orchestrator composes stage runners into the research pipeline and
// records PipelineEvents for execute calls. Individual stage entry
// points enforce their own preconditions and emit no events.
type Orchestrator struct {
	client  *ent.Client
	runs    *services.RunService
	search  search.Client
	fetcher PageFetcher
	llm     llm.Client
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(client *ent.Client, runs *services.RunService, searchClient search.Client, fetcher PageFetcher, llmClient llm.Client) *Orchestrator {
	return &Orchestrator{
		client:  client,
		runs:    runs,
		search:  searchClient,
		fetcher: fetcher,
		llm:     llmClient,
	}
}

// Execute runs the pipeline to completion for the given mode, skipping
// stages whose type already exists. Each call records exactly one
// started event and one terminal (completed or failed) event. Any stage
// error moves the run to failed before it is returned.
func (o *Orchestrator) Execute(ctx context.Context, runID string, mode pipelineevent.Mode) (*models.RunDetailResponse, error) {
	logger := slog.With("run_id", runID, "mode", mode)

	if _, err := o.runs.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := o.recordEvent(ctx, runID, pipelineevent.EventTypeStarted, mode, nil); err != nil {
		return nil, err
	}
	logger.Info("Pipeline execution started")

	if err := o.runStages(ctx, runID, mode); err != nil {
		o.markRunFailed(runID, mode, err, start)
		return nil, err
	}

	durationMs := durationMsSince(start)
	if err := o.recordEvent(ctx, runID, pipelineevent.EventTypeCompleted, mode, &durationMs); err != nil {
		// The run itself committed; losing the audit record is not
		// worth failing the call over.
		logger.Warn("Failed to record completed event", "error", err)
	}
	logger.Info("Pipeline execution completed", "duration_ms", durationMs)

	return o.runs.GetRunDetail(ctx, runID)
}

func (o *Orchestrator) runStages(ctx context.Context, runID string, mode pipelineevent.Mode) error {
	runSearch, runReader, runSynthesis := o.RunSearch, o.RunReader, o.RunSynthesis
	if mode == pipelineevent.ModeDummy {
		runSearch, runReader, runSynthesis = o.RunDummySearch, o.RunDummyReader, o.RunDummySynthesis
	}

	if err := o.runStageIfMissing(ctx, runID, researchstep.StepTypeSearcher, runSearch); err != nil {
		return err
	}
	if err := o.runStageIfMissing(ctx, runID, researchstep.StepTypeReader, runReader); err != nil {
		return err
	}
	return o.runStageIfMissing(ctx, runID, researchstep.StepTypeSynthesizer, runSynthesis)
}

// runStageIfMissing is the resume mechanism: already-committed stages
// are skipped instead of re-run.
func (o *Orchestrator) runStageIfMissing(ctx context.Context, runID string, stepType researchstep.StepType, run func(context.Context, string) error) error {
	exists, err := hasStepType(ctx, o.client.ResearchStep, runID, stepType)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return run(ctx, runID)
}

// markRunFailed writes the terminal failed state and event on a fresh
// background context so caller cancellation cannot lose them.
func (o *Orchestrator) markRunFailed(runID string, mode pipelineevent.Mode, cause error, start time.Time) {
	logger := slog.With("run_id", runID, "mode", mode)
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := cause.Error()
	if err := o.client.ResearchRun.UpdateOneID(runID).
		SetStatus(researchrun.StatusFailed).
		SetErrorMessage(msg).
		Exec(writeCtx); err != nil {
		logger.Error("Failed to mark run as failed", "error", err)
	}

	if _, err := o.client.PipelineEvent.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetEventType(pipelineevent.EventTypeFailed).
		SetMode(mode).
		SetStage(executeStage).
		SetDurationMs(durationMsSince(start)).
		SetErrorMessage(msg).
		Save(writeCtx); err != nil {
		logger.Error("Failed to record failed event", "error", err)
	}

	logger.Error("Pipeline execution failed", "error", msg)
}

func (o *Orchestrator) recordEvent(ctx context.Context, runID string, eventType pipelineevent.EventType, mode pipelineevent.Mode, durationMs *int) error {
	_, err := o.client.PipelineEvent.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetEventType(eventType).
		SetMode(mode).
		SetNillableDurationMs(durationMs).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", eventType, err)
	}
	return nil
}

func durationMsSince(start time.Time) int {
	return int(time.Since(start).Milliseconds())
}

// loadRun fetches a run through the given client, which may be
// transaction-scoped.
func loadRun(ctx context.Context, runs *ent.ResearchRunClient, runID string) (*ent.ResearchRun, error) {
	run, err := runs.Query().Where(researchrun.IDEQ(runID)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, services.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load research run: %w", err)
	}
	return run, nil
}

func hasStepType(ctx context.Context, steps *ent.ResearchStepClient, runID string, stepType researchstep.StepType) (bool, error) {
	exists, err := steps.Query().
		Where(researchstep.RunIDEQ(runID), researchstep.StepTypeEQ(stepType)).
		Exist(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check for %s step: %w", stepType, err)
	}
	return exists, nil
}

// nextStepIndex allocates max(existing indices)+1, or 0 for the first
// step of a run.
func nextStepIndex(ctx context.Context, steps *ent.ResearchStepClient, runID string) (int, error) {
	indices, err := steps.Query().
		Where(researchstep.RunIDEQ(runID)).
		Select(researchstep.FieldStepIndex).
		Ints(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load step indices: %w", err)
	}

	next := 0
	for _, idx := range indices {
		if idx >= next {
			next = idx + 1
		}
	}
	return next, nil
}

// checkStagePreconditions enforces the stage ordering rules: the stage
// must not already exist and its predecessor must.
func checkStagePreconditions(ctx context.Context, steps *ent.ResearchStepClient, runID string, stage researchstep.StepType) error {
	exists, err := hasStepType(ctx, steps, runID, stage)
	if err != nil {
		return err
	}
	if exists {
		return services.NewInvalidStateError(duplicateStageMessage(stage))
	}

	var predecessor researchstep.StepType
	var missingMsg string
	switch stage {
	case researchstep.StepTypeSearcher:
		predecessor, missingMsg = researchstep.StepTypePlanner, "Planner step missing; cannot run search."
	case researchstep.StepTypeReader:
		predecessor, missingMsg = researchstep.StepTypeSearcher, "Run search before reader."
	case researchstep.StepTypeSynthesizer:
		predecessor, missingMsg = researchstep.StepTypeReader, "Run reader before synthesis."
	default:
		return nil
	}

	hasPredecessor, err := hasStepType(ctx, steps, runID, predecessor)
	if err != nil {
		return err
	}
	if !hasPredecessor {
		return services.NewInvalidStateError(missingMsg)
	}
	return nil
}

func duplicateStageMessage(stage researchstep.StepType) string {
	switch stage {
	case researchstep.StepTypeSearcher:
		return "Search has already been run for this research run."
	case researchstep.StepTypeReader:
		return "Reader has already been run for this research run."
	case researchstep.StepTypeSynthesizer:
		return "Synthesis has already been run for this research run."
	default:
		return fmt.Sprintf("Stage %s has already been run for this research run.", stage)
	}
}

// stepCreateError maps unique-constraint violations from concurrent
// stage commits onto the duplicate-stage message.
func stepCreateError(err error, stage researchstep.StepType) error {
	if ent.IsConstraintError(err) {
		return services.NewInvalidStateError(duplicateStageMessage(stage))
	}
	return fmt.Errorf("failed to create %s step: %w", stage, err)
}

// setRunningIfPending moves a pending run to running. Non-planner stage
// commits call this so the first real progress is visible.
func setRunningIfPending(ctx context.Context, tx *ent.Tx, run *ent.ResearchRun) error {
	if run.Status != researchrun.StatusPending {
		return nil
	}
	if err := tx.ResearchRun.UpdateOneID(run.ID).
		SetStatus(researchrun.StatusRunning).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// completeRun marks the run completed and clears any error message left
// over from a previously failed execute.
func completeRun(ctx context.Context, tx *ent.Tx, runID string) error {
	if err := tx.ResearchRun.UpdateOneID(runID).
		SetStatus(researchrun.StatusCompleted).
		ClearErrorMessage().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}
