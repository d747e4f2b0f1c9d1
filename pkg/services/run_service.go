package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inquiryos/inquiryos/ent"
	"github.com/inquiryos/inquiryos/ent/answer"
	"github.com/inquiryos/inquiryos/ent/pipelineevent"
	"github.com/inquiryos/inquiryos/ent/researchrun"
	"github.com/inquiryos/inquiryos/ent/researchstep"
	"github.com/inquiryos/inquiryos/ent/source"
	"github.com/inquiryos/inquiryos/pkg/models"
)

// RunService manages research run lifecycle
type RunService struct {
	client        *ent.Client
	modelProvider string
}

// NewRunService creates a new RunService. modelProvider is the
// "provider:model" identity stamped on newly created runs.
func NewRunService(client *ent.Client, modelProvider string) *RunService {
	return &RunService{client: client, modelProvider: modelProvider}
}

// CreateRun creates a new research run and seeds its planner step.
// Planning is deterministic template expansion, so the planner step is
// committed as completed in the same transaction as the run itself.
func (s *RunService) CreateRun(httpCtx context.Context, input models.CreateRunInput) (*ent.ResearchRun, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, NewValidationError("query", "required")
	}

	// Use background context with timeout for critical write
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	runBuilder := tx.ResearchRun.Create().
		SetID(uuid.New().String()).
		SetQuery(query).
		SetStatus(researchrun.StatusPending).
		SetModelProvider(s.modelProvider)

	if title := strings.TrimSpace(input.Title); title != "" {
		runBuilder.SetTitle(title)
	}

	run, err := runBuilder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create research run: %w", err)
	}

	now := time.Now()
	_, err = tx.ResearchStep.Create().
		SetID(uuid.New().String()).
		SetRunID(run.ID).
		SetStepIndex(0).
		SetStepType(researchstep.StepTypePlanner).
		SetStatus(researchstep.StatusCompleted).
		SetStartedAt(now).
		SetCompletedAt(now).
		SetInput(map[string]interface{}{"query": query}).
		SetOutput(map[string]interface{}{"sub_questions": DerivePlan(query)}).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create planner step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return run, nil
}

// GetRun retrieves a run by ID
func (s *RunService) GetRun(ctx context.Context, runID string) (*ent.ResearchRun, error) {
	run, err := s.client.ResearchRun.Query().
		Where(researchrun.IDEQ(runID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get research run: %w", err)
	}

	return run, nil
}

// GetRunDetail retrieves a run together with its steps, sources, answer
// and pipeline events.
func (s *RunService) GetRunDetail(ctx context.Context, runID string) (*models.RunDetailResponse, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	steps, err := s.client.ResearchStep.Query().
		Where(researchstep.RunIDEQ(runID)).
		Order(ent.Asc(researchstep.FieldStepIndex)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}

	sources, err := s.client.Source.Query().
		Where(source.RunIDEQ(runID)).
		Order(ent.Asc(source.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	// Absent until a synthesis stage has committed
	ans, err := s.client.Answer.Query().
		Where(answer.RunIDEQ(runID)).
		Only(ctx)
	if err != nil && !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	events, err := s.client.PipelineEvent.Query().
		Where(pipelineevent.RunIDEQ(runID)).
		Order(ent.Asc(pipelineevent.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline events: %w", err)
	}

	return &models.RunDetailResponse{
		ResearchRun: run,
		Steps:       steps,
		Sources:     sources,
		Answer:      ans,
		Events:      events,
	}, nil
}

// ListRuns lists runs newest-first with pagination
func (s *RunService) ListRuns(ctx context.Context, limit, offset int) (*models.RunListResponse, error) {
	if limit <= 0 {
		limit = 20 // Default
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := s.client.ResearchRun.Query()

	// Count total
	totalCount, err := query.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count research runs: %w", err)
	}

	runs, err := query.
		Limit(limit).
		Offset(offset).
		Order(ent.Desc(researchrun.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list research runs: %w", err)
	}

	return &models.RunListResponse{
		Runs:       runs,
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// GetRunState projects a per-run state snapshot from persisted rows.
// Stage types with no persisted step project as pending. Should
// duplicate steps of one type ever exist, the highest step_index wins.
func (s *RunService) GetRunState(ctx context.Context, runID string) (*models.RunStateResponse, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	steps, err := s.client.ResearchStep.Query().
		Where(researchstep.RunIDEQ(runID)).
		Order(ent.Asc(researchstep.FieldStepIndex)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}

	states := map[researchstep.StepType]models.StepState{
		researchstep.StepTypePlanner:     {Status: researchstep.StatusPending},
		researchstep.StepTypeSearcher:    {Status: researchstep.StatusPending},
		researchstep.StepTypeReader:      {Status: researchstep.StatusPending},
		researchstep.StepTypeSynthesizer: {Status: researchstep.StatusPending},
	}
	// Ordered by step_index ascending, so a later step overwrites an
	// earlier one of the same type.
	for _, step := range steps {
		states[step.StepType] = models.StepState{
			Status:       step.Status,
			StartedAt:    step.StartedAt,
			CompletedAt:  step.CompletedAt,
			ErrorMessage: step.ErrorMessage,
		}
	}

	sourceCount, err := s.client.Source.Query().
		Where(source.RunIDEQ(runID)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}

	withSummary, err := s.client.Source.Query().
		Where(source.RunIDEQ(runID), source.SummaryNotNil(), source.SummaryNEQ("")).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count summarized sources: %w", err)
	}

	return &models.RunStateResponse{
		RunID:              run.ID,
		Status:             run.Status,
		Steps:              states,
		SourceCount:        sourceCount,
		SourcesWithSummary: withSummary,
	}, nil
}
