package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/inquiryos/inquiryos/ent/pipelineevent"
	"github.com/inquiryos/inquiryos/ent/researchrun"
	"github.com/inquiryos/inquiryos/ent/researchstep"
	"github.com/inquiryos/inquiryos/pkg/services"
	testdb "github.com/inquiryos/inquiryos/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_ExecuteDummy(t *testing.T) {
	client := testdb.NewTestClient(t)
	orch, runs := newTestOrchestrator(client.Client, nil, nil, nil)
	ctx := context.Background()

	t.Run("runs the full pipeline to completion", func(t *testing.T) {
		run := createTestRun(t, runs, "benefits of hydration")

		detail, err := orch.Execute(ctx, run.ID, pipelineevent.ModeDummy)
		require.NoError(t, err)

		assert.Equal(t, researchrun.StatusCompleted, detail.Status)

		require.Len(t, detail.Steps, 4)
		wantTypes := []researchstep.StepType{
			researchstep.StepTypePlanner,
			researchstep.StepTypeSearcher,
			researchstep.StepTypeReader,
			researchstep.StepTypeSynthesizer,
		}
		for i, step := range detail.Steps {
			assert.Equal(t, i, step.StepIndex)
			assert.Equal(t, wantTypes[i], step.StepType)
			assert.Equal(t, researchstep.StatusCompleted, step.Status)
		}
		assert.Equal(t, "Dummy searcher v0 – no real web search performed.", detail.Steps[1].Output["notes"])

		require.Len(t, detail.Sources, 3)
		for _, src := range detail.Sources {
			assert.True(t, strings.HasPrefix(src.URL, "https://example.com/"), "URL %q", src.URL)
			require.NotNil(t, src.RawContent)
			assert.Contains(t, *src.RawContent, "This is dummy fetched content for source:")
			require.NotNil(t, src.Summary)
			assert.Contains(t, *src.Summary, "Summary for")
		}
		assert.Contains(t, detail.Sources[0].URL, "benefits-of-hydration-overview")

		require.NotNil(t, detail.Answer)
		assert.Contains(t, detail.Answer.Content, "This is a dummy synthesized answer based on the attached sources.")
		assert.Contains(t, detail.Answer.Content, "Research question: benefits of hydration")

		require.Len(t, detail.Events, 2)
		assert.Equal(t, pipelineevent.EventTypeStarted, detail.Events[0].EventType)
		assert.Equal(t, pipelineevent.ModeDummy, detail.Events[0].Mode)
		assert.Equal(t, pipelineevent.EventTypeCompleted, detail.Events[1].EventType)
		require.NotNil(t, detail.Events[1].DurationMs)
	})

	t.Run("repeated execute converges without duplicating stages", func(t *testing.T) {
		run := createTestRun(t, runs, "repeat convergence")

		_, err := orch.Execute(ctx, run.ID, pipelineevent.ModeDummy)
		require.NoError(t, err)
		detail, err := orch.Execute(ctx, run.ID, pipelineevent.ModeDummy)
		require.NoError(t, err)

		assert.Equal(t, researchrun.StatusCompleted, detail.Status)
		assert.Len(t, detail.Steps, 4)
		assert.Len(t, detail.Sources, 3)

		// Each execute call records its own started/completed pair.
		require.Len(t, detail.Events, 4)
		var started, completed int
		for _, ev := range detail.Events {
			switch ev.EventType {
			case pipelineevent.EventTypeStarted:
				started++
			case pipelineevent.EventTypeCompleted:
				completed++
			}
		}
		assert.Equal(t, 2, started)
		assert.Equal(t, 2, completed)
	})

	t.Run("resumes after a manually run stage", func(t *testing.T) {
		run := createTestRun(t, runs, "partial resume")
		require.NoError(t, orch.RunDummySearch(ctx, run.ID))

		detail, err := orch.Execute(ctx, run.ID, pipelineevent.ModeDummy)
		require.NoError(t, err)

		assert.Equal(t, researchrun.StatusCompleted, detail.Status)
		assert.Len(t, detail.Steps, 4)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := orch.Execute(ctx, uuid.New().String(), pipelineevent.ModeDummy)
		assert.ErrorIs(t, err, services.ErrNotFound)
	})
}

func TestOrchestrator_ExecuteRealFailure(t *testing.T) {
	client := testdb.NewTestClient(t)
	searchClient := &fakeSearchClient{err: errors.New("search provider unavailable")}
	orch, runs := newTestOrchestrator(client.Client, searchClient, nil, nil)
	ctx := context.Background()

	run := createTestRun(t, runs, "doomed query")

	_, err := orch.Execute(ctx, run.ID, pipelineevent.ModeReal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search provider unavailable")

	reloaded, err := runs.GetRunDetail(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, researchrun.StatusFailed, reloaded.Status)
	require.NotNil(t, reloaded.ErrorMessage)
	assert.Contains(t, *reloaded.ErrorMessage, "search provider unavailable")

	// The failed search stage must not have committed anything.
	require.Len(t, reloaded.Steps, 1)
	assert.Equal(t, researchstep.StepTypePlanner, reloaded.Steps[0].StepType)
	assert.Empty(t, reloaded.Sources)

	require.Len(t, reloaded.Events, 2)
	assert.Equal(t, pipelineevent.EventTypeStarted, reloaded.Events[0].EventType)
	failed := reloaded.Events[1]
	assert.Equal(t, pipelineevent.EventTypeFailed, failed.EventType)
	assert.Equal(t, pipelineevent.ModeReal, failed.Mode)
	require.NotNil(t, failed.Stage)
	assert.Equal(t, "execute_pipeline", *failed.Stage)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "search provider unavailable")
	require.NotNil(t, failed.DurationMs)
}

func TestOrchestrator_StagePreconditions(t *testing.T) {
	client := testdb.NewTestClient(t)
	orch, runs := newTestOrchestrator(client.Client, nil, nil, nil)
	ctx := context.Background()

	t.Run("duplicate search is rejected", func(t *testing.T) {
		run := createTestRun(t, runs, "dup search")
		require.NoError(t, orch.RunDummySearch(ctx, run.ID))

		err := orch.RunDummySearch(ctx, run.ID)
		require.Error(t, err)
		assert.True(t, services.IsInvalidStateError(err))
		assert.Equal(t, "Search has already been run for this research run.", err.Error())
	})

	t.Run("reader requires search", func(t *testing.T) {
		run := createTestRun(t, runs, "reader first")

		err := orch.RunDummyReader(ctx, run.ID)
		require.Error(t, err)
		assert.True(t, services.IsInvalidStateError(err))
		assert.Equal(t, "Run search before reader.", err.Error())
	})

	t.Run("synthesis requires reader", func(t *testing.T) {
		run := createTestRun(t, runs, "synthesis first")
		require.NoError(t, orch.RunDummySearch(ctx, run.ID))

		err := orch.RunDummySynthesis(ctx, run.ID)
		require.Error(t, err)
		assert.True(t, services.IsInvalidStateError(err))
		assert.Equal(t, "Run reader before synthesis.", err.Error())
	})

	t.Run("reader with no sources", func(t *testing.T) {
		run := createTestRun(t, runs, "no sources")
		insertStep(t, client.Client, run.ID, 1, researchstep.StepTypeSearcher)

		err := orch.RunDummyReader(ctx, run.ID)
		require.Error(t, err)
		assert.True(t, services.IsInvalidStateError(err))
		assert.Equal(t, "No sources available to read.", err.Error())
	})

	t.Run("dummy synthesis with no sources still completes", func(t *testing.T) {
		run := createTestRun(t, runs, "empty synthesis")
		insertStep(t, client.Client, run.ID, 1, researchstep.StepTypeSearcher)
		insertStep(t, client.Client, run.ID, 2, researchstep.StepTypeReader)

		require.NoError(t, orch.RunDummySynthesis(ctx, run.ID))

		detail, err := runs.GetRunDetail(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, researchrun.StatusCompleted, detail.Status)
		require.NotNil(t, detail.Answer)
		assert.Equal(t,
			"No sources are currently attached to this research run. Run the searcher agent first to collect relevant sources.",
			detail.Answer.Content)
	})

	t.Run("unknown run", func(t *testing.T) {
		err := orch.RunDummySearch(ctx, uuid.New().String())
		assert.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("dummy search slugs the query into source urls", func(t *testing.T) {
		run := createTestRun(t, runs, "Benefits Of Hydration")
		require.NoError(t, orch.RunDummySearch(ctx, run.ID))

		detail, err := runs.GetRunDetail(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, detail.Sources, 3)
		assert.Equal(t, "https://example.com/articles/benefits-of-hydration-overview", detail.Sources[0].URL)
		assert.Equal(t, "https://example.com/blog/benefits-of-hydration-tradeoffs", detail.Sources[1].URL)
		assert.Equal(t, "https://example.com/docs/benefits-of-hydration-reference", detail.Sources[2].URL)
		require.NotNil(t, detail.Sources[0].RelevanceScore)
		assert.InDelta(t, 0.9, *detail.Sources[0].RelevanceScore, 1e-9)

		// Searcher moves a pending run to running.
		assert.Equal(t, researchrun.StatusRunning, detail.Status)
	})
}
