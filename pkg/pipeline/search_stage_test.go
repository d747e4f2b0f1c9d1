package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/inquiryos/inquiryos/ent/researchrun"
	"github.com/inquiryos/inquiryos/ent/researchstep"
	"github.com/inquiryos/inquiryos/pkg/search"
	testdb "github.com/inquiryos/inquiryos/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_RunSearch(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	t.Run("persists one source per result in order", func(t *testing.T) {
		searchClient := &fakeSearchClient{results: []search.Result{
			{Title: "Hydration basics", URL: "https://example.org/hydration"},
			{Title: "", URL: "https://example.org/electrolytes"},
		}}
		orch, runs := newTestOrchestrator(client.Client, searchClient, nil, nil)
		run := createTestRun(t, runs, "hydration")

		require.NoError(t, orch.RunSearch(ctx, run.ID))

		detail, err := runs.GetRunDetail(ctx, run.ID)
		require.NoError(t, err)

		assert.Equal(t, researchrun.StatusRunning, detail.Status)

		require.Len(t, detail.Steps, 2)
		step := detail.Steps[1]
		assert.Equal(t, researchstep.StepTypeSearcher, step.StepType)
		assert.Equal(t, researchstep.StatusCompleted, step.Status)
		assert.Equal(t, "hydration", step.Input["query"])
		assert.Equal(t, float64(5), step.Input["limit"])
		assert.Equal(t, float64(2), step.Output["result_count"])
		assert.Equal(t, "fake", step.Output["provider"])

		require.Len(t, detail.Sources, 2)
		assert.Equal(t, "https://example.org/hydration", detail.Sources[0].URL)
		assert.Equal(t, "Hydration basics", detail.Sources[0].Title)
		assert.Equal(t, "https://example.org/electrolytes", detail.Sources[1].URL)
		assert.Equal(t, "", detail.Sources[1].Title)
		for _, src := range detail.Sources {
			assert.Equal(t, "fake", src.ExtraMetadata["provider"])
			assert.Nil(t, src.RawContent)
			assert.Nil(t, src.Summary)
			assert.Nil(t, src.RelevanceScore)
		}
	})

	t.Run("search failure commits nothing", func(t *testing.T) {
		searchClient := &fakeSearchClient{err: errors.New("engine down")}
		orch, runs := newTestOrchestrator(client.Client, searchClient, nil, nil)
		run := createTestRun(t, runs, "failing")

		err := orch.RunSearch(ctx, run.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine down")

		detail, err := runs.GetRunDetail(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, researchrun.StatusPending, detail.Status)
		assert.Len(t, detail.Steps, 1)
		assert.Empty(t, detail.Sources)
	})

	t.Run("zero results still commits the step", func(t *testing.T) {
		searchClient := &fakeSearchClient{}
		orch, runs := newTestOrchestrator(client.Client, searchClient, nil, nil)
		run := createTestRun(t, runs, "obscure")

		require.NoError(t, orch.RunSearch(ctx, run.ID))

		detail, err := runs.GetRunDetail(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, detail.Steps, 2)
		assert.Equal(t, float64(0), detail.Steps[1].Output["result_count"])
		assert.Empty(t, detail.Sources)
	})
}

func TestQuerySlug(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "lowercases and hyphenates", query: "Benefits Of Hydration", want: "benefits-of-hydration"},
		{name: "caps length at 50", query: "a very long research question that keeps going and going and going", want: "a-very-long-research-question-that-keeps-going-and"},
		{name: "empty query falls back", query: "", want: "research-topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, querySlug(tt.query))
		})
	}
}
