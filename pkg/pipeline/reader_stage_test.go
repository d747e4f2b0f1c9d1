package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/inquiryos/inquiryos/ent/researchstep"
	"github.com/inquiryos/inquiryos/ent/source"
	"github.com/inquiryos/inquiryos/pkg/webfetch"
	testdb "github.com/inquiryos/inquiryos/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cancellingFetcher cancels the surrounding context on first use,
// simulating a caller disconnect mid-stage.
type cancellingFetcher struct {
	cancel context.CancelFunc
}

func (c *cancellingFetcher) FetchHTML(ctx context.Context, _ string) (*webfetch.FetchedPage, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestOrchestrator_RunReader(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	t.Run("stores text and collects per-url failures", func(t *testing.T) {
		fetcher := &fakeFetcher{
			pages: map[string]string{
				"https://example.org/good":  "<html><body><p>Alpha beta gamma delta.</p></body></html>",
				"https://example.org/empty": "<html><body><script>var x = 1;</script></body></html>",
			},
			errs: map[string]error{
				"http://169.254.169.254/latest": &webfetch.UnsafeURLError{Message: "Private/local IP URLs are not allowed."},
			},
		}
		orch, runs := newTestOrchestrator(client.Client, nil, fetcher, nil)
		run := createTestRun(t, runs, "mixed outcomes")
		insertStep(t, client.Client, run.ID, 1, researchstep.StepTypeSearcher)
		good := insertSource(t, client.Client, run.ID, "https://example.org/good")
		insertSource(t, client.Client, run.ID, "http://169.254.169.254/latest")
		insertSource(t, client.Client, run.ID, "https://example.org/empty")

		require.NoError(t, orch.RunReader(ctx, run.ID))

		detail, err := runs.GetRunDetail(ctx, run.ID)
		require.NoError(t, err)

		require.Len(t, detail.Steps, 2)
		step := detail.Steps[1]
		assert.Equal(t, researchstep.StepTypeReader, step.StepType)
		assert.Equal(t, researchstep.StatusCompleted, step.Status)
		assert.Equal(t, float64(3), step.Output["attempted"])
		assert.Equal(t, float64(1), step.Output["read_count"])
		assert.Equal(t, float64(2), step.Output["failed_count"])

		failures, ok := step.Output["failed"].([]interface{})
		require.True(t, ok, "failed should be a list, got %T", step.Output["failed"])
		require.Len(t, failures, 2)
		first, ok := failures[0].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "http://169.254.169.254/latest", first["url"])
		assert.Equal(t, "Private/local IP URLs are not allowed.", first["error"])
		second, ok := failures[1].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "https://example.org/empty", second["url"])
		assert.Equal(t, "No text content extracted.", second["error"])

		reloaded, err := client.Source.Get(ctx, good.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.RawContent)
		assert.Equal(t, "Alpha beta gamma delta.", *reloaded.RawContent)
		require.NotNil(t, reloaded.Summary)
		assert.Equal(t, "Alpha beta gamma delta.", *reloaded.Summary)

		// Failed sources keep nil content so a later pass can retry them.
		unread, err := client.Source.Query().
			Where(source.RunIDEQ(run.ID), source.RawContentIsNil()).
			Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, unread)
	})

	t.Run("truncates stored content and summary", func(t *testing.T) {
		long := strings.Repeat("word ", 8000) // ~40k chars of text
		fetcher := &fakeFetcher{pages: map[string]string{
			"https://example.org/long": "<html><body>" + long + "</body></html>",
		}}
		orch, runs := newTestOrchestrator(client.Client, nil, fetcher, nil)
		run := createTestRun(t, runs, "long page")
		insertStep(t, client.Client, run.ID, 1, researchstep.StepTypeSearcher)
		src := insertSource(t, client.Client, run.ID, "https://example.org/long")

		require.NoError(t, orch.RunReader(ctx, run.ID))

		reloaded, err := client.Source.Get(ctx, src.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.RawContent)
		assert.Len(t, []rune(*reloaded.RawContent), 20000)
		require.NotNil(t, reloaded.Summary)
		assert.LessOrEqual(t, len([]rune(*reloaded.Summary)), 900)
	})

	t.Run("attempts at most five unread sources", func(t *testing.T) {
		pages := make(map[string]string)
		urls := make([]string, 0, 7)
		for i := 0; i < 7; i++ {
			url := fmt.Sprintf("https://example.org/page-%d", i)
			urls = append(urls, url)
			pages[url] = fmt.Sprintf("<html><body>Content of page %d</body></html>", i)
		}
		fetcher := &fakeFetcher{pages: pages}
		orch, runs := newTestOrchestrator(client.Client, nil, fetcher, nil)
		run := createTestRun(t, runs, "many sources")
		insertStep(t, client.Client, run.ID, 1, researchstep.StepTypeSearcher)
		for _, url := range urls {
			insertSource(t, client.Client, run.ID, url)
		}

		require.NoError(t, orch.RunReader(ctx, run.ID))

		detail, err := runs.GetRunDetail(ctx, run.ID)
		require.NoError(t, err)
		step := detail.Steps[1]
		assert.Equal(t, float64(5), step.Output["attempted"])
		assert.Equal(t, float64(5), step.Output["read_count"])

		read, err := client.Source.Query().
			Where(source.RunIDEQ(run.ID), source.RawContentNotNil()).
			Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, read)
	})

	t.Run("skips sources that already have content", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]string{
			"https://example.org/fresh": "<html><body>Fresh content</body></html>",
		}}
		orch, runs := newTestOrchestrator(client.Client, nil, fetcher, nil)
		run := createTestRun(t, runs, "partially read")
		insertStep(t, client.Client, run.ID, 1, researchstep.StepTypeSearcher)
		stale := insertSource(t, client.Client, run.ID, "https://example.org/stale")
		require.NoError(t, client.Source.UpdateOneID(stale.ID).SetRawContent("existing text").Exec(ctx))
		insertSource(t, client.Client, run.ID, "https://example.org/fresh")

		require.NoError(t, orch.RunReader(ctx, run.ID))

		detail, err := runs.GetRunDetail(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(1), detail.Steps[1].Output["attempted"])

		reloaded, err := client.Source.Get(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, "existing text", *reloaded.RawContent)
	})

	t.Run("bounds fetch concurrency", func(t *testing.T) {
		pages := make(map[string]string)
		urls := make([]string, 0, 5)
		for i := 0; i < 5; i++ {
			url := fmt.Sprintf("https://example.org/conc-%d", i)
			urls = append(urls, url)
			pages[url] = "<html><body>concurrent page</body></html>"
		}
		fetcher := &fakeFetcher{pages: pages, delay: 30 * time.Millisecond}
		orch, runs := newTestOrchestrator(client.Client, nil, fetcher, nil)
		run := createTestRun(t, runs, "concurrency bound")
		insertStep(t, client.Client, run.ID, 1, researchstep.StepTypeSearcher)
		for _, url := range urls {
			insertSource(t, client.Client, run.ID, url)
		}

		require.NoError(t, orch.RunReader(ctx, run.ID))

		assert.LessOrEqual(t, fetcher.maxInFlight, 4)
		assert.GreaterOrEqual(t, fetcher.maxInFlight, 2, "fetches should overlap")
	})

	t.Run("cancellation fails the stage without committing", func(t *testing.T) {
		orch, runs := newTestOrchestrator(client.Client, nil, nil, nil)
		run := createTestRun(t, runs, "cancelled mid fetch")
		insertStep(t, client.Client, run.ID, 1, researchstep.StepTypeSearcher)
		insertSource(t, client.Client, run.ID, "https://example.org/never")

		fetchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		orch.fetcher = &cancellingFetcher{cancel: cancel}

		err := orch.RunReader(fetchCtx, run.ID)
		require.Error(t, err)

		exists, err := client.ResearchStep.Query().
			Where(researchstep.RunIDEQ(run.ID), researchstep.StepTypeEQ(researchstep.StepTypeReader)).
			Exist(ctx)
		require.NoError(t, err)
		assert.False(t, exists, "cancelled reader must not commit a step")
	})
}
