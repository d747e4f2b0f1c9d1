package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inquiryos/inquiryos/ent"
	"github.com/inquiryos/inquiryos/ent/researchstep"
	"github.com/inquiryos/inquiryos/pkg/llm"
	"github.com/inquiryos/inquiryos/pkg/models"
	"github.com/inquiryos/inquiryos/pkg/search"
	"github.com/inquiryos/inquiryos/pkg/services"
	"github.com/inquiryos/inquiryos/pkg/webfetch"
	"github.com/stretchr/testify/require"
)

// newTestOrchestrator wires an Orchestrator with scripted collaborators.
// Pass nil for collaborators a test does not touch.
func newTestOrchestrator(client *ent.Client, searchClient search.Client, fetcher PageFetcher, llmClient llm.Client) (*Orchestrator, *services.RunService) {
	runs := services.NewRunService(client, "dummy:dummy-model")
	return NewOrchestrator(client, runs, searchClient, fetcher, llmClient), runs
}

func createTestRun(t *testing.T, runs *services.RunService, query string) *ent.ResearchRun {
	t.Helper()
	run, err := runs.CreateRun(context.Background(), models.CreateRunInput{Query: query})
	require.NoError(t, err)
	return run
}

func insertStep(t *testing.T, client *ent.Client, runID string, index int, stepType researchstep.StepType) {
	t.Helper()
	_, err := client.ResearchStep.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetStepIndex(index).
		SetStepType(stepType).
		SetStatus(researchstep.StatusCompleted).
		Save(context.Background())
	require.NoError(t, err)
}

func insertSource(t *testing.T, client *ent.Client, runID, url string) *ent.Source {
	t.Helper()
	src, err := client.Source.Create().
		SetID(uuid.New().String()).
		SetRunID(runID).
		SetURL(url).
		Save(context.Background())
	require.NoError(t, err)
	return src
}

// fakeSearchClient returns scripted results or a scripted error.
type fakeSearchClient struct {
	results []search.Result
	err     error
	calls   int
}

func (f *fakeSearchClient) Provider() string { return "fake" }

func (f *fakeSearchClient) Search(_ context.Context, _ string, limit int) ([]search.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

// fakeFetcher serves canned HTML per URL and tracks in-flight calls so
// tests can assert the concurrency bound.
type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
	delay time.Duration

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func (f *fakeFetcher) FetchHTML(_ context.Context, url string) (*webfetch.FetchedPage, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if html, ok := f.pages[url]; ok {
		return &webfetch.FetchedPage{URL: url, StatusCode: 200, HTML: html}, nil
	}
	return nil, fmt.Errorf("fetch %s: HTTP 404", url)
}

// fakeLLM returns a scripted completion and records prompts.
type fakeLLM struct {
	completion string
	err        error
	prompts    []string
	opts       []llm.Options
}

func (f *fakeLLM) ProviderName() string { return "fake" }
func (f *fakeLLM) ModelName() string    { return "fake-model" }

func (f *fakeLLM) Generate(_ context.Context, prompt string, opts llm.Options) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return "", f.err
	}
	return f.completion, nil
}
