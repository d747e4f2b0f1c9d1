package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inquiryos/inquiryos/ent"
	"github.com/inquiryos/inquiryos/ent/answer"
	"github.com/inquiryos/inquiryos/ent/pipelineevent"
	"github.com/inquiryos/inquiryos/ent/researchstep"
	"github.com/inquiryos/inquiryos/ent/source"
)

// ────────────────────────────────────────────────────────────
// HTTP Client Helpers
// ────────────────────────────────────────────────────────────

// CreateRun posts a research run and returns the parsed response.
func (app *TestApp) CreateRun(t *testing.T, query string) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{"query": query}
	return app.postJSON(t, "/api/v1/research-runs", body, http.StatusCreated)
}

// GetRun retrieves a run by ID, expecting the given status code.
func (app *TestApp) GetRun(t *testing.T, runID string, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/api/v1/research-runs/"+runID, expectedStatus)
}

// GetRunDetail calls GET /api/v1/research-runs/:id/detail.
func (app *TestApp) GetRunDetail(t *testing.T, runID string) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/api/v1/research-runs/"+runID+"/detail", http.StatusOK)
}

// GetRunState calls GET /api/v1/research-runs/:id/state.
func (app *TestApp) GetRunState(t *testing.T, runID string) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/api/v1/research-runs/"+runID+"/state", http.StatusOK)
}

// ListRuns calls GET /api/v1/research-runs with optional query params.
func (app *TestApp) ListRuns(t *testing.T, queryParams string) map[string]interface{} {
	t.Helper()
	path := "/api/v1/research-runs"
	if queryParams != "" {
		path += "?" + queryParams
	}
	return app.getJSON(t, path, http.StatusOK)
}

// ExecuteRun calls POST /api/v1/research-runs/:id/execute with the given mode.
func (app *TestApp) ExecuteRun(t *testing.T, runID, mode string, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/research-runs/"+runID+"/execute",
		map[string]string{"mode": mode}, expectedStatus)
}

// RunSearchDummy calls POST /api/v1/research-runs/:id/search-dummy.
func (app *TestApp) RunSearchDummy(t *testing.T, runID string, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/research-runs/"+runID+"/search-dummy", nil, expectedStatus)
}

// RunReadDummy calls POST /api/v1/research-runs/:id/read-dummy.
func (app *TestApp) RunReadDummy(t *testing.T, runID string, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/research-runs/"+runID+"/read-dummy", nil, expectedStatus)
}

// RunSynthesizeDummy calls POST /api/v1/research-runs/:id/synthesize-dummy.
func (app *TestApp) RunSynthesizeDummy(t *testing.T, runID string, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/v1/research-runs/"+runID+"/synthesize-dummy", nil, expectedStatus)
}

// GetHealth calls GET /health.
func (app *TestApp) GetHealth(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/health", http.StatusOK)
}

func (app *TestApp) postJSON(t *testing.T, path string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, app.BaseURL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

// ────────────────────────────────────────────────────────────
// DB Query Helpers
// ────────────────────────────────────────────────────────────

// QuerySteps returns all steps for a run, ordered by step_index.
func (app *TestApp) QuerySteps(t *testing.T, runID string) []*ent.ResearchStep {
	t.Helper()
	steps, err := app.EntClient.ResearchStep.Query().
		Where(researchstep.RunIDEQ(runID)).
		Order(ent.Asc(researchstep.FieldStepIndex)).
		All(context.Background())
	require.NoError(t, err)
	return steps
}

// QuerySources returns all sources for a run, in insertion order.
func (app *TestApp) QuerySources(t *testing.T, runID string) []*ent.Source {
	t.Helper()
	sources, err := app.EntClient.Source.Query().
		Where(source.RunIDEQ(runID)).
		Order(ent.Asc(source.FieldCreatedAt)).
		All(context.Background())
	require.NoError(t, err)
	return sources
}

// QueryEvents returns all pipeline events for a run, oldest first.
func (app *TestApp) QueryEvents(t *testing.T, runID string) []*ent.PipelineEvent {
	t.Helper()
	events, err := app.EntClient.PipelineEvent.Query().
		Where(pipelineevent.RunIDEQ(runID)).
		Order(ent.Asc(pipelineevent.FieldCreatedAt)).
		All(context.Background())
	require.NoError(t, err)
	return events
}

// QueryAnswer returns the run's answer, or nil when none exists.
func (app *TestApp) QueryAnswer(t *testing.T, runID string) *ent.Answer {
	t.Helper()
	ans, err := app.EntClient.Answer.Query().
		Where(answer.RunIDEQ(runID)).
		Only(context.Background())
	if ent.IsNotFound(err) {
		return nil
	}
	require.NoError(t, err)
	return ans
}

// ────────────────────────────────────────────────────────────
// JSON Projection Helpers
// ────────────────────────────────────────────────────────────

// jsonSlice extracts a []interface{} field from a decoded JSON object.
// Returns an empty slice when the field is absent or null.
func jsonSlice(m map[string]interface{}, key string) []interface{} {
	v, ok := m[key].([]interface{})
	if !ok {
		return []interface{}{}
	}
	return v
}

// jsonObject extracts a nested object field from a decoded JSON object.
func jsonObject(t *testing.T, m map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	v, ok := m[key].(map[string]interface{})
	require.True(t, ok, "field %q is not an object (got %T)", key, m[key])
	return v
}

// stepTypes projects the step_type of each step JSON object, in order.
func stepTypes(t *testing.T, steps []interface{}) []string {
	t.Helper()
	types := make([]string, 0, len(steps))
	for _, raw := range steps {
		step, ok := raw.(map[string]interface{})
		require.True(t, ok, "step is not an object (got %T)", raw)
		types = append(types, fmt.Sprintf("%v", step["step_type"]))
	}
	return types
}
