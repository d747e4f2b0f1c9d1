// Package e2e provides end-to-end test infrastructure for the research pipeline.
package e2e

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inquiryos/inquiryos/ent"
	"github.com/inquiryos/inquiryos/pkg/api"
	"github.com/inquiryos/inquiryos/pkg/config"
	"github.com/inquiryos/inquiryos/pkg/database"
	"github.com/inquiryos/inquiryos/pkg/pipeline"
	"github.com/inquiryos/inquiryos/pkg/services"
	testdb "github.com/inquiryos/inquiryos/test/database"
)

// TestApp boots a complete InquiryOS instance for e2e testing: a real
// Postgres schema, real services and orchestrator, and an HTTP server on
// a random port. Only the outbound backends (LLM, search, page fetch)
// are scripted.
type TestApp struct {
	// Core
	Config    *config.Settings
	DBClient  *database.Client
	EntClient *ent.Client

	// Scripted backends
	LLM     *ScriptedLLMClient
	Search  *ScriptedSearchClient
	Fetcher *StubFetcher

	// Real infrastructure
	Runs         *services.RunService
	Orchestrator *pipeline.Orchestrator
	Server       *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llmClient    *ScriptedLLMClient
	searchClient *ScriptedSearchClient
	fetcher      *StubFetcher
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMClient sets a pre-scripted LLM client.
func WithLLMClient(client *ScriptedLLMClient) TestAppOption {
	return func(c *testAppConfig) { c.llmClient = client }
}

// WithSearchClient sets a pre-scripted search backend.
func WithSearchClient(client *ScriptedSearchClient) TestAppOption {
	return func(c *testAppConfig) { c.searchClient = client }
}

// WithFetcher sets a pre-stocked page fetcher.
func WithFetcher(fetcher *StubFetcher) TestAppOption {
	return func(c *testAppConfig) { c.fetcher = fetcher }
}

// NewTestApp creates and starts a full InquiryOS test instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llmClient == nil {
		tc.llmClient = NewScriptedLLMClient()
	}
	if tc.searchClient == nil {
		tc.searchClient = NewScriptedSearchClient()
	}
	if tc.fetcher == nil {
		tc.fetcher = NewStubFetcher()
	}

	cfg := &config.Settings{
		LLMProvider: "scripted",
		LLMModel:    "scripted-model",
	}

	// 1. Database: per-test schema, cleaned up by the test client.
	dbClient := testdb.NewTestClient(t)
	entClient := dbClient.Client

	// 2. Domain services and orchestrator over the scripted backends.
	runs := services.NewRunService(entClient, fmt.Sprintf("%s:%s", cfg.LLMProvider, cfg.LLMModel))
	orchestrator := pipeline.NewOrchestrator(entClient, runs, tc.searchClient, tc.fetcher, tc.llmClient)

	// 3. HTTP server on a random port.
	server := api.NewServer(cfg, dbClient, runs, orchestrator)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	app := &TestApp{
		Config:       cfg,
		DBClient:     dbClient,
		EntClient:    entClient,
		LLM:          tc.llmClient,
		Search:       tc.searchClient,
		Fetcher:      tc.fetcher,
		Runs:         runs,
		Orchestrator: orchestrator,
		Server:       server,
		BaseURL:      fmt.Sprintf("http://%s", ln.Addr().String()),
		t:            t,
	}

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		// DB cleanup handled by testdb.NewTestClient/SetupTestDatabase
	})

	return app
}
