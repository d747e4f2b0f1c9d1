package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/inquiryos/inquiryos/ent/pipelineevent"
	"github.com/inquiryos/inquiryos/pkg/models"
)

// createRunHandler handles POST /api/v1/research-runs.
// Creates a run in "pending" status with its planner step already
// committed; pipeline stages run only when explicitly triggered.
func (s *Server) createRunHandler(c *echo.Context) error {
	var req CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	run, err := s.runs.CreateRun(c.Request().Context(), models.CreateRunInput{
		Query: req.Query,
		Title: req.Title,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, run)
}

// listRunsHandler handles GET /api/v1/research-runs.
func (s *Server) listRunsHandler(c *echo.Context) error {
	limit := 0
	offset := 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	result, err := s.runs.ListRuns(c.Request().Context(), limit, offset)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// getRunHandler handles GET /api/v1/research-runs/:id.
func (s *Server) getRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	run, err := s.runs.GetRun(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, run)
}

// runDetailHandler handles GET /api/v1/research-runs/:id/detail.
func (s *Server) runDetailHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	detail, err := s.runs.GetRunDetail(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, detail)
}

// runStateHandler handles GET /api/v1/research-runs/:id/state.
func (s *Server) runStateHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	state, err := s.runs.GetRunState(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, state)
}

// searchDummyHandler handles POST /api/v1/research-runs/:id/search-dummy.
// Runs the canned searcher stage and returns the refreshed run detail.
func (s *Server) searchDummyHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	if err := s.orchestrator.RunDummySearch(c.Request().Context(), runID); err != nil {
		return mapServiceError(err)
	}

	detail, err := s.runs.GetRunDetail(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, detail)
}

// readDummyHandler handles POST /api/v1/research-runs/:id/read-dummy.
func (s *Server) readDummyHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	if err := s.orchestrator.RunDummyReader(c.Request().Context(), runID); err != nil {
		return mapServiceError(err)
	}

	detail, err := s.runs.GetRunDetail(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, detail)
}

// synthesizeDummyHandler handles POST /api/v1/research-runs/:id/synthesize-dummy.
func (s *Server) synthesizeDummyHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	if err := s.orchestrator.RunDummySynthesis(c.Request().Context(), runID); err != nil {
		return mapServiceError(err)
	}

	detail, err := s.runs.GetRunDetail(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, detail)
}

// executeRunHandler handles POST /api/v1/research-runs/:id/execute.
// Runs every missing stage in order; repeated calls converge on a
// completed run.
func (s *Server) executeRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	var req ExecuteRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var mode pipelineevent.Mode
	switch req.Mode {
	case "dummy":
		mode = pipelineevent.ModeDummy
	case "real":
		mode = pipelineevent.ModeReal
	default:
		return echo.NewHTTPError(http.StatusBadRequest, `mode must be "dummy" or "real"`)
	}

	detail, err := s.orchestrator.Execute(c.Request().Context(), runID, mode)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, detail)
}
