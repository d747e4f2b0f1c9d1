package api

// CreateRunRequest is the HTTP request body for POST /api/v1/research-runs.
type CreateRunRequest struct {
	Query string `json:"query"`
	Title string `json:"title,omitempty"`
}

// ExecuteRunRequest is the HTTP request body for POST /api/v1/research-runs/:id/execute.
type ExecuteRunRequest struct {
	Mode string `json:"mode"`
}
