package api

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// PingResponse is returned by GET /api/ping.
type PingResponse struct {
	Message string `json:"message"`
}
