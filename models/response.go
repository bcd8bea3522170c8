package models

// ScrapeResponse is the envelope for POST /api/v1/scrape.
type ScrapeResponse struct {
	Success bool            `json:"success"`
	Data    *ScrapeArtifact `json:"data,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// JobAcceptedResponse is returned when an async job is enqueued.
type JobAcceptedResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Status  string `json:"status"`
}

// JobStatusResponse is the body of GET /api/v1/crawl/:id.
type JobStatusResponse struct {
	Success        bool         `json:"success"`
	ID             string       `json:"id"`
	Status         string       `json:"status"`
	TotalPages     int          `json:"total_pages"`
	CompletedPages int          `json:"completed_pages"`
	Data           []JobResult  `json:"data,omitempty"`
	Error          *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Store   string `json:"store"`
	Version string `json:"version"`
}
