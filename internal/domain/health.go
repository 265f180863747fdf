package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// OpsMetrics is returned by GET /v1/metrics/ops.
type OpsMetrics struct {
	Transitions          int64   `json:"transitions"`
	TimersStarted        int64   `json:"timersStarted"`
	TimersStopped        int64   `json:"timersStopped"`
	ProductionSeconds    int64   `json:"productionSeconds"`
	ReconciliationDrifts int64   `json:"reconciliationDrifts"`
	PermissionDenials    int64   `json:"permissionDenials"`
	BackfilledRows       int64   `json:"backfilledRows"`
	CacheHitRate         float64 `json:"cacheHitRate"`
	Period               string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
