package domain

// EngineMetrics is the snapshot returned by GET /v1/metrics/engine.
type EngineMetrics struct {
	TotalTakeoffs        int64   `json:"total_takeoffs"`
	FailedTakeoffs       int64   `json:"failed_takeoffs"`
	ErrorRate            float64 `json:"error_rate"`
	Recalculations       int64   `json:"recalculations"`
	RecalculationRetries int64   `json:"recalculation_retries"`
	AuditFindings        int64   `json:"audit_findings"`
	CacheHitRate         float64 `json:"cache_hit_rate"`
	Period               string  `json:"period"`
}
