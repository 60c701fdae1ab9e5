package domain

import "time"

// AuditFinding is one cached-total divergence detected by the price audit.
type AuditFinding struct {
	CompositionID   string  `json:"composicao_id"`
	CompositionCode string  `json:"codigo"`
	CachedTotal     float64 `json:"valor_cacheado"`
	DerivedTotal    float64 `json:"valor_derivado"`
	Delta           float64 `json:"diferenca"`
}

// AuditReport is the result of one price-audit run over the active
// compositions. A clean run has zero findings.
type AuditReport struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Checked    int            `json:"composicoes_verificadas"`
	Findings   []AuditFinding `json:"divergencias"`
}
