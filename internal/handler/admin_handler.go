package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/infra/observability"
	"github.com/obraprime/propostas-api/internal/service"
)

// Administrative endpoints: the price-drift audit and the engine metrics
// snapshot.

func auditHandler(svc *service.AuditService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.AuditCompositions(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func engineMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetEngineSnapshot())
	}
}
