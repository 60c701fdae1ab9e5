package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/service"
)

// Generic takeoff endpoints. The calculator front ends in
// calculators_handler.go wrap these with family-specific deduction rules.

func takeoffHandler(svc *service.TakeoffService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.TakeoffRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resumo, err := svc.Takeoff(r.Context(), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resumo)
	}
}

type compositionTakeoffRequest struct {
	AreaM2 float64 `json:"area_m2"`
}

func takeoffCompositionHandler(svc *service.TakeoffService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compositionID := chi.URLParam(r, "compositionId")

		var req compositionTakeoffRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resumo, err := svc.TakeoffComposition(r.Context(), compositionID, req.AreaM2)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resumo)
	}
}
