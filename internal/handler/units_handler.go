package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/service"
)

// Unit catalog endpoints (produtos mestre).

func listUnitsHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := domain.UnitCategory(r.URL.Query().Get("category"))

		units, err := svc.ListActive(r.Context(), category)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"produtos": units,
			"total":    len(units),
		})
	}
}

func getUnitHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		unit, err := svc.GetUnit(r.Context(), code)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, unit)
	}
}

func createUnitHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var unit domain.Unit
		if err := decodeBody(r, &unit); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		created, err := svc.CreateUnit(r.Context(), &unit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateUnitHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "unitId")

		var updates map[string]any
		if err := decodeBody(r, &updates); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		updated, err := svc.UpdateUnit(r.Context(), id, updates)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deactivateUnitHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "unitId")

		if err := svc.DeactivateUnit(r.Context(), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "id": id})
	}
}
