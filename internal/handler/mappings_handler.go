package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/service"
)

// Proposal-type mapping endpoints.

func listMappingsHandler(svc *service.MappingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proposalType := chi.URLParam(r, "proposalType")

		mappings, err := svc.ListByType(r.Context(), proposalType)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tipo_proposta": proposalType,
			"mapeamentos":   mappings,
			"total":         len(mappings),
		})
	}
}

func createMappingHandler(svc *service.MappingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m domain.TypeMapping
		if err := decodeBody(r, &m); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		created, err := svc.CreateMapping(r.Context(), &m)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func deleteMappingHandler(svc *service.MappingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "mappingId")

		if err := svc.DeleteMapping(r.Context(), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
	}
}
