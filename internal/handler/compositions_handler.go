package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/service"
)

// Composition (composição mestre) endpoints, including nested item routes.

func listCompositionsHandler(svc *service.CompositionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := domain.CompositionCategory(r.URL.Query().Get("category"))
		activeOnly := r.URL.Query().Get("include_inactive") != "true"

		comps, err := svc.ListCompositions(r.Context(), category, activeOnly)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"composicoes": comps,
			"total":       len(comps),
		})
	}
}

func getCompositionHandler(svc *service.CompositionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "compositionId")

		comp, err := svc.GetComposition(r.Context(), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, comp)
	}
}

func createCompositionHandler(svc *service.CompositionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var comp domain.Composition
		if err := decodeBody(r, &comp); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		created, err := svc.CreateComposition(r.Context(), &comp)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateCompositionHandler(svc *service.CompositionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "compositionId")

		var updates map[string]any
		if err := decodeBody(r, &updates); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		updated, err := svc.UpdateComposition(r.Context(), id, updates)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteCompositionHandler(svc *service.CompositionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "compositionId")

		if err := svc.DeleteComposition(r.Context(), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
	}
}

func addItemHandler(svc *service.CompositionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compositionID := chi.URLParam(r, "compositionId")

		var item domain.CompositionItem
		if err := decodeBody(r, &item); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		created, err := svc.AddItem(r.Context(), compositionID, &item)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateItemHandler(svc *service.CompositionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compositionID := chi.URLParam(r, "compositionId")
		itemID := chi.URLParam(r, "itemId")

		var updates map[string]any
		if err := decodeBody(r, &updates); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		updated, err := svc.UpdateItem(r.Context(), compositionID, itemID, updates)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func removeItemHandler(svc *service.CompositionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compositionID := chi.URLParam(r, "compositionId")
		itemID := chi.URLParam(r, "itemId")

		if err := svc.RemoveItem(r.Context(), compositionID, itemID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": itemID})
	}
}

type swapRequest struct {
	OrderA int `json:"ordem_a"`
	OrderB int `json:"ordem_b"`
}

func swapItemsHandler(svc *service.CompositionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compositionID := chi.URLParam(r, "compositionId")

		var req swapRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := svc.SwapItems(r.Context(), compositionID, req.OrderA, req.OrderB); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "swapped",
			"ordem_a": req.OrderA,
			"ordem_b": req.OrderB,
		})
	}
}
