package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/config"
	"github.com/obraprime/propostas-api/internal/infra/observability"
	"github.com/obraprime/propostas-api/internal/service"
)

// Services groups everything the router needs wired in.
type Services struct {
	Catalog      *service.CatalogService
	Compositions *service.CompositionService
	Mappings     *service.MappingService
	Takeoff      *service.TakeoffService
	Audit        *service.AuditService
}

// NewRouter creates the HTTP router with all routes and middleware.
// Read endpoints are open; everything that mutates the master registries
// requires a Supabase token carrying the admin role.
func NewRouter(svcs Services, metrics *observability.Metrics, cfg *config.Config, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(svcs.Catalog, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	adminOnly := SupabaseAuthMiddleware(cfg.SupabaseJWTSecret, "admin", logger)

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. 📦 Produtos mestre
		// =============================================
		r.Get("/units", listUnitsHandler(svcs.Catalog, logger))
		r.Get("/units/{code}", getUnitHandler(svcs.Catalog, logger))

		// =============================================
		// 2. 🧱 Composições mestre + itens
		// =============================================
		r.Get("/compositions", listCompositionsHandler(svcs.Compositions, logger))
		r.Get("/compositions/{compositionId}", getCompositionHandler(svcs.Compositions, logger))
		r.Post("/compositions/{compositionId}/takeoff", takeoffCompositionHandler(svcs.Takeoff, logger))

		// =============================================
		// 3. 🔗 Mapeamentos tipo de proposta
		// =============================================
		r.Get("/mappings/{proposalType}", listMappingsHandler(svcs.Mappings, logger))

		// =============================================
		// 4. 📐 Levantamento genérico
		// =============================================
		r.Post("/takeoff", takeoffHandler(svcs.Takeoff, logger))

		// =============================================
		// 5. 🧮 Calculadoras por família
		// =============================================
		r.Route("/calculators", func(r chi.Router) {
			r.Post("/drywall", drywallCalculatorHandler(svcs.Takeoff, logger))
			r.Post("/shingle", shingleCalculatorHandler(svcs.Takeoff, logger))
			r.Post("/waterproofing", waterproofingCalculatorHandler(svcs.Takeoff, logger))
			r.Post("/ceiling", ceilingCalculatorHandler(svcs.Takeoff, logger))
			r.Post("/solar", solarCalculatorHandler(svcs.Takeoff, logger))
		})

		// =============================================
		// 6. 📊 Métricas do motor
		// =============================================
		r.Get("/metrics/engine", engineMetricsHandler(metrics, logger))

		// =============================================
		// 7. 🔐 Administração dos cadastros (protected)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)

			r.Post("/units", createUnitHandler(svcs.Catalog, logger))
			r.Put("/units/{unitId}", updateUnitHandler(svcs.Catalog, logger))
			r.Delete("/units/{unitId}", deactivateUnitHandler(svcs.Catalog, logger))

			r.Post("/compositions", createCompositionHandler(svcs.Compositions, logger))
			r.Put("/compositions/{compositionId}", updateCompositionHandler(svcs.Compositions, logger))
			r.Delete("/compositions/{compositionId}", deleteCompositionHandler(svcs.Compositions, logger))

			r.Post("/compositions/{compositionId}/items", addItemHandler(svcs.Compositions, logger))
			r.Put("/compositions/{compositionId}/items/{itemId}", updateItemHandler(svcs.Compositions, logger))
			r.Delete("/compositions/{compositionId}/items/{itemId}", removeItemHandler(svcs.Compositions, logger))
			r.Post("/compositions/{compositionId}/items/swap", swapItemsHandler(svcs.Compositions, logger))

			r.Post("/mappings", createMappingHandler(svcs.Mappings, logger))
			r.Delete("/mappings/{mappingId}", deleteMappingHandler(svcs.Mappings, logger))

			r.Post("/admin/audit", auditHandler(svcs.Audit, logger))
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// readyzHandler probes the catalog through the cache-backed service; a
// failing Supabase upstream flips readiness without killing liveness.
func readyzHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := catalog.ListActive(r.Context(), ""); err != nil {
			logger.Warn("readiness probe failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
