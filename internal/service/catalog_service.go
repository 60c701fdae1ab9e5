package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/infra/observability"
	"github.com/obraprime/propostas-api/internal/port"
)

var catalogTracer = otel.Tracer("service/catalog")

// CatalogService exposes the unit catalog (produto mestre): lookups for the
// takeoff engine and CRUD for the admin screens. Reads go through the
// snapshot cache; any write invalidates the touched entries.
type CatalogService struct {
	store   port.CatalogStore
	cache   port.Cache[*domain.Unit]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCatalogService creates the catalog service with all dependencies injected.
func NewCatalogService(store port.CatalogStore, cache port.Cache[*domain.Unit], metrics *observability.Metrics, logger *zap.Logger) *CatalogService {
	return &CatalogService{store: store, cache: cache, metrics: metrics, logger: logger}
}

// GetUnit fetches one catalog item by code. Not found is surfaced to the
// caller as an input error, never silently defaulted.
func (s *CatalogService) GetUnit(ctx context.Context, code string) (*domain.Unit, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.GetUnit")
	defer span.End()

	cacheKey := fmt.Sprintf("unit:code:%s", code)
	if cached, ok := s.cache.Get(cacheKey); ok {
		s.metrics.IncrCacheHit("units")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("units")

	u, err := s.store.GetUnit(ctx, code)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, u)
	return u, nil
}

// GetUnitByID fetches one catalog item by id.
func (s *CatalogService) GetUnitByID(ctx context.Context, id string) (*domain.Unit, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.GetUnitByID")
	defer span.End()

	cacheKey := fmt.Sprintf("unit:id:%s", id)
	if cached, ok := s.cache.Get(cacheKey); ok {
		s.metrics.IncrCacheHit("units")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("units")

	u, err := s.store.GetUnitByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, u)
	return u, nil
}

// ListActive lists active catalog items, optionally filtered by category.
func (s *CatalogService) ListActive(ctx context.Context, category domain.UnitCategory) ([]domain.Unit, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.ListActive")
	defer span.End()

	if category != "" && !domain.ValidUnitCategory(category) {
		return nil, &domain.ErrValidation{Field: "categoria", Message: fmt.Sprintf("unknown category '%s'", category)}
	}
	return s.store.ListUnits(ctx, category, true)
}

// CreateUnit validates and inserts a catalog item.
func (s *CatalogService) CreateUnit(ctx context.Context, u *domain.Unit) (*domain.Unit, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.CreateUnit")
	defer span.End()

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.Active = true
	if err := u.Validate(); err != nil {
		return nil, err
	}

	created, err := s.store.CreateUnit(ctx, u)
	if err != nil {
		s.logger.Error("failed to create unit", zap.String("codigo", u.Code), zap.Error(err))
		return nil, err
	}

	s.logger.Info("unit created",
		zap.String("id", created.ID),
		zap.String("codigo", created.Code),
		zap.String("categoria", string(created.Category)),
	)
	return created, nil
}

// UpdateUnit patches a catalog item. Only whitelisted fields are written;
// price changes propagate to composition cached totals on the next item
// mutation or audit, not retroactively here.
func (s *CatalogService) UpdateUnit(ctx context.Context, id string, updates map[string]any) (*domain.Unit, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.UpdateUnit")
	defer span.End()

	allowed := map[string]bool{
		"descricao": true, "categoria": true, "unidade_medida": true,
		"preco_unitario": true, "quantidade_embalagem": true,
		"quebra_padrao": true, "aliquota_imposto": true,
		"ativo": true, "especificacoes": true,
	}
	filtered := make(map[string]any, len(updates))
	for k, v := range updates {
		if !allowed[k] {
			return nil, &domain.ErrValidation{Field: k, Message: "field is not updatable"}
		}
		filtered[k] = v
	}
	if len(filtered) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "no updatable fields provided"}
	}
	if v, ok := filtered["preco_unitario"].(float64); ok && v < 0 {
		return nil, &domain.ErrValidation{Field: "preco_unitario", Message: "must not be negative"}
	}
	if v, ok := filtered["quantidade_embalagem"].(float64); ok && v <= 0 {
		return nil, &domain.ErrValidation{Field: "quantidade_embalagem", Message: "must be positive"}
	}
	if v, ok := filtered["especificacoes"].(map[string]any); ok {
		if err := domain.ValidateSpecs(v); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.UpdateUnit(ctx, id, filtered)
	if err != nil {
		return nil, err
	}
	s.invalidate(updated)

	s.logger.Info("unit updated", zap.String("id", id), zap.Int("fields", len(filtered)))
	return updated, nil
}

// DeactivateUnit soft-deletes a catalog item. Takeoffs over compositions
// still referencing it fail loud instead of pricing a stale material.
func (s *CatalogService) DeactivateUnit(ctx context.Context, id string) error {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.DeactivateUnit")
	defer span.End()

	u, err := s.store.GetUnitByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateUnit(ctx, id); err != nil {
		return err
	}
	s.invalidate(u)

	s.logger.Info("unit deactivated", zap.String("id", id), zap.String("codigo", u.Code))
	return nil
}

func (s *CatalogService) invalidate(u *domain.Unit) {
	s.cache.Delete(fmt.Sprintf("unit:id:%s", u.ID))
	s.cache.Delete(fmt.Sprintf("unit:code:%s", u.Code))
}
