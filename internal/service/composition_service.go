package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/infra/observability"
	"github.com/obraprime/propostas-api/internal/port"
)

var compTracer = otel.Tracer("service/composition")

// totalEpsilon is the divergence tolerated between a cached composition
// total and the sum re-derived from its items before the difference counts
// as an inconsistency rather than float rounding.
const totalEpsilon = 1e-6

// CompositionService maintains the composition registry and enforces its
// core invariant: the cached valor_total_m2 always equals the sum of the
// items' per-m² values.
//
// Every item mutation recomputes the parent's cached total. Writers to the
// same composition serialize on an in-process per-composition mutex, and the
// cached-total write itself carries an optimistic version check in the store,
// so concurrent processes cannot overwrite each other's recalculation either.
type CompositionService struct {
	store   port.CompositionStore
	catalog *CatalogService
	metrics *observability.Metrics
	logger  *zap.Logger

	recalcRetries int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCompositionService creates the composition service with all
// dependencies injected. recalcRetries bounds how many optimistic version
// conflicts one recalculation tolerates before giving up.
func NewCompositionService(store port.CompositionStore, catalog *CatalogService, recalcRetries int, metrics *observability.Metrics, logger *zap.Logger) *CompositionService {
	if recalcRetries < 1 {
		recalcRetries = 1
	}
	return &CompositionService{
		store:         store,
		catalog:       catalog,
		metrics:       metrics,
		logger:        logger,
		recalcRetries: recalcRetries,
		locks:         make(map[string]*sync.Mutex),
	}
}

// lockFor returns the single-writer mutex for one composition.
func (s *CompositionService) lockFor(compositionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[compositionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[compositionID] = l
	}
	return l
}

// ============================================================
// Compositions
// ============================================================

// GetComposition returns the header plus its items in order.
func (s *CompositionService) GetComposition(ctx context.Context, id string) (*domain.Composition, error) {
	ctx, span := compTracer.Start(ctx, "CompositionService.GetComposition")
	defer span.End()

	return s.store.GetComposition(ctx, id)
}

// ListCompositions lists headers, optionally filtered by category.
func (s *CompositionService) ListCompositions(ctx context.Context, category domain.CompositionCategory, activeOnly bool) ([]domain.Composition, error) {
	ctx, span := compTracer.Start(ctx, "CompositionService.ListCompositions")
	defer span.End()

	if category != "" && !domain.ValidCompositionCategory(category) {
		return nil, &domain.ErrValidation{Field: "categoria", Message: fmt.Sprintf("unknown category '%s'", category)}
	}
	return s.store.ListCompositions(ctx, category, activeOnly)
}

// CreateComposition validates and inserts an empty composition. Items are
// added afterwards, each add re-establishing the cached total.
func (s *CompositionService) CreateComposition(ctx context.Context, c *domain.Composition) (*domain.Composition, error) {
	ctx, span := compTracer.Start(ctx, "CompositionService.CreateComposition")
	defer span.End()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Active = true
	c.Version = 0
	c.TotalPerM2 = 0
	c.Items = nil
	if err := c.Validate(); err != nil {
		return nil, err
	}

	created, err := s.store.CreateComposition(ctx, c)
	if err != nil {
		s.logger.Error("failed to create composition", zap.String("codigo", c.Code), zap.Error(err))
		return nil, err
	}
	s.logger.Info("composition created",
		zap.String("id", created.ID),
		zap.String("codigo", created.Code),
		zap.String("categoria", string(created.Category)),
	)
	return created, nil
}

// UpdateComposition patches header fields. The cached total and version are
// never writable here; they only move through recalculation.
func (s *CompositionService) UpdateComposition(ctx context.Context, id string, updates map[string]any) (*domain.Composition, error) {
	ctx, span := compTracer.Start(ctx, "CompositionService.UpdateComposition")
	defer span.End()

	allowed := map[string]bool{"nome": true, "categoria": true, "observacoes": true, "ativo": true}
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
	if v, ok := filtered["categoria"].(string); ok && !domain.ValidCompositionCategory(domain.CompositionCategory(v)) {
		return nil, &domain.ErrValidation{Field: "categoria", Message: fmt.Sprintf("unknown category '%s'", v)}
	}

	return s.store.UpdateComposition(ctx, id, filtered)
}

// DeleteComposition removes a composition and its items.
func (s *CompositionService) DeleteComposition(ctx context.Context, id string) error {
	ctx, span := compTracer.Start(ctx, "CompositionService.DeleteComposition")
	defer span.End()

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.store.GetComposition(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteComposition(ctx, id); err != nil {
		return err
	}
	s.logger.Info("composition deleted", zap.String("id", id))
	return nil
}

// ============================================================
// Items — every mutation re-establishes the cached total
// ============================================================

// AddItem validates, prices and inserts one item, then recalculates the
// parent's cached total under the single-writer lock.
func (s *CompositionService) AddItem(ctx context.Context, compositionID string, item *domain.CompositionItem) (*domain.CompositionItem, error) {
	ctx, span := compTracer.Start(ctx, "CompositionService.AddItem")
	defer span.End()
	span.SetAttributes(attribute.String("composition.id", compositionID))

	lock := s.lockFor(compositionID)
	lock.Lock()
	defer lock.Unlock()

	comp, err := s.store.GetComposition(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.CompositionID = compositionID
	if item.Correction == 0 {
		item.Correction = 1.0
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	unit, err := s.catalog.GetUnitByID(ctx, item.UnitID)
	if err != nil {
		return nil, err
	}
	if !unit.Active {
		return nil, &domain.ErrValidation{Field: "produto_id", Message: "unit is inactive"}
	}

	// Default the order to the end of the item list; explicit orders must be
	// unique within the composition.
	maxOrder := 0
	for i := range comp.Items {
		if comp.Items[i].Order > maxOrder {
			maxOrder = comp.Items[i].Order
		}
		if item.Order != 0 && comp.Items[i].Order == item.Order {
			return nil, &domain.ErrConflict{Message: fmt.Sprintf("ordem %d already in use", item.Order)}
		}
	}
	if item.Order == 0 {
		item.Order = maxOrder + 1
	}

	item.UnitPriceSnapshot = unit.UnitPrice
	item.ValuePerM2 = itemValuePerM2(item, unit)

	created, err := s.store.InsertItem(ctx, item)
	if err != nil {
		return nil, err
	}

	if err := s.recalcLocked(ctx, compositionID); err != nil {
		// The item is in but the cached total could not absorb it. Roll the
		// insert back so the invariant holds; a failed rollback leaves the
		// divergence to the price audit.
		if delErr := s.store.DeleteItem(ctx, created.ID); delErr != nil {
			s.logger.Error("failed to roll back item after recalculation failure",
				zap.String("composicao_id", compositionID),
				zap.String("item_id", created.ID),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	s.logger.Info("composition item added",
		zap.String("composicao_id", compositionID),
		zap.String("item_id", created.ID),
		zap.String("produto_id", created.UnitID),
		zap.Float64("valor_m2", created.ValuePerM2),
	)
	return created, nil
}

// UpdateItem patches one item's physical ratios, then recalculates.
func (s *CompositionService) UpdateItem(ctx context.Context, compositionID, itemID string, updates map[string]any) (*domain.CompositionItem, error) {
	ctx, span := compTracer.Start(ctx, "CompositionService.UpdateItem")
	defer span.End()

	lock := s.lockFor(compositionID)
	lock.Lock()
	defer lock.Unlock()

	allowed := map[string]bool{"consumo_m2": true, "quebra_aplicada": true, "fator_correcao": true, "ordem": true}
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
	if v, ok := filtered["consumo_m2"].(float64); ok && v <= 0 {
		return nil, &domain.ErrValidation{Field: "consumo_m2", Message: "must be positive"}
	}
	if v, ok := filtered["fator_correcao"].(float64); ok && v <= 0 {
		return nil, &domain.ErrValidation{Field: "fator_correcao", Message: "must be positive"}
	}
	if v, ok := filtered["quebra_aplicada"].(float64); ok && (v < 0 || v > 1) {
		return nil, &domain.ErrValidation{Field: "quebra_aplicada", Message: "must be a fraction between 0 and 1"}
	}

	if err := s.ensureItemOwned(ctx, compositionID, itemID); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateItem(ctx, itemID, filtered)
	if err != nil {
		return nil, err
	}

	// recalcLocked refreshes the item's derived snapshot along with the total.
	if err := s.recalcLocked(ctx, compositionID); err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveItem deletes one item, then recalculates the parent's cached total.
func (s *CompositionService) RemoveItem(ctx context.Context, compositionID, itemID string) error {
	ctx, span := compTracer.Start(ctx, "CompositionService.RemoveItem")
	defer span.End()

	lock := s.lockFor(compositionID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.ensureItemOwned(ctx, compositionID, itemID); err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	if err := s.recalcLocked(ctx, compositionID); err != nil {
		return err
	}

	s.logger.Info("composition item removed",
		zap.String("composicao_id", compositionID),
		zap.String("item_id", itemID),
	)
	return nil
}

// SwapItems exchanges the display/calculation order of two items. The unique
// (composicao_id, ordem) constraint forces a three-step write through a
// temporary order value.
func (s *CompositionService) SwapItems(ctx context.Context, compositionID string, orderA, orderB int) error {
	ctx, span := compTracer.Start(ctx, "CompositionService.SwapItems")
	defer span.End()

	if orderA == orderB {
		return &domain.ErrValidation{Field: "ordem", Message: "orders must differ"}
	}

	lock := s.lockFor(compositionID)
	lock.Lock()
	defer lock.Unlock()

	items, err := s.store.ListItems(ctx, compositionID)
	if err != nil {
		return err
	}

	var itemA, itemB *domain.CompositionItem
	maxOrder := 0
	for i := range items {
		if items[i].Order > maxOrder {
			maxOrder = items[i].Order
		}
		switch items[i].Order {
		case orderA:
			itemA = &items[i]
		case orderB:
			itemB = &items[i]
		}
	}
	if itemA == nil {
		return &domain.ErrNotFound{Resource: "composicao_item", ID: fmt.Sprintf("ordem %d", orderA)}
	}
	if itemB == nil {
		return &domain.ErrNotFound{Resource: "composicao_item", ID: fmt.Sprintf("ordem %d", orderB)}
	}

	tmp := maxOrder + 1
	if _, err := s.store.UpdateItem(ctx, itemA.ID, map[string]any{"ordem": tmp}); err != nil {
		return err
	}
	if _, err := s.store.UpdateItem(ctx, itemB.ID, map[string]any{"ordem": orderA}); err != nil {
		return err
	}
	if _, err := s.store.UpdateItem(ctx, itemA.ID, map[string]any{"ordem": orderB}); err != nil {
		return err
	}

	// Reordering does not change the sum, but it is still an item mutation:
	// keep the invariant re-established on every write path.
	return s.recalcLocked(ctx, compositionID)
}

func (s *CompositionService) ensureItemOwned(ctx context.Context, compositionID, itemID string) error {
	items, err := s.store.ListItems(ctx, compositionID)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == itemID {
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "composicao_item", ID: itemID}
}

// ============================================================
// Recalculation
// ============================================================

// recalcLocked re-derives the cached total from the current items and unit
// prices, refreshes stale item snapshots, and writes the total with the
// optimistic version check. The caller must hold the composition's lock.
func (s *CompositionService) recalcLocked(ctx context.Context, compositionID string) error {
	ctx, span := compTracer.Start(ctx, "CompositionService.recalc")
	defer span.End()
	span.SetAttributes(attribute.String("composition.id", compositionID))

	var lastErr error
	for attempt := 0; attempt < s.recalcRetries; attempt++ {
		comp, err := s.store.GetComposition(ctx, compositionID)
		if err != nil {
			s.metrics.IncrRecalculation("error")
			return err
		}

		total := 0.0
		for i := range comp.Items {
			item := &comp.Items[i]
			unit, err := s.catalog.GetUnitByID(ctx, item.UnitID)
			if err != nil {
				s.metrics.IncrRecalculation("error")
				return err
			}

			value := itemValuePerM2(item, unit)
			total += value

			// A unit price change since the item was written leaves its
			// display snapshot stale; refresh it while we hold the lock.
			if math.Abs(value-item.ValuePerM2) > totalEpsilon || math.Abs(unit.UnitPrice-item.UnitPriceSnapshot) > totalEpsilon {
				if _, err := s.store.UpdateItem(ctx, item.ID, map[string]any{
					"preco_unitario": unit.UnitPrice,
					"valor_m2":       value,
				}); err != nil {
					s.metrics.IncrRecalculation("error")
					return err
				}
			}
		}

		err = s.store.UpdateCachedTotal(ctx, compositionID, total, comp.Version)
		if err == nil {
			s.metrics.IncrRecalculation("success")
			s.logger.Debug("composition total recalculated",
				zap.String("composicao_id", compositionID),
				zap.Float64("valor_total_m2", total),
				zap.Int64("version", comp.Version+1),
			)
			return nil
		}

		var conflict *domain.ErrConflict
		if !errors.As(err, &conflict) {
			s.metrics.IncrRecalculation("error")
			return err
		}
		// Another process bumped the version between our read and write;
		// re-read and re-derive.
		s.metrics.IncrRecalculation("conflict")
		lastErr = err
	}
	return lastErr
}
