package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/infra/cache"
	"github.com/obraprime/propostas-api/internal/infra/observability"
	"github.com/obraprime/propostas-api/internal/service"
)

func newCompositionService(catalog *mockCatalogStore, comps *mockCompositionStore, recalcRetries int) *service.CompositionService {
	catalogSvc := service.NewCatalogService(catalog, cache.New[*domain.Unit](time.Minute), observability.NewMetrics(), zap.NewNop())
	return service.NewCompositionService(comps, catalogSvc, recalcRetries, observability.NewMetrics(), zap.NewNop())
}

func emptyComposition(id string) *domain.Composition {
	return &domain.Composition{
		ID: id, Code: "COMP-" + id, Name: "Composição " + id,
		Category: domain.CompVedacaoExterna, Active: true,
	}
}

func TestAddItem_RecalculatesCachedTotal(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{"unit-osb": osbUnit()}}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{
		"comp-1": emptyComposition("comp-1"),
	}}

	svc := newCompositionService(catalog, comps, 3)

	created, err := svc.AddItem(context.Background(), "comp-1", &domain.CompositionItem{
		UnitID:           "unit-osb",
		ConsumptionPerM2: 1.05,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Waste falls back to the unit default (10%), correction defaults to 1,
	// and the derived per-m² snapshot is taken from the current unit price.
	want := 1.05 * 1.10 * 28.50
	if math.Abs(created.ValuePerM2-want) > 1e-9 {
		t.Errorf("expected valor_m2 %f, got %f", want, created.ValuePerM2)
	}
	if created.UnitPriceSnapshot != 28.50 {
		t.Errorf("expected price snapshot 28.50, got %f", created.UnitPriceSnapshot)
	}
	if created.Order != 1 {
		t.Errorf("expected order defaulted to 1, got %d", created.Order)
	}

	comp, err := svc.GetComposition(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if math.Abs(comp.TotalPerM2-want) > 1e-9 {
		t.Errorf("expected cached total %f, got %f", want, comp.TotalPerM2)
	}
	if comp.Version != 1 {
		t.Errorf("expected version bumped to 1, got %d", comp.Version)
	}
}

func TestAddItem_OrderClash(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{
		"unit-osb":   osbUnit(),
		"unit-screw": screwUnit(),
	}}
	comp := emptyComposition("comp-1")
	comp.Items = []domain.CompositionItem{
		{ID: "item-1", CompositionID: "comp-1", UnitID: "unit-osb", ConsumptionPerM2: 1.05, Correction: 1.0, Order: 3},
	}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{"comp-1": comp}}

	svc := newCompositionService(catalog, comps, 3)

	_, err := svc.AddItem(context.Background(), "comp-1", &domain.CompositionItem{
		UnitID:           "unit-screw",
		ConsumptionPerM2: 10,
		Order:            3,
	})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAddItem_InactiveUnit(t *testing.T) {
	plate := osbUnit()
	plate.Active = false
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{"unit-osb": plate}}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{
		"comp-1": emptyComposition("comp-1"),
	}}

	svc := newCompositionService(catalog, comps, 3)

	_, err := svc.AddItem(context.Background(), "comp-1", &domain.CompositionItem{
		UnitID:           "unit-osb",
		ConsumptionPerM2: 1.05,
	})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestUpdateItem_RecalculatesAndRefreshesSnapshot(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{"unit-osb": osbUnit()}}
	comp := emptyComposition("comp-1")
	comp.Version = 4
	comp.Items = []domain.CompositionItem{
		// Snapshot taken when the plate cost R$25.00; the catalog now says 28.50.
		{ID: "item-1", CompositionID: "comp-1", UnitID: "unit-osb", ConsumptionPerM2: 1.05,
			Waste: fraction(0.10), Correction: 1.0, Order: 1,
			UnitPriceSnapshot: 25.00, ValuePerM2: 1.05 * 1.10 * 25.00},
	}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{"comp-1": comp}}

	svc := newCompositionService(catalog, comps, 3)

	_, err := svc.UpdateItem(context.Background(), "comp-1", "item-1", map[string]any{"consumo_m2": 2.0})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	after, err := svc.GetComposition(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := 2.0 * 1.10 * 28.50
	if math.Abs(after.TotalPerM2-want) > 1e-9 {
		t.Errorf("expected cached total %f, got %f", want, after.TotalPerM2)
	}
	if after.Version != 5 {
		t.Errorf("expected version bumped to 5, got %d", after.Version)
	}
	// The stale price snapshot was refreshed during recalculation.
	if after.Items[0].UnitPriceSnapshot != 28.50 {
		t.Errorf("expected refreshed price snapshot 28.50, got %f", after.Items[0].UnitPriceSnapshot)
	}
	if math.Abs(after.Items[0].ValuePerM2-want) > 1e-9 {
		t.Errorf("expected refreshed valor_m2 %f, got %f", want, after.Items[0].ValuePerM2)
	}
}

func TestUpdateItem_RejectsUnknownField(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{"unit-osb": osbUnit()}}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{
		"comp-1": emptyComposition("comp-1"),
	}}

	svc := newCompositionService(catalog, comps, 3)

	_, err := svc.UpdateItem(context.Background(), "comp-1", "item-1", map[string]any{"valor_m2": 999.0})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRemoveItem_RecalculatesCachedTotal(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{
		"unit-osb":   osbUnit(),
		"unit-screw": screwUnit(),
	}}
	comp := emptyComposition("comp-1")
	comp.Items = []domain.CompositionItem{
		{ID: "item-1", CompositionID: "comp-1", UnitID: "unit-osb", ConsumptionPerM2: 1.05,
			Waste: fraction(0.10), Correction: 1.0, Order: 1,
			UnitPriceSnapshot: 28.50, ValuePerM2: 1.05 * 1.10 * 28.50},
		{ID: "item-2", CompositionID: "comp-1", UnitID: "unit-screw", ConsumptionPerM2: 10,
			Waste: fraction(0.05), Correction: 1.0, Order: 2,
			UnitPriceSnapshot: 0.18, ValuePerM2: 10 * 1.05 * 0.18},
	}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{"comp-1": comp}}

	svc := newCompositionService(catalog, comps, 3)

	if err := svc.RemoveItem(context.Background(), "comp-1", "item-2"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	after, err := svc.GetComposition(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(after.Items) != 1 {
		t.Fatalf("expected 1 item left, got %d", len(after.Items))
	}
	want := 1.05 * 1.10 * 28.50
	if math.Abs(after.TotalPerM2-want) > 1e-9 {
		t.Errorf("expected cached total %f, got %f", want, after.TotalPerM2)
	}
}

func TestRemoveItem_NotOwned(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{"unit-osb": osbUnit()}}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{
		"comp-1": emptyComposition("comp-1"),
		"comp-2": emptyComposition("comp-2"),
	}}
	comps.comps["comp-2"].Items = []domain.CompositionItem{
		{ID: "item-other", CompositionID: "comp-2", UnitID: "unit-osb", ConsumptionPerM2: 1, Correction: 1, Order: 1},
	}

	svc := newCompositionService(catalog, comps, 3)

	// item-other belongs to comp-2, not comp-1.
	err := svc.RemoveItem(context.Background(), "comp-1", "item-other")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSwapItems(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{
		"unit-osb":   osbUnit(),
		"unit-screw": screwUnit(),
	}}
	comp := emptyComposition("comp-1")
	comp.Items = []domain.CompositionItem{
		{ID: "item-1", CompositionID: "comp-1", UnitID: "unit-osb", ConsumptionPerM2: 1.05,
			Waste: fraction(0.10), Correction: 1.0, Order: 1,
			UnitPriceSnapshot: 28.50, ValuePerM2: 1.05 * 1.10 * 28.50},
		{ID: "item-2", CompositionID: "comp-1", UnitID: "unit-screw", ConsumptionPerM2: 10,
			Waste: fraction(0.05), Correction: 1.0, Order: 2,
			UnitPriceSnapshot: 0.18, ValuePerM2: 10 * 1.05 * 0.18},
	}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{"comp-1": comp}}

	svc := newCompositionService(catalog, comps, 3)

	if err := svc.SwapItems(context.Background(), "comp-1", 1, 2); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	after, err := svc.GetComposition(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if after.Items[0].ID != "item-2" || after.Items[1].ID != "item-1" {
		t.Errorf("expected order swapped, got %s then %s", after.Items[0].ID, after.Items[1].ID)
	}

	// Reordering never changes the total.
	want := 1.05*1.10*28.50 + 10*1.05*0.18
	if math.Abs(after.TotalPerM2-want) > 1e-9 {
		t.Errorf("expected cached total %f, got %f", want, after.TotalPerM2)
	}
}

func TestSwapItems_UnknownOrder(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{"unit-osb": osbUnit()}}
	comp := emptyComposition("comp-1")
	comp.Items = []domain.CompositionItem{
		{ID: "item-1", CompositionID: "comp-1", UnitID: "unit-osb", ConsumptionPerM2: 1.05, Correction: 1.0, Order: 1},
	}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{"comp-1": comp}}

	svc := newCompositionService(catalog, comps, 3)

	err := svc.SwapItems(context.Background(), "comp-1", 1, 9)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecalculation_RetriesOnVersionConflict(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{"unit-osb": osbUnit()}}
	comps := &mockCompositionStore{
		comps:         map[string]*domain.Composition{"comp-1": emptyComposition("comp-1")},
		conflictsLeft: 1,
	}

	svc := newCompositionService(catalog, comps, 3)

	_, err := svc.AddItem(context.Background(), "comp-1", &domain.CompositionItem{
		UnitID:           "unit-osb",
		ConsumptionPerM2: 1.05,
	})
	if err != nil {
		t.Fatalf("expected conflict to be retried, got %v", err)
	}
	if comps.totalWrites != 1 {
		t.Errorf("expected exactly one successful total write, got %d", comps.totalWrites)
	}
}

func TestRecalculation_GivesUpAfterRetries(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{"unit-osb": osbUnit()}}
	comps := &mockCompositionStore{
		comps:         map[string]*domain.Composition{"comp-1": emptyComposition("comp-1")},
		conflictsLeft: 10,
	}

	svc := newCompositionService(catalog, comps, 2)

	_, err := svc.AddItem(context.Background(), "comp-1", &domain.CompositionItem{
		UnitID:           "unit-osb",
		ConsumptionPerM2: 1.05,
	})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict after exhausting retries, got %v", err)
	}

	// The insert is rolled back: no item the cached total never absorbed
	// may survive the failed recalculation.
	items, listErr := comps.ListItems(context.Background(), "comp-1")
	if listErr != nil {
		t.Fatalf("expected no error, got %v", listErr)
	}
	if len(items) != 0 {
		t.Errorf("expected inserted item rolled back, found %d items", len(items))
	}
}

func TestCreateComposition_ZeroesDerivedFields(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{}}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{}}

	svc := newCompositionService(catalog, comps, 3)

	created, err := svc.CreateComposition(context.Background(), &domain.Composition{
		Code: "COMP-NEW", Name: "Nova composição", Category: domain.CompCobertura,
		TotalPerM2: 999, Version: 7,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.TotalPerM2 != 0 || created.Version != 0 {
		t.Errorf("expected derived fields zeroed, got total=%f version=%d", created.TotalPerM2, created.Version)
	}
}

func TestUpdateComposition_RejectsCachedTotal(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{}}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{
		"comp-1": emptyComposition("comp-1"),
	}}

	svc := newCompositionService(catalog, comps, 3)

	// The cached total only moves through recalculation.
	_, err := svc.UpdateComposition(context.Background(), "comp-1", map[string]any{"valor_total_m2": 123.45})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestItemWriters_SerializePerComposition(t *testing.T) {
	catalog := &mockCatalogStore{units: map[string]*domain.Unit{"unit-osb": osbUnit()}}
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{
		"comp-1": emptyComposition("comp-1"),
	}}
	svc := newCompositionService(catalog, comps, 3)

	const writers = 8

	var wg sync.WaitGroup
	addErrs := make(chan error, writers)
	added := make(chan *domain.CompositionItem, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := svc.AddItem(context.Background(), "comp-1", &domain.CompositionItem{
				UnitID:           "unit-osb",
				ConsumptionPerM2: 0.5 * float64(i+1),
				Waste:            fraction(0),
				Correction:       1.0,
			})
			if err != nil {
				addErrs <- err
				return
			}
			added <- created
		}(i)
	}
	wg.Wait()
	close(addErrs)
	close(added)
	for err := range addErrs {
		t.Fatalf("concurrent AddItem failed: %v", err)
	}

	updErrs := make(chan error, writers)
	for item := range added {
		wg.Add(1)
		go func(itemID string) {
			defer wg.Done()
			if _, err := svc.UpdateItem(context.Background(), "comp-1", itemID, map[string]any{"consumo_m2": 2.0}); err != nil {
				updErrs <- err
			}
		}(item.ID)
	}
	wg.Wait()
	close(updErrs)
	for err := range updErrs {
		t.Fatalf("concurrent UpdateItem failed: %v", err)
	}

	comp, err := comps.GetComposition(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(comp.Items) != writers {
		t.Fatalf("expected %d items, got %d", writers, len(comp.Items))
	}

	// Defaulted orders stay unique when writers race for the same slot.
	seen := make(map[int]bool, writers)
	for i := range comp.Items {
		if seen[comp.Items[i].Order] {
			t.Errorf("ordem %d assigned twice", comp.Items[i].Order)
		}
		seen[comp.Items[i].Order] = true
	}

	// Every mutation re-established the cached total under the lock: no
	// retry budget exhausted, and the final total equals the items' sum.
	var want float64
	for i := range comp.Items {
		want += comp.Items[i].ValuePerM2
	}
	if math.Abs(comp.TotalPerM2-want) > 1e-9 {
		t.Errorf("cached total %f diverges from item sum %f", comp.TotalPerM2, want)
	}
	if comp.TotalPerM2 != 2.0*28.50*writers {
		t.Errorf("expected cached total %f, got %f", 2.0*28.50*writers, comp.TotalPerM2)
	}
	if comp.Version != int64(2*writers) {
		t.Errorf("expected version %d after %d mutations, got %d", 2*writers, 2*writers, comp.Version)
	}
}
