package service_test

import (
	"context"
	"sort"
	"sync"

	"github.com/obraprime/propostas-api/internal/domain"
)

// --- Mocks ---

type mockCatalogStore struct {
	mu    sync.Mutex
	units map[string]*domain.Unit // by id
	err   error

	getByIDCalls int
	getCalls     int
}

func (m *mockCatalogStore) GetUnit(_ context.Context, code string) (*domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.units {
		if u.Code == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "produto", ID: code}
}

func (m *mockCatalogStore) GetUnitByID(_ context.Context, id string) (*domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.units[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "produto", ID: id}
	}
	cp := *u
	return &cp, nil
}

func (m *mockCatalogStore) ListUnits(_ context.Context, category domain.UnitCategory, activeOnly bool) ([]domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Unit
	for _, u := range m.units {
		if activeOnly && !u.Active {
			continue
		}
		if category != "" && u.Category != category {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *mockCatalogStore) CreateUnit(_ context.Context, u *domain.Unit) (*domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	cp := *u
	m.units[u.ID] = &cp
	return u, nil
}

func (m *mockCatalogStore) UpdateUnit(_ context.Context, id string, updates map[string]any) (*domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "produto", ID: id}
	}
	if v, ok := updates["preco_unitario"].(float64); ok {
		u.UnitPrice = v
	}
	if v, ok := updates["descricao"].(string); ok {
		u.Description = v
	}
	if v, ok := updates["ativo"].(bool); ok {
		u.Active = v
	}
	cp := *u
	return &cp, nil
}

func (m *mockCatalogStore) DeactivateUnit(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "produto", ID: id}
	}
	u.Active = false
	return nil
}

type mockCompositionStore struct {
	mu    sync.Mutex
	comps map[string]*domain.Composition
	err   error

	// conflictsLeft forces this many UpdateCachedTotal calls to fail with
	// ErrConflict before the version check applies again.
	conflictsLeft int
	totalWrites   int
}

func (m *mockCompositionStore) GetComposition(_ context.Context, id string) (*domain.Composition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.comps[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "composicao", ID: id}
	}
	cp := *c
	cp.Items = make([]domain.CompositionItem, len(c.Items))
	copy(cp.Items, c.Items)
	sort.SliceStable(cp.Items, func(i, j int) bool { return cp.Items[i].Order < cp.Items[j].Order })
	return &cp, nil
}

func (m *mockCompositionStore) ListCompositions(_ context.Context, category domain.CompositionCategory, activeOnly bool) ([]domain.Composition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Composition
	for _, c := range m.comps {
		if activeOnly && !c.Active {
			continue
		}
		if category != "" && c.Category != category {
			continue
		}
		cp := *c
		cp.Items = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *mockCompositionStore) CreateComposition(_ context.Context, c *domain.Composition) (*domain.Composition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.comps[c.ID] = &cp
	return c, nil
}

func (m *mockCompositionStore) UpdateComposition(_ context.Context, id string, updates map[string]any) (*domain.Composition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comps[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "composicao", ID: id}
	}
	if v, ok := updates["nome"].(string); ok {
		c.Name = v
	}
	if v, ok := updates["ativo"].(bool); ok {
		c.Active = v
	}
	cp := *c
	return &cp, nil
}

func (m *mockCompositionStore) DeleteComposition(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comps[id]; !ok {
		return &domain.ErrNotFound{Resource: "composicao", ID: id}
	}
	delete(m.comps, id)
	return nil
}

func (m *mockCompositionStore) ListItems(_ context.Context, compositionID string) ([]domain.CompositionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comps[compositionID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "composicao", ID: compositionID}
	}
	out := make([]domain.CompositionItem, len(c.Items))
	copy(out, c.Items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *mockCompositionStore) InsertItem(_ context.Context, item *domain.CompositionItem) (*domain.CompositionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comps[item.CompositionID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "composicao", ID: item.CompositionID}
	}
	c.Items = append(c.Items, *item)
	return item, nil
}

func (m *mockCompositionStore) UpdateItem(_ context.Context, itemID string, updates map[string]any) (*domain.CompositionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.comps {
		for i := range c.Items {
			if c.Items[i].ID != itemID {
				continue
			}
			it := &c.Items[i]
			if v, ok := updates["consumo_m2"].(float64); ok {
				it.ConsumptionPerM2 = v
			}
			if v, ok := updates["quebra_aplicada"].(float64); ok {
				it.Waste = &v
			}
			if v, ok := updates["fator_correcao"].(float64); ok {
				it.Correction = v
			}
			if v, ok := updates["ordem"].(int); ok {
				it.Order = v
			}
			if v, ok := updates["preco_unitario"].(float64); ok {
				it.UnitPriceSnapshot = v
			}
			if v, ok := updates["valor_m2"].(float64); ok {
				it.ValuePerM2 = v
			}
			cp := *it
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "composicao_item", ID: itemID}
}

func (m *mockCompositionStore) DeleteItem(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.comps {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
	}
	return &domain.ErrNotFound{Resource: "composicao_item", ID: itemID}
}

func (m *mockCompositionStore) UpdateCachedTotal(_ context.Context, compositionID string, total float64, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comps[compositionID]
	if !ok {
		return &domain.ErrNotFound{Resource: "composicao", ID: compositionID}
	}
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		c.Version++ // simulate the concurrent writer that caused the conflict
		return &domain.ErrConflict{Message: "version moved"}
	}
	if c.Version != expectedVersion {
		return &domain.ErrConflict{Message: "version moved"}
	}
	c.TotalPerM2 = total
	c.Version++
	m.totalWrites++
	return nil
}

type mockMappingStore struct {
	rows []domain.TypeMapping
	err  error
}

func (m *mockMappingStore) ListMappings(_ context.Context, proposalType string) ([]domain.TypeMapping, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.TypeMapping
	for _, r := range m.rows {
		if r.ProposalType == proposalType && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockMappingStore) CreateMapping(_ context.Context, mp *domain.TypeMapping) (*domain.TypeMapping, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.rows = append(m.rows, *mp)
	return mp, nil
}

func (m *mockMappingStore) DeleteMapping(_ context.Context, id string) error {
	for i, r := range m.rows {
		if r.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "mapeamento", ID: id}
}

// --- Fixtures ---

func fraction(v float64) *float64 { return &v }

func osbUnit() *domain.Unit {
	return &domain.Unit{
		ID:           "unit-osb",
		Code:         "OSB-1118",
		Description:  "Placa OSB 11,1mm 1,20x2,40m",
		Category:     domain.CategoryOSB,
		Measure:      domain.MeasureM2,
		UnitPrice:    28.50,
		PackageQty:   1,
		DefaultWaste: 0.10,
		Active:       true,
	}
}

func screwUnit() *domain.Unit {
	return &domain.Unit{
		ID:           "unit-screw",
		Code:         "PAR-0425",
		Description:  "Parafuso autoatarraxante 4,2x25mm",
		Category:     domain.CategoryFixacao,
		Measure:      domain.MeasurePackage,
		UnitPrice:    0.18,
		PackageQty:   100,
		DefaultWaste: 0.05,
		Active:       true,
	}
}
