package handler_test

import (
	"context"
	"sort"
	"sync"

	"github.com/obraprime/propostas-api/internal/domain"
)

// In-memory stores backing the router tests. The service-level edge cases
// live in the service package tests; these stubs only need to be coherent
// enough to drive full request/response cycles.

type stubCatalogStore struct {
	mu    sync.Mutex
	units map[string]*domain.Unit
}

func (s *stubCatalogStore) GetUnit(_ context.Context, code string) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.units {
		if u.Code == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "produto", ID: code}
}

func (s *stubCatalogStore) GetUnitByID(_ context.Context, id string) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "produto", ID: id}
	}
	cp := *u
	return &cp, nil
}

func (s *stubCatalogStore) ListUnits(_ context.Context, category domain.UnitCategory, activeOnly bool) ([]domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Unit
	for _, u := range s.units {
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

func (s *stubCatalogStore) CreateUnit(_ context.Context, u *domain.Unit) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.units[u.ID] = &cp
	return u, nil
}

func (s *stubCatalogStore) UpdateUnit(_ context.Context, id string, updates map[string]any) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "produto", ID: id}
	}
	if v, ok := updates["preco_unitario"].(float64); ok {
		u.UnitPrice = v
	}
	cp := *u
	return &cp, nil
}

func (s *stubCatalogStore) DeactivateUnit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "produto", ID: id}
	}
	u.Active = false
	return nil
}

type stubCompositionStore struct {
	mu    sync.Mutex
	comps map[string]*domain.Composition
}

func (s *stubCompositionStore) GetComposition(_ context.Context, id string) (*domain.Composition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comps[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "composicao", ID: id}
	}
	cp := *c
	cp.Items = make([]domain.CompositionItem, len(c.Items))
	copy(cp.Items, c.Items)
	sort.SliceStable(cp.Items, func(i, j int) bool { return cp.Items[i].Order < cp.Items[j].Order })
	return &cp, nil
}

func (s *stubCompositionStore) ListCompositions(_ context.Context, category domain.CompositionCategory, activeOnly bool) ([]domain.Composition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Composition
	for _, c := range s.comps {
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

func (s *stubCompositionStore) CreateComposition(_ context.Context, c *domain.Composition) (*domain.Composition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.comps[c.ID] = &cp
	return c, nil
}

func (s *stubCompositionStore) UpdateComposition(_ context.Context, id string, updates map[string]any) (*domain.Composition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comps[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "composicao", ID: id}
	}
	if v, ok := updates["nome"].(string); ok {
		c.Name = v
	}
	cp := *c
	return &cp, nil
}

func (s *stubCompositionStore) DeleteComposition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.comps, id)
	return nil
}

func (s *stubCompositionStore) ListItems(_ context.Context, compositionID string) ([]domain.CompositionItem, error) {
	c, err := s.GetComposition(context.Background(), compositionID)
	if err != nil {
		return nil, err
	}
	return c.Items, nil
}

func (s *stubCompositionStore) InsertItem(_ context.Context, item *domain.CompositionItem) (*domain.CompositionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comps[item.CompositionID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "composicao", ID: item.CompositionID}
	}
	c.Items = append(c.Items, *item)
	return item, nil
}

func (s *stubCompositionStore) UpdateItem(_ context.Context, itemID string, updates map[string]any) (*domain.CompositionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comps {
		for i := range c.Items {
			if c.Items[i].ID != itemID {
				continue
			}
			it := &c.Items[i]
			if v, ok := updates["consumo_m2"].(float64); ok {
				it.ConsumptionPerM2 = v
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

func (s *stubCompositionStore) DeleteItem(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comps {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
	}
	return &domain.ErrNotFound{Resource: "composicao_item", ID: itemID}
}

func (s *stubCompositionStore) UpdateCachedTotal(_ context.Context, compositionID string, total float64, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comps[compositionID]
	if !ok {
		return &domain.ErrNotFound{Resource: "composicao", ID: compositionID}
	}
	if c.Version != expectedVersion {
		return &domain.ErrConflict{Message: "version moved"}
	}
	c.TotalPerM2 = total
	c.Version++
	return nil
}

type stubMappingStore struct {
	mu   sync.Mutex
	rows []domain.TypeMapping
}

func (s *stubMappingStore) ListMappings(_ context.Context, proposalType string) ([]domain.TypeMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TypeMapping
	for _, r := range s.rows {
		if r.ProposalType == proposalType && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubMappingStore) CreateMapping(_ context.Context, m *domain.TypeMapping) (*domain.TypeMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *m)
	return m, nil
}

func (s *stubMappingStore) DeleteMapping(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rows {
		if r.ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "mapeamento", ID: id}
}
