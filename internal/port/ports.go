// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations (the Supabase adapter in production,
// hand mocks in tests).
package port

import (
	"context"

	"github.com/obraprime/propostas-api/internal/domain"
)

// CatalogStore is the unit catalog (produto mestre) registry. Pure lookup
// plus admin CRUD; a missing or inactive unit is surfaced as an input error,
// never silently defaulted.
type CatalogStore interface {
	GetUnit(ctx context.Context, code string) (*domain.Unit, error)
	GetUnitByID(ctx context.Context, id string) (*domain.Unit, error)
	ListUnits(ctx context.Context, category domain.UnitCategory, activeOnly bool) ([]domain.Unit, error)
	CreateUnit(ctx context.Context, u *domain.Unit) (*domain.Unit, error)
	UpdateUnit(ctx context.Context, id string, updates map[string]any) (*domain.Unit, error)
	DeactivateUnit(ctx context.Context, id string) error
}

// CompositionStore is the composition registry. GetComposition returns the
// header plus its items ordered by item order. UpdateCachedTotal performs a
// version-checked write of the cached total: it must fail with ErrConflict
// when the stored version no longer matches expectedVersion, so that no
// concurrent recalculation is silently overwritten.
type CompositionStore interface {
	GetComposition(ctx context.Context, id string) (*domain.Composition, error)
	ListCompositions(ctx context.Context, category domain.CompositionCategory, activeOnly bool) ([]domain.Composition, error)
	CreateComposition(ctx context.Context, c *domain.Composition) (*domain.Composition, error)
	UpdateComposition(ctx context.Context, id string, updates map[string]any) (*domain.Composition, error)
	DeleteComposition(ctx context.Context, id string) error

	ListItems(ctx context.Context, compositionID string) ([]domain.CompositionItem, error)
	InsertItem(ctx context.Context, item *domain.CompositionItem) (*domain.CompositionItem, error)
	UpdateItem(ctx context.Context, itemID string, updates map[string]any) (*domain.CompositionItem, error)
	DeleteItem(ctx context.Context, itemID string) error

	UpdateCachedTotal(ctx context.Context, compositionID string, total float64, expectedVersion int64) error
}

// MappingStore resolves proposal types to compositions.
type MappingStore interface {
	ListMappings(ctx context.Context, proposalType string) ([]domain.TypeMapping, error)
	CreateMapping(ctx context.Context, m *domain.TypeMapping) (*domain.TypeMapping, error)
	DeleteMapping(ctx context.Context, id string) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
