package supabase

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/obraprime/propostas-api/internal/domain"
)

// Composition registry (composicoes_mestre, composicao_itens) — implements
// port.CompositionStore.

// GetComposition fetches the header plus its items ordered by item order.
func (c *Client) GetComposition(ctx context.Context, id string) (*domain.Composition, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetComposition")
	defer span.End()
	span.SetAttributes(attribute.String("composition.id", id))

	path := fmt.Sprintf("composicoes_mestre?id=eq.%s&limit=1", url.QueryEscape(id))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	rows, err := decodeRows[domain.Composition](body, "composicao")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "composicao", ID: id}
	}

	comp := rows[0]
	items, err := c.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	comp.Items = items
	return &comp, nil
}

// ListCompositions lists composition headers (no items), optionally filtered
// by category, ordered by code.
func (c *Client) ListCompositions(ctx context.Context, category domain.CompositionCategory, activeOnly bool) ([]domain.Composition, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCompositions")
	defer span.End()

	path := "composicoes_mestre?order=codigo.asc"
	if category != "" {
		path += fmt.Sprintf("&categoria=eq.%s", url.QueryEscape(string(category)))
	}
	if activeOnly {
		path += "&ativo=eq.true"
	}

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	rows, err := decodeRows[domain.Composition](body, "composicoes")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	return rows, nil
}

// CreateComposition inserts a composition header.
func (c *Client) CreateComposition(ctx context.Context, comp *domain.Composition) (*domain.Composition, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateComposition")
	defer span.End()

	row := map[string]any{
		"id":             comp.ID,
		"codigo":         comp.Code,
		"nome":           comp.Name,
		"categoria":      comp.Category,
		"valor_total_m2": comp.TotalPerM2,
		"observacoes":    comp.Notes,
		"ativo":          comp.Active,
		"version":        comp.Version,
	}

	body, err := c.doPost(ctx, "composicoes_mestre", row)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	rows, err := decodeRows[domain.Composition](body, "composicao")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrExternalService{Service: "supabase/composicoes", Err: fmt.Errorf("no result from composicoes_mestre insert")}
	}
	return &rows[0], nil
}

// UpdateComposition patches header fields (never the cached total; that goes
// through UpdateCachedTotal with its version check).
func (c *Client) UpdateComposition(ctx context.Context, id string, updates map[string]any) (*domain.Composition, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateComposition")
	defer span.End()

	updates["updated_at"] = time.Now().Format(time.RFC3339)
	path := fmt.Sprintf("composicoes_mestre?id=eq.%s", url.QueryEscape(id))
	body, err := c.doPatch(ctx, path, updates)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	rows, err := decodeRows[domain.Composition](body, "composicao")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "composicao", ID: id}
	}
	return &rows[0], nil
}

// DeleteComposition removes a composition and, first, its items (ownership:
// deleting a composition cascades to its items).
func (c *Client) DeleteComposition(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteComposition")
	defer span.End()

	if err := c.doDelete(ctx, fmt.Sprintf("composicao_itens?composicao_id=eq.%s", url.QueryEscape(id))); err != nil {
		return &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	if err := c.doDelete(ctx, fmt.Sprintf("composicoes_mestre?id=eq.%s", url.QueryEscape(id))); err != nil {
		return &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	return nil
}

// ListItems returns a composition's items in display/calculation order.
func (c *Client) ListItems(ctx context.Context, compositionID string) ([]domain.CompositionItem, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListItems")
	defer span.End()

	path := fmt.Sprintf("composicao_itens?composicao_id=eq.%s&order=ordem.asc", url.QueryEscape(compositionID))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicao_itens", Err: err}
	}
	rows, err := decodeRows[domain.CompositionItem](body, "composicao_itens")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicao_itens", Err: err}
	}
	return rows, nil
}

// InsertItem inserts one composition item.
func (c *Client) InsertItem(ctx context.Context, item *domain.CompositionItem) (*domain.CompositionItem, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertItem")
	defer span.End()

	row := map[string]any{
		"id":              item.ID,
		"composicao_id":   item.CompositionID,
		"produto_id":      item.UnitID,
		"consumo_m2":      item.ConsumptionPerM2,
		"quebra_aplicada": item.Waste,
		"fator_correcao":  item.Correction,
		"ordem":           item.Order,
		"preco_unitario":  item.UnitPriceSnapshot,
		"valor_m2":        item.ValuePerM2,
	}

	body, err := c.doPost(ctx, "composicao_itens", row)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicao_itens", Err: err}
	}
	rows, err := decodeRows[domain.CompositionItem](body, "composicao_item")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicao_itens", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrExternalService{Service: "supabase/composicao_itens", Err: fmt.Errorf("no result from composicao_itens insert")}
	}
	return &rows[0], nil
}

// UpdateItem patches one composition item.
func (c *Client) UpdateItem(ctx context.Context, itemID string, updates map[string]any) (*domain.CompositionItem, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateItem")
	defer span.End()

	path := fmt.Sprintf("composicao_itens?id=eq.%s", url.QueryEscape(itemID))
	body, err := c.doPatch(ctx, path, updates)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicao_itens", Err: err}
	}
	rows, err := decodeRows[domain.CompositionItem](body, "composicao_item")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/composicao_itens", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "composicao_item", ID: itemID}
	}
	return &rows[0], nil
}

// DeleteItem removes one composition item.
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteItem")
	defer span.End()

	if err := c.doDelete(ctx, fmt.Sprintf("composicao_itens?id=eq.%s", url.QueryEscape(itemID))); err != nil {
		return &domain.ErrExternalService{Service: "supabase/composicao_itens", Err: err}
	}
	return nil
}

// UpdateCachedTotal writes the derived total with an optimistic version
// check: the PATCH is filtered on the expected version, so a concurrent
// recalculation that already bumped it makes the filter match nothing and the
// write surfaces as ErrConflict instead of silently losing an update.
func (c *Client) UpdateCachedTotal(ctx context.Context, compositionID string, total float64, expectedVersion int64) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCachedTotal")
	defer span.End()
	span.SetAttributes(
		attribute.String("composition.id", compositionID),
		attribute.Int64("composition.version", expectedVersion),
	)

	path := fmt.Sprintf("composicoes_mestre?id=eq.%s&version=eq.%d",
		url.QueryEscape(compositionID), expectedVersion)
	body, err := c.doPatch(ctx, path, map[string]any{
		"valor_total_m2": total,
		"version":        expectedVersion + 1,
		"updated_at":     time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}

	rows, err := decodeRows[domain.Composition](body, "composicao")
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/composicoes", Err: err}
	}
	if len(rows) == 0 {
		return &domain.ErrConflict{Message: fmt.Sprintf(
			"composicao %s version %d was updated concurrently", compositionID, expectedVersion)}
	}
	return nil
}
