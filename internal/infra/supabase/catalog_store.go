package supabase

import (
	"context"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/attribute"

	"github.com/obraprime/propostas-api/internal/domain"
)

// Unit catalog (produtos_mestre) — implements port.CatalogStore.

// GetUnit fetches one catalog item by its unique code.
func (c *Client) GetUnit(ctx context.Context, code string) (*domain.Unit, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUnit")
	defer span.End()
	span.SetAttributes(attribute.String("unit.code", code))

	path := fmt.Sprintf("produtos_mestre?codigo=eq.%s&limit=1", url.QueryEscape(code))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}

	rows, err := decodeRows[domain.Unit](body, "produto")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "produto", ID: code}
	}
	return &rows[0], nil
}

// GetUnitByID fetches one catalog item by id.
func (c *Client) GetUnitByID(ctx context.Context, id string) (*domain.Unit, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUnitByID")
	defer span.End()

	path := fmt.Sprintf("produtos_mestre?id=eq.%s&limit=1", url.QueryEscape(id))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}

	rows, err := decodeRows[domain.Unit](body, "produto")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "produto", ID: id}
	}
	return &rows[0], nil
}

// ListUnits lists catalog items, optionally filtered by category and
// restricted to active ones. Ordered by code for stable output.
func (c *Client) ListUnits(ctx context.Context, category domain.UnitCategory, activeOnly bool) ([]domain.Unit, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListUnits")
	defer span.End()

	path := "produtos_mestre?order=codigo.asc"
	if category != "" {
		path += fmt.Sprintf("&categoria=eq.%s", url.QueryEscape(string(category)))
	}
	if activeOnly {
		path += "&ativo=eq.true"
	}

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}
	rows, err := decodeRows[domain.Unit](body, "produtos")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}
	return rows, nil
}

// CreateUnit inserts a catalog item and returns the stored row.
func (c *Client) CreateUnit(ctx context.Context, u *domain.Unit) (*domain.Unit, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUnit")
	defer span.End()

	row := map[string]any{
		"id":                   u.ID,
		"codigo":               u.Code,
		"descricao":            u.Description,
		"categoria":            u.Category,
		"unidade_medida":       u.Measure,
		"preco_unitario":       u.UnitPrice,
		"quantidade_embalagem": u.PackageQty,
		"quebra_padrao":        u.DefaultWaste,
		"aliquota_imposto":     u.TaxRate,
		"ativo":                u.Active,
		"especificacoes":       u.Specs,
	}

	body, err := c.doPost(ctx, "produtos_mestre", row)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}
	rows, err := decodeRows[domain.Unit](body, "produto")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: fmt.Errorf("no result from produtos_mestre insert")}
	}
	return &rows[0], nil
}

// UpdateUnit patches a catalog item and returns the stored row.
func (c *Client) UpdateUnit(ctx context.Context, id string, updates map[string]any) (*domain.Unit, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUnit")
	defer span.End()

	path := fmt.Sprintf("produtos_mestre?id=eq.%s", url.QueryEscape(id))
	body, err := c.doPatch(ctx, path, updates)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}
	rows, err := decodeRows[domain.Unit](body, "produto")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/produtos", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "produto", ID: id}
	}
	return &rows[0], nil
}

// DeactivateUnit soft-deletes a catalog item. Units referenced by
// composition items are never hard-deleted.
func (c *Client) DeactivateUnit(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeactivateUnit")
	defer span.End()

	_, err := c.UpdateUnit(ctx, id, map[string]any{"ativo": false})
	return err
}
