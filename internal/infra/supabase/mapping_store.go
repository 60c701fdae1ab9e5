package supabase

import (
	"context"
	"fmt"
	"net/url"

	"github.com/obraprime/propostas-api/internal/domain"
)

// Type-composition mappings (tipo_composicao_map) — implements
// port.MappingStore.

// ListMappings returns active mappings for a proposal type, ordered by
// calculation order.
func (c *Client) ListMappings(ctx context.Context, proposalType string) ([]domain.TypeMapping, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMappings")
	defer span.End()

	path := fmt.Sprintf("tipo_composicao_map?tipo_proposta=eq.%s&ativo=eq.true&order=ordem_calculo.asc",
		url.QueryEscape(proposalType))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/mapeamentos", Err: err}
	}
	rows, err := decodeRows[domain.TypeMapping](body, "mapeamentos")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/mapeamentos", Err: err}
	}
	return rows, nil
}

// CreateMapping inserts one type-composition mapping.
func (c *Client) CreateMapping(ctx context.Context, m *domain.TypeMapping) (*domain.TypeMapping, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateMapping")
	defer span.End()

	row := map[string]any{
		"id":                  m.ID,
		"tipo_proposta":       m.ProposalType,
		"composicao_id":       m.CompositionID,
		"ordem_calculo":       m.CalculationOrder,
		"obrigatoria":         m.Required,
		"fator_aplicacao":     m.Factor,
		"dimensao_referencia": m.ReferenceDimension,
		"ativo":               m.Active,
	}

	body, err := c.doPost(ctx, "tipo_composicao_map", row)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/mapeamentos", Err: err}
	}
	rows, err := decodeRows[domain.TypeMapping](body, "mapeamento")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/mapeamentos", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrExternalService{Service: "supabase/mapeamentos", Err: fmt.Errorf("no result from tipo_composicao_map insert")}
	}
	return &rows[0], nil
}

// DeleteMapping removes one mapping. The referenced composition is untouched.
func (c *Client) DeleteMapping(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteMapping")
	defer span.End()

	if err := c.doDelete(ctx, fmt.Sprintf("tipo_composicao_map?id=eq.%s", url.QueryEscape(id))); err != nil {
		return &domain.ErrExternalService{Service: "supabase/mapeamentos", Err: err}
	}
	return nil
}
