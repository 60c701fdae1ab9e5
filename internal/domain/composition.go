package domain

import (
	"fmt"
	"time"
)

// CompositionCategory classifies a composição mestre by constructive system.
type CompositionCategory string

const (
	CompVedacaoInterna     CompositionCategory = "VEDACAO_INTERNA"
	CompVedacaoExterna     CompositionCategory = "VEDACAO_EXTERNA"
	CompCobertura          CompositionCategory = "COBERTURA"
	CompImpermeabilizacao  CompositionCategory = "IMPERMEABILIZACAO"
	CompForro              CompositionCategory = "FORRO"
	CompEnergiaSolar       CompositionCategory = "ENERGIA_SOLAR"
)

// ValidCompositionCategory reports whether c is a known composition category.
func ValidCompositionCategory(c CompositionCategory) bool {
	switch c {
	case CompVedacaoInterna, CompVedacaoExterna, CompCobertura,
		CompImpermeabilizacao, CompForro, CompEnergiaSolar:
		return true
	}
	return false
}

// Composition is a bill-of-materials template (composição mestre) for one
// constructive system, expressed as consumption and cost per m² of reference
// area. TotalPerM2 is a cached aggregate: it must always equal the sum of the
// items' ValuePerM2, re-established transactionally on every item mutation.
// Version is the optimistic counter guarding that write.
type Composition struct {
	ID         string              `json:"id"`
	Code       string              `json:"codigo"`
	Name       string              `json:"nome"`
	Category   CompositionCategory `json:"categoria"`
	TotalPerM2 float64             `json:"valor_total_m2"`
	Notes      string              `json:"observacoes,omitempty"`
	Active     bool                `json:"ativo"`
	Version    int64               `json:"version"`
	Items      []CompositionItem   `json:"itens,omitempty"`
	CreatedAt  time.Time           `json:"created_at,omitempty"`
	UpdatedAt  time.Time           `json:"updated_at,omitempty"`
}

// Validate checks the composition header fields.
func (c *Composition) Validate() error {
	if c.Code == "" {
		return &ErrValidation{Field: "codigo", Message: "required"}
	}
	if c.Name == "" {
		return &ErrValidation{Field: "nome", Message: "required"}
	}
	if !ValidCompositionCategory(c.Category) {
		return &ErrValidation{Field: "categoria", Message: fmt.Sprintf("unknown category '%s'", c.Category)}
	}
	return nil
}

// CompositionItem is one line of a composition's bill of materials,
// referencing one catalog unit.
//
// Waste is a pointer: when nil the unit's default waste applies, when set the
// item value wins. ValuePerM2 and UnitPriceSnapshot are derived at write time
// (the expansion formula evaluated at a reference area of 1 m²) and kept only
// for display; the cached composition total is the sum of ValuePerM2.
type CompositionItem struct {
	ID                string   `json:"id"`
	CompositionID     string   `json:"composicao_id"`
	UnitID            string   `json:"produto_id"`
	ConsumptionPerM2  float64  `json:"consumo_m2"`
	Waste             *float64 `json:"quebra_aplicada,omitempty"`
	Correction        float64  `json:"fator_correcao"`
	Order             int      `json:"ordem"`
	UnitPriceSnapshot float64  `json:"preco_unitario"`
	ValuePerM2        float64  `json:"valor_m2"`
}

// EffectiveWaste resolves the waste fraction for this item: the item-level
// value when present, the unit default otherwise.
func (i *CompositionItem) EffectiveWaste(u *Unit) float64 {
	if i.Waste != nil {
		return *i.Waste
	}
	return u.DefaultWaste
}

// Validate checks the item fields prior to expansion or persistence.
func (i *CompositionItem) Validate() error {
	if i.UnitID == "" {
		return &ErrValidation{Field: "produto_id", Message: "required"}
	}
	if i.ConsumptionPerM2 <= 0 {
		return &ErrValidation{Field: "consumo_m2", Message: "must be positive"}
	}
	if i.Waste != nil && (*i.Waste < 0 || *i.Waste > 1) {
		return &ErrValidation{Field: "quebra_aplicada", Message: "must be a fraction between 0 and 1"}
	}
	if i.Correction <= 0 {
		return &ErrValidation{Field: "fator_correcao", Message: "must be positive"}
	}
	if i.Order < 0 {
		return &ErrValidation{Field: "ordem", Message: "must not be negative"}
	}
	return nil
}
