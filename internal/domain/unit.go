// Package domain holds the plain data types and typed errors shared by all
// layers. Types here carry no behavior beyond small derivations; persistence
// and transport concerns stay in infra and handler.
package domain

import (
	"fmt"
	"time"
)

// UnitCategory classifies a catalog item (produto mestre).
type UnitCategory string

const (
	CategoryOSB           UnitCategory = "OSB"
	CategoryDrywall       UnitCategory = "DRYWALL"
	CategoryTelhasShingle UnitCategory = "TELHAS_SHINGLE"
	CategoryMantas        UnitCategory = "MANTAS"
	CategoryFixacao       UnitCategory = "FIXACAO"
	CategoryPerfis        UnitCategory = "PERFIS"
	CategoryIsolamento    UnitCategory = "ISOLAMENTO"
	CategoryAcabamento    UnitCategory = "ACABAMENTO"
	CategoryEnergiaSolar  UnitCategory = "ENERGIA_SOLAR"
	CategoryOutros        UnitCategory = "OUTROS"
)

var validUnitCategories = map[UnitCategory]bool{
	CategoryOSB: true, CategoryDrywall: true, CategoryTelhasShingle: true,
	CategoryMantas: true, CategoryFixacao: true, CategoryPerfis: true,
	CategoryIsolamento: true, CategoryAcabamento: true,
	CategoryEnergiaSolar: true, CategoryOutros: true,
}

// ValidUnitCategory reports whether c is a known catalog category.
func ValidUnitCategory(c UnitCategory) bool { return validUnitCategories[c] }

// Measure is the unit of measure a catalog item is sold in.
// Continuous measures (m², linear m, kg) are priced at the exact quantity;
// discrete measures (piece, package, roll) are rounded up to whole packages.
type Measure string

const (
	MeasureM2      Measure = "M2"
	MeasureLinearM Measure = "ML"
	MeasureKg      Measure = "KG"
	MeasureUnit    Measure = "UN"
	MeasurePackage Measure = "PC"
	MeasureRoll    Measure = "RL"
)

// Discrete reports whether the measure is sold in whole packages.
func (m Measure) Discrete() bool {
	switch m {
	case MeasureUnit, MeasurePackage, MeasureRoll:
		return true
	}
	return false
}

// Valid reports whether m is a known measure.
func (m Measure) Valid() bool {
	switch m {
	case MeasureM2, MeasureLinearM, MeasureKg, MeasureUnit, MeasurePackage, MeasureRoll:
		return true
	}
	return false
}

// Unit is one purchasable catalog item (produto mestre).
// Units are referenced, never owned, by composition items; once referenced
// they are soft-deactivated instead of deleted.
type Unit struct {
	ID           string         `json:"id"`
	Code         string         `json:"codigo"`
	Description  string         `json:"descricao"`
	Category     UnitCategory   `json:"categoria"`
	Measure      Measure        `json:"unidade_medida"`
	UnitPrice    float64        `json:"preco_unitario"`
	PackageQty   float64        `json:"quantidade_embalagem"`
	DefaultWaste float64        `json:"quebra_padrao"`
	TaxRate      float64        `json:"aliquota_imposto"`
	Active       bool           `json:"ativo"`
	Specs        map[string]any `json:"especificacoes,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty"`
}

// Validate checks the invariants a unit must satisfy before being written.
func (u *Unit) Validate() error {
	if u.Code == "" {
		return &ErrValidation{Field: "codigo", Message: "required"}
	}
	if !ValidUnitCategory(u.Category) {
		return &ErrValidation{Field: "categoria", Message: fmt.Sprintf("unknown category '%s'", u.Category)}
	}
	if !u.Measure.Valid() {
		return &ErrValidation{Field: "unidade_medida", Message: fmt.Sprintf("unknown measure '%s'", u.Measure)}
	}
	if u.UnitPrice < 0 {
		return &ErrValidation{Field: "preco_unitario", Message: "must not be negative"}
	}
	if u.PackageQty <= 0 {
		return &ErrValidation{Field: "quantidade_embalagem", Message: "must be positive"}
	}
	if u.DefaultWaste < 0 || u.DefaultWaste > 1 {
		return &ErrValidation{Field: "quebra_padrao", Message: "must be a fraction between 0 and 1"}
	}
	if u.TaxRate < 0 || u.TaxRate > 1 {
		return &ErrValidation{Field: "aliquota_imposto", Message: "must be a fraction between 0 and 1"}
	}
	return ValidateSpecs(u.Specs)
}

// ValidateSpecs rejects extension maps whose values are not JSON primitives.
// The specs blob is an open-ended key-value extension point for the admin UI;
// the engine never interprets it, so depth is capped at the boundary.
func ValidateSpecs(specs map[string]any) error {
	for k, v := range specs {
		switch v.(type) {
		case string, bool, float64, int, int64, nil:
		default:
			return &ErrValidation{Field: "especificacoes." + k, Message: "value must be a string, number, boolean or null"}
		}
	}
	return nil
}
