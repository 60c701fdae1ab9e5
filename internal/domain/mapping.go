package domain

// Known proposal types. The mapping table may be extended without a code
// change; these constants only name the types the calculator front ends use.
const (
	TypeTelhasShingle     = "telhas-shingle"
	TypeDrywallDivisoria  = "drywall-divisoria"
	TypeImpermeabilizacao = "impermeabilizacao"
	TypeForroDrywall      = "forro-drywall"
	TypeEnergiaSolar      = "energia-solar"
)

// Named reference dimensions for linear compositions. A mapping carrying one
// of these scales its composition by the job's measured length for that
// dimension instead of the net area. The dimension names are free-form in
// the mapping table; these constants only name the ones the calculator
// front ends fill in.
const (
	DimensionCumeeira  = "cumeeira"
	DimensionPerimetro = "perimetro"
)

// TypeMapping links a proposal type to one composition that applies to it.
// Many mappings may reference the same composition; deleting a mapping never
// deletes the composition.
//
// ReferenceDimension selects what the composition scales by: empty means the
// net reference area, anything else names a linear measurement the takeoff
// request must supply (ridge-cap and starter-strip compositions consume
// metres of ridge or perimeter, not m² of roof).
type TypeMapping struct {
	ID                 string  `json:"id"`
	ProposalType       string  `json:"tipo_proposta"`
	CompositionID      string  `json:"composicao_id"`
	CalculationOrder   int     `json:"ordem_calculo"`
	Required           bool    `json:"obrigatoria"`
	Factor             float64 `json:"fator_aplicacao"`
	ReferenceDimension string  `json:"dimensao_referencia,omitempty"`
	Active             bool    `json:"ativo"`
}

// Validate checks the mapping fields before persistence.
func (m *TypeMapping) Validate() error {
	if m.ProposalType == "" {
		return &ErrValidation{Field: "tipo_proposta", Message: "required"}
	}
	if m.CompositionID == "" {
		return &ErrValidation{Field: "composicao_id", Message: "required"}
	}
	if m.Factor <= 0 {
		return &ErrValidation{Field: "fator_aplicacao", Message: "must be positive"}
	}
	return nil
}

// ResolvedMapping is one entry of a mapping resolution: the composition to
// apply plus how to apply it, already ordered by calculation order.
type ResolvedMapping struct {
	Composition        *Composition `json:"composicao"`
	CalculationOrder   int          `json:"ordem_calculo"`
	Required           bool         `json:"obrigatoria"`
	Factor             float64      `json:"fator_aplicacao"`
	ReferenceDimension string       `json:"dimensao_referencia,omitempty"`
}
