package domain

// TakeoffRequest is the generic engine invocation as received from the front
// end: a proposal type (used only for mapping resolution), the net reference
// area (deductions already applied by the caller) and an optional explicit
// selection of compositions. When CompositionIDs is empty the full mapping
// resolution applies; otherwise only the listed compositions run, and
// omitting a required one is an input error.
//
// ReferenceLengths carries the job's linear measurements, keyed by the
// dimension names the proposal type's mappings declare (cumeeira, perimetro).
// A mapping with a reference dimension scales by the matching length instead
// of AreaM2; a zero or absent length skips that composition unless the
// mapping is required.
type TakeoffRequest struct {
	ProposalType     string             `json:"tipo_proposta"`
	AreaM2           float64            `json:"area_m2"`
	ReferenceLengths map[string]float64 `json:"comprimentos_referencia,omitempty"`
	CompositionIDs   []string           `json:"composicoes,omitempty"`
}

// LineItem is one priced, purchasable line of a takeoff result. Ephemeral:
// rendered, exported or persisted by callers, never stored by the engine.
type LineItem struct {
	Category          UnitCategory `json:"categoria"`
	UnitCode          string       `json:"codigo_produto"`
	Description       string       `json:"descricao"`
	Measure           Measure      `json:"unidade_medida"`
	BaseQuantity      float64      `json:"quantidade_base"`
	Waste             float64      `json:"quebra"`
	Correction        float64      `json:"fator_correcao"`
	QuantityWithWaste float64      `json:"quantidade_com_quebra"`
	Purchasable       float64      `json:"quantidade_compra"`
	UnitPrice         float64      `json:"preco_unitario"`
	LineTotal         float64      `json:"valor_total"`
	CompositionCode   string       `json:"composicao"`
	Order             int          `json:"ordem"`
}

// Resumo is the aggregate takeoff result (orçamento resumo): category
// subtotals, grand total, total per m² of the job's net reference area, and
// the line items in calculation order. Plain data, suitable for JSON
// rendering or export by external components.
type Resumo struct {
	ProposalType      string                   `json:"tipo_proposta,omitempty"`
	ReferenceAreaM2   float64                  `json:"area_referencia_m2"`
	Lines             []LineItem               `json:"itens"`
	CategorySubtotals map[UnitCategory]float64 `json:"subtotais_categoria"`
	GrandTotal        float64                  `json:"valor_total"`
	TotalPerM2        float64                  `json:"valor_m2"`
}
