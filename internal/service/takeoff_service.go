package service

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/infra/observability"
	"github.com/obraprime/propostas-api/internal/port"
)

var takeoffTracer = otel.Tracer("service/takeoff")

// roundCents rounds a currency amount to whole cents.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// expandItem scales one composition item to the target area and prices it.
//
// Discrete units round UP to whole packages at the purchasable-unit
// granularity: under-purchasing material is the costlier failure mode.
// Continuous units (m², linear m, kg) are priced at the exact quantity.
func expandItem(item *domain.CompositionItem, unit *domain.Unit, area float64) (domain.LineItem, error) {
	if !unit.Active {
		// An inactive material must never appear silently priced (or silently
		// missing) in a proposal; the whole takeoff fails instead.
		return domain.LineItem{}, &domain.ErrNotFound{Resource: "produto ativo", ID: unit.Code}
	}

	waste := item.EffectiveWaste(unit)
	base := item.ConsumptionPerM2 * area
	withWaste := base * (1 + waste) * item.Correction

	purchasable := withWaste
	if unit.Measure.Discrete() {
		purchasable = math.Ceil(withWaste/unit.PackageQty) * unit.PackageQty
	}

	return domain.LineItem{
		Category:          unit.Category,
		UnitCode:          unit.Code,
		Description:       unit.Description,
		Measure:           unit.Measure,
		BaseQuantity:      base,
		Waste:             waste,
		Correction:        item.Correction,
		QuantityWithWaste: withWaste,
		Purchasable:       purchasable,
		UnitPrice:         unit.UnitPrice,
		LineTotal:         roundCents(purchasable * unit.UnitPrice),
		Order:             item.Order,
	}, nil
}

// expandComposition expands all items of one composition at the given target
// area, in item order. Any missing or inactive unit aborts the expansion: the
// engine never returns a partial line-item list.
func expandComposition(comp *domain.Composition, units map[string]*domain.Unit, area float64) ([]domain.LineItem, error) {
	if area <= 0 {
		return nil, &domain.ErrValidation{Field: "area_m2", Message: "must be positive"}
	}
	if !comp.Active {
		return nil, &domain.ErrNotFound{Resource: "composicao ativa", ID: comp.ID}
	}

	items := make([]domain.CompositionItem, len(comp.Items))
	copy(items, comp.Items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })

	lines := make([]domain.LineItem, 0, len(items))
	for i := range items {
		unit, ok := units[items[i].UnitID]
		if !ok {
			return nil, &domain.ErrNotFound{Resource: "produto", ID: items[i].UnitID}
		}
		line, err := expandItem(&items[i], unit, area)
		if err != nil {
			return nil, err
		}
		line.CompositionCode = comp.Code
		lines = append(lines, line)
	}
	return lines, nil
}

// derivedTotalPerM2 is the expansion formula evaluated at a reference area of
// 1 m², without package rounding: the canonical per-m² value of a
// composition, used for the cached total and the price audit.
func derivedTotalPerM2(items []domain.CompositionItem, units map[string]*domain.Unit) (float64, error) {
	var total float64
	for i := range items {
		unit, ok := units[items[i].UnitID]
		if !ok {
			return 0, &domain.ErrNotFound{Resource: "produto", ID: items[i].UnitID}
		}
		total += itemValuePerM2(&items[i], unit)
	}
	return total, nil
}

// itemValuePerM2 = consumption × (1+waste) × correction × unit price.
func itemValuePerM2(item *domain.CompositionItem, unit *domain.Unit) float64 {
	return item.ConsumptionPerM2 * (1 + item.EffectiveWaste(unit)) * item.Correction * unit.UnitPrice
}

// aggregate folds line items into category subtotals, a grand total and a
// per-m² total over the job's net reference area.
func aggregate(lines []domain.LineItem, referenceArea float64) (*domain.Resumo, error) {
	if referenceArea <= 0 {
		return nil, &domain.ErrValidation{Field: "area_m2", Message: "reference area must be positive"}
	}

	subtotals := make(map[domain.UnitCategory]float64)
	var grand float64
	for i := range lines {
		subtotals[lines[i].Category] = roundCents(subtotals[lines[i].Category] + lines[i].LineTotal)
		grand = roundCents(grand + lines[i].LineTotal)
	}

	return &domain.Resumo{
		ReferenceAreaM2:   referenceArea,
		Lines:             lines,
		CategorySubtotals: subtotals,
		GrandTotal:        grand,
		TotalPerM2:        roundCents(grand / referenceArea),
	}, nil
}

// TakeoffService is the quantity takeoff engine: it expands compositions,
// scaled to a target measurement, into priced line items and aggregates them
// into the orçamento resumo. The computation itself is a pure function of the
// registry snapshots; this service only adds the snapshot fetch, metrics and
// tracing around it.
type TakeoffService struct {
	catalog  *CatalogService
	resolver *MappingService
	comps    port.CompositionStore
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewTakeoffService creates the takeoff engine with all dependencies injected.
func NewTakeoffService(catalog *CatalogService, resolver *MappingService, comps port.CompositionStore, metrics *observability.Metrics, logger *zap.Logger) *TakeoffService {
	return &TakeoffService{
		catalog:  catalog,
		resolver: resolver,
		comps:    comps,
		metrics:  metrics,
		logger:   logger,
	}
}

// fetchUnits fetches the unit snapshot for every distinct unit id referenced
// by the given compositions, concurrently. The snapshot is immutable for the
// duration of one takeoff.
func (s *TakeoffService) fetchUnits(ctx context.Context, comps []*domain.Composition) (map[string]*domain.Unit, error) {
	ids := make(map[string]bool)
	for _, c := range comps {
		for i := range c.Items {
			ids[c.Items[i].UnitID] = true
		}
	}

	var mu sync.Mutex
	units := make(map[string]*domain.Unit, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	for id := range ids {
		id := id
		g.Go(func() error {
			u, err := s.catalog.GetUnitByID(gCtx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			units[id] = u
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

// TakeoffComposition expands a single composition at the given net area.
func (s *TakeoffService) TakeoffComposition(ctx context.Context, compositionID string, area float64) (*domain.Resumo, error) {
	ctx, span := takeoffTracer.Start(ctx, "TakeoffService.TakeoffComposition")
	defer span.End()
	span.SetAttributes(attribute.String("composition.id", compositionID))

	if area <= 0 {
		return nil, &domain.ErrValidation{Field: "area_m2", Message: "must be positive"}
	}

	comp, err := s.comps.GetComposition(ctx, compositionID)
	if err != nil {
		return nil, err
	}
	units, err := s.fetchUnits(ctx, []*domain.Composition{comp})
	if err != nil {
		return nil, err
	}

	lines, err := expandComposition(comp, units, area)
	if err != nil {
		return nil, err
	}
	return aggregate(lines, area)
}

// Takeoff runs the full pipeline for a proposal: mapping resolution, the
// caller's composition selection, expansion of every selected composition
// scaled by its application factor, and aggregation. Line items come out in
// (calculation order, item order) — the same inputs always reproduce the same
// proposal, byte for byte.
func (s *TakeoffService) Takeoff(ctx context.Context, req *domain.TakeoffRequest) (*domain.Resumo, error) {
	ctx, span := takeoffTracer.Start(ctx, "TakeoffService.Takeoff")
	defer span.End()
	span.SetAttributes(
		attribute.String("proposal.type", req.ProposalType),
		attribute.Float64("proposal.area_m2", req.AreaM2),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("takeoff", time.Since(start)) }()

	if req.AreaM2 <= 0 {
		s.metrics.RecordTakeoff(req.ProposalType, "error", 0)
		return nil, &domain.ErrValidation{Field: "area_m2", Message: "must be positive"}
	}
	if req.ProposalType == "" {
		s.metrics.RecordTakeoff(req.ProposalType, "error", 0)
		return nil, &domain.ErrValidation{Field: "tipo_proposta", Message: "required"}
	}

	resolved, err := s.resolver.Resolve(ctx, req.ProposalType, false)
	if err != nil {
		s.metrics.RecordTakeoff(req.ProposalType, "error", 0)
		return nil, err
	}

	selected, err := selectMappings(resolved, req.CompositionIDs)
	if err != nil {
		s.metrics.RecordTakeoff(req.ProposalType, "error", 0)
		return nil, err
	}

	comps := make([]*domain.Composition, 0, len(selected))
	for _, rm := range selected {
		comps = append(comps, rm.Composition)
	}
	units, err := s.fetchUnits(ctx, comps)
	if err != nil {
		s.metrics.RecordTakeoff(req.ProposalType, "error", 0)
		return nil, err
	}

	var lines []domain.LineItem
	for _, rm := range selected {
		// Area-scaled compositions expand against the net reference area;
		// mappings declaring a reference dimension expand against the job's
		// measured length for it instead (ridge caps per m of cumeeira,
		// starter strips per m of perimeter). Either way the application
		// factor scales the composition's effect on top.
		scale := req.AreaM2
		if dim := rm.ReferenceDimension; dim != "" {
			length := req.ReferenceLengths[dim]
			if length < 0 {
				s.metrics.RecordTakeoff(req.ProposalType, "error", 0)
				return nil, &domain.ErrValidation{Field: "comprimentos_referencia", Message: dim + " must not be negative"}
			}
			if length == 0 {
				if rm.Required {
					s.metrics.RecordTakeoff(req.ProposalType, "error", 0)
					return nil, &domain.ErrValidation{
						Field:   "comprimentos_referencia",
						Message: dim + " is required for composition " + rm.Composition.Code,
					}
				}
				// A job without this dimension simply has no ridge caps.
				continue
			}
			scale = length
		}
		compLines, err := expandComposition(rm.Composition, units, scale*rm.Factor)
		if err != nil {
			s.metrics.RecordTakeoff(req.ProposalType, "error", 0)
			return nil, err
		}
		lines = append(lines, compLines...)
	}

	resumo, err := aggregate(lines, req.AreaM2)
	if err != nil {
		s.metrics.RecordTakeoff(req.ProposalType, "error", 0)
		return nil, err
	}
	resumo.ProposalType = req.ProposalType

	s.metrics.RecordTakeoff(req.ProposalType, "success", len(resumo.Lines))
	s.logger.Info("takeoff computed",
		zap.String("tipo_proposta", req.ProposalType),
		zap.Float64("area_m2", req.AreaM2),
		zap.Int("composicoes", len(selected)),
		zap.Int("itens", len(resumo.Lines)),
		zap.Float64("valor_total", resumo.GrandTotal),
	)
	return resumo, nil
}

// selectMappings applies the caller's explicit composition selection to a
// mapping resolution. An empty selection means "everything the mapping
// resolves". Selecting an id outside the resolution, or omitting a required
// composition, is an input error: the engine has no notion of "optional",
// only present or absent.
func selectMappings(resolved []domain.ResolvedMapping, ids []string) ([]domain.ResolvedMapping, error) {
	if len(ids) == 0 {
		return resolved, nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var out []domain.ResolvedMapping
	for _, rm := range resolved {
		if wanted[rm.Composition.ID] {
			out = append(out, rm)
			delete(wanted, rm.Composition.ID)
		} else if rm.Required {
			return nil, &domain.ErrValidation{
				Field:   "composicoes",
				Message: "required composition " + rm.Composition.ID + " not selected",
			}
		}
	}
	for id := range wanted {
		return nil, &domain.ErrValidation{Field: "composicoes", Message: "composition " + id + " is not mapped for this proposal type"}
	}
	return out, nil
}
