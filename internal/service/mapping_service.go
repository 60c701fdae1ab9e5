package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/port"
)

var mappingTracer = otel.Tracer("service/mapping")

// MappingService resolves proposal types to the compositions that apply to
// them, and maintains the mapping table for the admin screens.
type MappingService struct {
	mappings port.MappingStore
	comps    port.CompositionStore
	logger   *zap.Logger
}

// NewMappingService creates the mapping resolver with all dependencies injected.
func NewMappingService(mappings port.MappingStore, comps port.CompositionStore, logger *zap.Logger) *MappingService {
	return &MappingService{mappings: mappings, comps: comps, logger: logger}
}

// Resolve answers "which compositions apply to this kind of job", ordered by
// calculation order (composition code as tie-break, so resolution order is
// deterministic). A proposal type with zero active mappings is missing setup,
// not bad user input: ErrConfiguration, distinct from ErrValidation.
func (s *MappingService) Resolve(ctx context.Context, proposalType string, requiredOnly bool) ([]domain.ResolvedMapping, error) {
	ctx, span := mappingTracer.Start(ctx, "MappingService.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("proposal.type", proposalType))

	if proposalType == "" {
		return nil, &domain.ErrValidation{Field: "tipo_proposta", Message: "required"}
	}

	rows, err := s.mappings.ListMappings(ctx, proposalType)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrConfiguration{
			Subject: proposalType,
			Message: "no composition mapping configured for this proposal type",
		}
	}

	resolved := make([]domain.ResolvedMapping, len(rows))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for i, m := range rows {
		i, m := i, m
		g.Go(func() error {
			comp, err := s.comps.GetComposition(gCtx, m.CompositionID)
			if err != nil {
				return err
			}
			mu.Lock()
			resolved[i] = domain.ResolvedMapping{
				Composition:        comp,
				CalculationOrder:   m.CalculationOrder,
				Required:           m.Required,
				Factor:             m.Factor,
				ReferenceDimension: m.ReferenceDimension,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if requiredOnly {
		filtered := resolved[:0]
		for _, rm := range resolved {
			if rm.Required {
				filtered = append(filtered, rm)
			}
		}
		resolved = filtered
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].CalculationOrder != resolved[j].CalculationOrder {
			return resolved[i].CalculationOrder < resolved[j].CalculationOrder
		}
		return resolved[i].Composition.Code < resolved[j].Composition.Code
	})
	return resolved, nil
}

// CreateMapping validates the referenced composition and inserts the mapping.
func (s *MappingService) CreateMapping(ctx context.Context, m *domain.TypeMapping) (*domain.TypeMapping, error) {
	ctx, span := mappingTracer.Start(ctx, "MappingService.CreateMapping")
	defer span.End()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Factor == 0 {
		m.Factor = 1.0
	}
	m.Active = true
	if err := m.Validate(); err != nil {
		return nil, err
	}

	// The mapped composition must exist; it does not have to be active yet.
	if _, err := s.comps.GetComposition(ctx, m.CompositionID); err != nil {
		return nil, err
	}

	created, err := s.mappings.CreateMapping(ctx, m)
	if err != nil {
		s.logger.Error("failed to create mapping",
			zap.String("tipo_proposta", m.ProposalType),
			zap.String("composicao_id", m.CompositionID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("mapping created",
		zap.String("id", created.ID),
		zap.String("tipo_proposta", created.ProposalType),
		zap.String("composicao_id", created.CompositionID),
		zap.Int("ordem_calculo", created.CalculationOrder),
	)
	return created, nil
}

// DeleteMapping removes one mapping; the composition it references survives.
func (s *MappingService) DeleteMapping(ctx context.Context, id string) error {
	ctx, span := mappingTracer.Start(ctx, "MappingService.DeleteMapping")
	defer span.End()

	return s.mappings.DeleteMapping(ctx, id)
}

// ListByType returns the raw mapping rows for one proposal type.
func (s *MappingService) ListByType(ctx context.Context, proposalType string) ([]domain.TypeMapping, error) {
	ctx, span := mappingTracer.Start(ctx, "MappingService.ListByType")
	defer span.End()

	return s.mappings.ListMappings(ctx, proposalType)
}
