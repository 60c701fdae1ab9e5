package service

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/infra/observability"
	"github.com/obraprime/propostas-api/internal/infra/resilience"
	"github.com/obraprime/propostas-api/internal/port"
)

var auditTracer = otel.Tracer("service/audit")

// AuditService runs the price audit: it re-derives every active
// composition's total from its items and reports cached values that drifted
// beyond rounding epsilon. A finding means a recalculation was lost or
// bypassed; the audit is a diagnostic, it never repairs silently.
type AuditService struct {
	comps    port.CompositionStore
	catalog  *CatalogService
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAuditService creates the audit service. concurrency bounds how many
// compositions are re-derived at once.
func NewAuditService(comps port.CompositionStore, catalog *CatalogService, concurrency int, metrics *observability.Metrics, logger *zap.Logger) *AuditService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &AuditService{
		comps:    comps,
		catalog:  catalog,
		bulkhead: resilience.NewBulkhead(concurrency),
		metrics:  metrics,
		logger:   logger,
	}
}

// AuditCompositions checks every active composition and returns the report.
func (s *AuditService) AuditCompositions(ctx context.Context) (*domain.AuditReport, error) {
	ctx, span := auditTracer.Start(ctx, "AuditService.AuditCompositions")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("price_audit", time.Since(start)) }()

	headers, err := s.comps.ListCompositions(ctx, "", true)
	if err != nil {
		return nil, err
	}

	report := &domain.AuditReport{
		RunID:     uuid.New().String(),
		StartedAt: start,
		Checked:   len(headers),
		Findings:  []domain.AuditFinding{},
	}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for _, header := range headers {
		header := header
		g.Go(func() error {
			if err := s.bulkhead.Acquire(gCtx); err != nil {
				return err
			}
			defer s.bulkhead.Release()

			finding, err := s.checkComposition(gCtx, header.ID)
			if err != nil {
				return err
			}
			if finding != nil {
				mu.Lock()
				report.Findings = append(report.Findings, *finding)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		return report.Findings[i].CompositionCode < report.Findings[j].CompositionCode
	})
	report.FinishedAt = time.Now()

	s.logger.Info("price audit finished",
		zap.String("run_id", report.RunID),
		zap.Int("composicoes_verificadas", report.Checked),
		zap.Int("divergencias", len(report.Findings)),
		zap.Duration("duracao", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// checkComposition re-derives one composition's total and compares it to the
// cached value. Returns a finding when they diverge beyond epsilon.
func (s *AuditService) checkComposition(ctx context.Context, compositionID string) (*domain.AuditFinding, error) {
	comp, err := s.comps.GetComposition(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	units := make(map[string]*domain.Unit, len(comp.Items))
	for i := range comp.Items {
		id := comp.Items[i].UnitID
		if _, ok := units[id]; ok {
			continue
		}
		u, err := s.catalog.GetUnitByID(ctx, id)
		if err != nil {
			return nil, err
		}
		units[id] = u
	}

	derived, err := derivedTotalPerM2(comp.Items, units)
	if err != nil {
		return nil, err
	}

	if math.Abs(derived-comp.TotalPerM2) <= totalEpsilon {
		return nil, nil
	}

	s.metrics.IncrAuditFinding()
	consistency := &domain.ErrConsistency{
		CompositionID: comp.ID,
		Cached:        comp.TotalPerM2,
		Derived:       derived,
	}
	s.logger.Warn("price audit divergence", zap.String("codigo", comp.Code), zap.Error(consistency))

	return &domain.AuditFinding{
		CompositionID:   comp.ID,
		CompositionCode: comp.Code,
		CachedTotal:     comp.TotalPerM2,
		DerivedTotal:    derived,
		Delta:           derived - comp.TotalPerM2,
	}, nil
}
