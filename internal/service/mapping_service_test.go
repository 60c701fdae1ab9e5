package service_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/service"
)

func shingleFixture() (*mockCompositionStore, *mockMappingStore) {
	comps := &mockCompositionStore{comps: map[string]*domain.Composition{
		"comp-telhas": {ID: "comp-telhas", Code: "COMP-TELHA", Name: "Telhado shingle", Category: domain.CompCobertura, Active: true},
		"comp-osb":    {ID: "comp-osb", Code: "COMP-OSB", Name: "Deck OSB", Category: domain.CompCobertura, Active: true},
		"comp-manta":  {ID: "comp-manta", Code: "COMP-MANTA", Name: "Subcobertura", Category: domain.CompCobertura, Active: true},
	}}
	maps := &mockMappingStore{rows: []domain.TypeMapping{
		{ID: "map-3", ProposalType: domain.TypeTelhasShingle, CompositionID: "comp-telhas", CalculationOrder: 2, Required: false, Factor: 1.0, Active: true},
		{ID: "map-1", ProposalType: domain.TypeTelhasShingle, CompositionID: "comp-osb", CalculationOrder: 1, Required: true, Factor: 1.0, Active: true},
		// Same calculation order as the shingle row: code is the tie-break.
		{ID: "map-2", ProposalType: domain.TypeTelhasShingle, CompositionID: "comp-manta", CalculationOrder: 2, Required: true, Factor: 1.0, Active: true},
	}}
	return comps, maps
}

func TestResolve_DeterministicOrder(t *testing.T) {
	comps, maps := shingleFixture()
	svc := service.NewMappingService(maps, comps, zap.NewNop())

	resolved, err := svc.Resolve(context.Background(), domain.TypeTelhasShingle, false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resolved) != 3 {
		t.Fatalf("expected 3 resolved mappings, got %d", len(resolved))
	}

	got := []string{
		resolved[0].Composition.Code,
		resolved[1].Composition.Code,
		resolved[2].Composition.Code,
	}
	want := []string{"COMP-OSB", "COMP-MANTA", "COMP-TELHA"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestResolve_RequiredOnly(t *testing.T) {
	comps, maps := shingleFixture()
	svc := service.NewMappingService(maps, comps, zap.NewNop())

	resolved, err := svc.Resolve(context.Background(), domain.TypeTelhasShingle, true)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 required mappings, got %d", len(resolved))
	}
	for _, rm := range resolved {
		if !rm.Required {
			t.Errorf("expected only required mappings, got %s", rm.Composition.Code)
		}
	}
}

func TestResolve_NoMappingConfigured(t *testing.T) {
	comps, maps := shingleFixture()
	svc := service.NewMappingService(maps, comps, zap.NewNop())

	_, err := svc.Resolve(context.Background(), domain.TypeEnergiaSolar, false)
	var cerr *domain.ErrConfiguration
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestResolve_EmptyProposalType(t *testing.T) {
	comps, maps := shingleFixture()
	svc := service.NewMappingService(maps, comps, zap.NewNop())

	_, err := svc.Resolve(context.Background(), "", false)
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateMapping_DefaultsFactor(t *testing.T) {
	comps, maps := shingleFixture()
	svc := service.NewMappingService(maps, comps, zap.NewNop())

	created, err := svc.CreateMapping(context.Background(), &domain.TypeMapping{
		ProposalType:  domain.TypeEnergiaSolar,
		CompositionID: "comp-osb",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.Factor != 1.0 {
		t.Errorf("expected factor defaulted to 1.0, got %f", created.Factor)
	}
	if created.ID == "" {
		t.Error("expected generated id")
	}
	if !created.Active {
		t.Error("expected mapping created active")
	}
}

func TestCreateMapping_UnknownComposition(t *testing.T) {
	comps, maps := shingleFixture()
	svc := service.NewMappingService(maps, comps, zap.NewNop())

	_, err := svc.CreateMapping(context.Background(), &domain.TypeMapping{
		ProposalType:  domain.TypeEnergiaSolar,
		CompositionID: "comp-missing",
	})
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMapping_KeepsComposition(t *testing.T) {
	comps, maps := shingleFixture()
	svc := service.NewMappingService(maps, comps, zap.NewNop())

	if err := svc.DeleteMapping(context.Background(), "map-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := comps.GetComposition(context.Background(), "comp-osb"); err != nil {
		t.Errorf("expected composition to survive mapping deletion, got %v", err)
	}
}
