package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/service"
)

// Calculator front ends. Each family decodes its own measurement payload,
// applies the family's deduction rules (domain side) and hands the net area
// to the generic takeoff engine under the family's proposal type.

// netAreaInput is implemented by every family input in the domain package.
type netAreaInput interface {
	NetArea() (float64, error)
}

func runCalculator(w http.ResponseWriter, r *http.Request, svc *service.TakeoffService, logger *zap.Logger, proposalType string, in netAreaInput, compositions []string, lengths map[string]float64) {
	area, err := in.NetArea()
	if err != nil {
		handleServiceError(w, err, logger)
		return
	}

	resumo, err := svc.Takeoff(r.Context(), &domain.TakeoffRequest{
		ProposalType:     proposalType,
		AreaM2:           area,
		ReferenceLengths: lengths,
		CompositionIDs:   compositions,
	})
	if err != nil {
		handleServiceError(w, err, logger)
		return
	}
	writeJSON(w, http.StatusOK, resumo)
}

func drywallCalculatorHandler(svc *service.TakeoffService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.DrywallInput
		if err := decodeBody(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		runCalculator(w, r, svc, logger, domain.TypeDrywallDivisoria, &in, in.Compositions, nil)
	}
}

func shingleCalculatorHandler(svc *service.TakeoffService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.ShingleInput
		if err := decodeBody(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		runCalculator(w, r, svc, logger, domain.TypeTelhasShingle, &in, in.Compositions, map[string]float64{
			domain.DimensionCumeeira:  in.RidgeLengthM,
			domain.DimensionPerimetro: in.PerimeterM,
		})
	}
}

func waterproofingCalculatorHandler(svc *service.TakeoffService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.WaterproofingInput
		if err := decodeBody(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		runCalculator(w, r, svc, logger, domain.TypeImpermeabilizacao, &in, in.Compositions, nil)
	}
}

func ceilingCalculatorHandler(svc *service.TakeoffService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.CeilingInput
		if err := decodeBody(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		runCalculator(w, r, svc, logger, domain.TypeForroDrywall, &in, in.Compositions, nil)
	}
}

func solarCalculatorHandler(svc *service.TakeoffService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.SolarInput
		if err := decodeBody(r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		runCalculator(w, r, svc, logger, domain.TypeEnergiaSolar, &in, in.Compositions, nil)
	}
}
