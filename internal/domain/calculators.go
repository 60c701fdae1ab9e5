package domain

// Family-specific measurement inputs for the calculator front ends. Each
// family applies its own deduction rules to produce the net reference area
// BEFORE the takeoff engine is invoked; the engine itself only ever sees the
// net measurement.

// Standard deduction areas, in m². Openings are deducted at a fixed standard
// size regardless of the actual frame ordered.
const (
	DoorAreaM2   = 2.10 // 0.90 x 2.10 standard door leaf + frame allowance
	WindowAreaM2 = 1.44 // 1.20 x 1.20 standard window
)

// DrywallInput are the measurements for drywall partition jobs.
type DrywallInput struct {
	WallAreaM2   float64  `json:"area_parede_m2"`
	Doors        int      `json:"quantidade_portas"`
	Windows      int      `json:"quantidade_janelas"`
	Compositions []string `json:"composicoes,omitempty"`
}

// NetArea deducts standard openings from the gross wall area.
func (in *DrywallInput) NetArea() (float64, error) {
	if in.WallAreaM2 <= 0 {
		return 0, &ErrValidation{Field: "area_parede_m2", Message: "must be positive"}
	}
	if in.Doors < 0 {
		return 0, &ErrValidation{Field: "quantidade_portas", Message: "must not be negative"}
	}
	if in.Windows < 0 {
		return 0, &ErrValidation{Field: "quantidade_janelas", Message: "must not be negative"}
	}
	net := in.WallAreaM2 - float64(in.Doors)*DoorAreaM2 - float64(in.Windows)*WindowAreaM2
	if net <= 0 {
		return 0, &ErrValidation{Field: "area_parede_m2", Message: "openings deduct the whole wall area"}
	}
	return net, nil
}

// ShingleInput are the measurements for shingle roofing jobs. The roof area
// is taken on the slope (already corrected for pitch by the caller); ridge
// and perimeter lengths feed the linear compositions through their
// application factors.
type ShingleInput struct {
	RoofAreaM2   float64  `json:"area_total_m2"`
	RidgeLengthM float64  `json:"comprimento_cumeeira"`
	PerimeterM   float64  `json:"perimetro_telhado"`
	Compositions []string `json:"composicoes,omitempty"`
}

// NetArea validates and returns the slope roof area.
func (in *ShingleInput) NetArea() (float64, error) {
	if in.RoofAreaM2 <= 0 {
		return 0, &ErrValidation{Field: "area_total_m2", Message: "must be positive"}
	}
	if in.RidgeLengthM < 0 {
		return 0, &ErrValidation{Field: "comprimento_cumeeira", Message: "must not be negative"}
	}
	if in.PerimeterM < 0 {
		return 0, &ErrValidation{Field: "perimetro_telhado", Message: "must not be negative"}
	}
	return in.RoofAreaM2, nil
}

// WaterproofingInput are the measurements for waterproofing jobs. Membranes
// turn up the perimeter walls, so the upstand strip is added to the floor
// area before expansion.
type WaterproofingInput struct {
	FloorAreaM2    float64  `json:"area_total_m2"`
	PerimeterM     float64  `json:"perimetro"`
	UpstandHeightM float64  `json:"altura_rodape"`
	Compositions   []string `json:"composicoes,omitempty"`
}

// NetArea adds the perimeter upstand strip to the floor area.
func (in *WaterproofingInput) NetArea() (float64, error) {
	if in.FloorAreaM2 <= 0 {
		return 0, &ErrValidation{Field: "area_total_m2", Message: "must be positive"}
	}
	if in.PerimeterM < 0 {
		return 0, &ErrValidation{Field: "perimetro", Message: "must not be negative"}
	}
	if in.UpstandHeightM < 0 {
		return 0, &ErrValidation{Field: "altura_rodape", Message: "must not be negative"}
	}
	return in.FloorAreaM2 + in.PerimeterM*in.UpstandHeightM, nil
}

// CeilingInput are the measurements for drywall ceiling jobs.
type CeilingInput struct {
	CeilingAreaM2 float64  `json:"area_total_m2"`
	AccessHatches int      `json:"quantidade_alcapoes"`
	Compositions  []string `json:"composicoes,omitempty"`
}

// hatchAreaM2 is the standard access-hatch cutout.
const hatchAreaM2 = 0.36

// NetArea deducts access hatches from the ceiling area.
func (in *CeilingInput) NetArea() (float64, error) {
	if in.CeilingAreaM2 <= 0 {
		return 0, &ErrValidation{Field: "area_total_m2", Message: "must be positive"}
	}
	if in.AccessHatches < 0 {
		return 0, &ErrValidation{Field: "quantidade_alcapoes", Message: "must not be negative"}
	}
	net := in.CeilingAreaM2 - float64(in.AccessHatches)*hatchAreaM2
	if net <= 0 {
		return 0, &ErrValidation{Field: "area_total_m2", Message: "hatches deduct the whole ceiling area"}
	}
	return net, nil
}

// SolarInput are the measurements for solar-energy jobs. Sizing is by usable
// roof area; the compositions carry panel density per m².
type SolarInput struct {
	UsableRoofM2 float64  `json:"area_util_m2"`
	Compositions []string `json:"composicoes,omitempty"`
}

// NetArea validates and returns the usable roof area.
func (in *SolarInput) NetArea() (float64, error) {
	if in.UsableRoofM2 <= 0 {
		return 0, &ErrValidation{Field: "area_util_m2", Message: "must be positive"}
	}
	return in.UsableRoofM2, nil
}
