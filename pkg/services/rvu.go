package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/medcode-ai/opnote/pkg/models"
)

// DefaultConversionFactor is the Medicare physician fee schedule conversion
// factor applied when the locality supplies none.
const DefaultConversionFactor = 32.35

// multipleProcedureReduction is the payment fraction applied to the second
// and subsequent procedures on a claim.
const multipleProcedureReduction = 0.5

// RVUDataService answers base RVU and GPCI lookups and performs the
// per-code payment computation and claim sequencing.
type RVUDataService struct {
	baseRVUs         map[string]models.RVUComponents
	gpciByLocality   map[string]models.GPCI
	conversionFactor float64
	cache            *Cache
}

// NewRVUDataService seeds the service; nil tables load the built-in subset.
func NewRVUDataService(baseRVUs map[string]models.RVUComponents, gpci map[string]models.GPCI, cache *Cache) *RVUDataService {
	if baseRVUs == nil {
		baseRVUs = builtinBaseRVUs()
	}
	if gpci == nil {
		gpci = builtinGPCI()
	}
	return &RVUDataService{
		baseRVUs:         baseRVUs,
		gpciByLocality:   gpci,
		conversionFactor: DefaultConversionFactor,
		cache:            cache,
	}
}

// BaseRVU returns the base components for a CPT code.
func (s *RVUDataService) BaseRVU(ctx context.Context, code string) (models.RVUComponents, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.RVUComponents{}, false, err
	}
	rvu, ok := s.baseRVUs[code]
	return rvu, ok, nil
}

// GPCIFor returns the indices for a locality, falling back to the national
// baseline (all indices 1.0) when the locality is unknown.
func (s *RVUDataService) GPCIFor(locality string) models.GPCI {
	if g, ok := s.gpciByLocality[locality]; ok {
		return g
	}
	return models.GPCI{Work: 1.0, PE: 1.0, MP: 1.0}
}

// Calculate computes adjusted RVUs and payment for each procedure code.
// Codes with no fee-schedule entry are flagged, not dropped.
func (s *RVUDataService) Calculate(ctx context.Context, procedures []models.EnhancedProcedureCode, locality string) (*models.RVUResult, error) {
	gpci := s.GPCIFor(locality)
	result := &models.RVUResult{
		ContractorLocality: locality,
		ProcessedAt:        time.Now(),
	}

	for _, p := range procedures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base, ok := s.baseRVUs[p.Code]
		calc := models.RVUCalculation{
			Code:             p.Code,
			BaseRVU:          base,
			GPCI:             gpci,
			ConversionFactor: s.conversionFactor,
		}
		if !ok {
			calc.Flags = append(calc.Flags, "no fee schedule entry")
			result.Calculations = append(result.Calculations, calc)
			continue
		}
		calc.AdjustedRVU = models.RVUComponents{
			Work: base.Work * gpci.Work,
			PE:   base.PE * gpci.PE,
			MP:   base.MP * gpci.MP,
		}
		calc.TotalAdjustedRVU = calc.AdjustedRVU.Total()
		calc.PaymentAmount = round2(calc.TotalAdjustedRVU * s.conversionFactor)
		result.Calculations = append(result.Calculations, calc)
	}
	return result, nil
}

// Sequence orders the claim lines by descending adjusted RVU and applies
// the multiple-procedure payment reduction to secondary lines.
func (s *RVUDataService) Sequence(calcs []models.RVUCalculation, procedures []models.EnhancedProcedureCode) *models.RVUSequencingResult {
	units := make(map[string]int, len(procedures))
	for _, p := range procedures {
		u := p.Units
		if u == 0 {
			u = 1
		}
		units[p.Code] = u
	}

	ordered := append([]models.RVUCalculation(nil), calcs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TotalAdjustedRVU > ordered[j].TotalAdjustedRVU
	})

	result := &models.RVUSequencingResult{
		Calculations:        ordered,
		SequencingRationale: "descending adjusted RVU with multiple-procedure reduction",
	}
	for i, c := range ordered {
		rationale := "primary procedure, full payment"
		if i > 0 {
			rationale = fmt.Sprintf("rank %d, multiple-procedure reduction applied", i+1)
			result.Calculations[i].PaymentAmount = round2(c.PaymentAmount * multipleProcedureReduction)
		}
		result.SequencedCodes = append(result.SequencedCodes, models.SequencedCode{
			Code:             c.Code,
			Rationale:        rationale,
			TotalAdjustedRVU: c.TotalAdjustedRVU,
			Units:            units[c.Code],
		})
		result.TotalRVU += c.TotalAdjustedRVU
	}
	return result
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func builtinBaseRVUs() map[string]models.RVUComponents {
	return map[string]models.RVUComponents{
		"47562": {Work: 10.47, PE: 6.05, MP: 2.45},
		"47563": {Work: 11.47, PE: 6.48, MP: 2.67},
		"44970": {Work: 9.45, PE: 5.31, MP: 2.21},
		"49320": {Work: 5.14, PE: 3.27, MP: 1.20},
		"29881": {Work: 6.26, PE: 5.53, MP: 1.18},
		"29870": {Work: 5.19, PE: 4.73, MP: 0.98},
		"76000": {Work: 0.30, PE: 1.55, MP: 0.03},
		"12001": {Work: 0.84, PE: 1.47, MP: 0.13},
	}
}

func builtinGPCI() map[string]models.GPCI {
	return map[string]models.GPCI{
		"WI": {Work: 1.000, PE: 0.933, MP: 0.505},
		"IL": {Work: 1.006, PE: 1.003, MP: 1.376},
		"MN": {Work: 1.000, PE: 0.995, MP: 0.371},
	}
}
