package services

import (
	"context"
	"fmt"
	"time"

	"github.com/medcode-ai/opnote/pkg/models"
)

// PTPEdit is one procedure-to-procedure bundling edit from the CCI tables.
// ModifierIndicator "0" means never billable together, "1" means a bypass
// modifier is allowed.
type PTPEdit struct {
	PrimaryCode       string
	SecondaryCode     string
	ModifierIndicator string
	AllowedModifiers  []string
	Rationale         string
}

// CodeReference is the per-CPT reference row: MUE limit, MAI, and global
// period data used by the bundling checks.
type CodeReference struct {
	Code        string
	Description string
	MUELimit    int
	MAI         int
	GlobalDays  string
	StatusCode  string
}

// CCIDataService answers bundling-edit and units-limit lookups. Backed by
// an in-memory table seeded at construction; lookups go through the cache.
type CCIDataService struct {
	edits map[string][]PTPEdit
	codes map[string]CodeReference
	cache *Cache
}

// NewCCIDataService seeds the service. Passing nil tables loads the
// built-in reference subset.
func NewCCIDataService(edits []PTPEdit, codes []CodeReference, cache *Cache) *CCIDataService {
	if edits == nil {
		edits = builtinPTPEdits()
	}
	if codes == nil {
		codes = builtinCodeReferences()
	}
	svc := &CCIDataService{
		edits: make(map[string][]PTPEdit),
		codes: make(map[string]CodeReference, len(codes)),
		cache: cache,
	}
	for _, e := range edits {
		svc.edits[e.PrimaryCode] = append(svc.edits[e.PrimaryCode], e)
	}
	for _, c := range codes {
		svc.codes[c.Code] = c
	}
	return svc
}

// EditsFor returns the PTP edits where the code is primary.
func (s *CCIDataService) EditsFor(ctx context.Context, code string) ([]PTPEdit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := "ptp:" + code
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.([]PTPEdit), nil
		}
	}
	edits := s.edits[code]
	if s.cache != nil {
		s.cache.Set(key, edits)
	}
	return edits, nil
}

// Reference returns the per-code reference row.
func (s *CCIDataService) Reference(ctx context.Context, code string) (CodeReference, bool, error) {
	if err := ctx.Err(); err != nil {
		return CodeReference{}, false, err
	}
	ref, ok := s.codes[code]
	return ref, ok, nil
}

// CheckProcedures runs the PTP, MUE, and global-period checks across a code
// set and returns the assembled result.
func (s *CCIDataService) CheckProcedures(ctx context.Context, procedures []models.EnhancedProcedureCode) (*models.CCIResult, *models.MUEResult, error) {
	result := &models.CCIResult{
		ProcessedAt: time.Now(),
		DataSource:  "builtin",
	}

	present := make(map[string]bool, len(procedures))
	for _, p := range procedures {
		present[p.Code] = true
	}

	for _, p := range procedures {
		edits, err := s.EditsFor(ctx, p.Code)
		if err != nil {
			return nil, nil, fmt.Errorf("ptp lookup for %s: %w", p.Code, err)
		}
		for _, e := range edits {
			if !present[e.SecondaryCode] {
				continue
			}
			severity := models.FlagSeverityError
			if e.ModifierIndicator == "1" {
				severity = models.FlagSeverityWarning
			}
			result.PTPFlags = append(result.PTPFlags, models.PTPFlag{
				PrimaryCode:       e.PrimaryCode,
				SecondaryCode:     e.SecondaryCode,
				Severity:          severity,
				Message:           e.Rationale,
				ModifierIndicator: e.ModifierIndicator,
				AllowedModifiers:  e.AllowedModifiers,
			})
		}

		ref, ok, err := s.Reference(ctx, p.Code)
		if err != nil {
			return nil, nil, fmt.Errorf("reference lookup for %s: %w", p.Code, err)
		}
		if !ok {
			continue
		}
		units := p.Units
		if units == 0 {
			units = 1
		}
		if ref.MUELimit > 0 && units > ref.MUELimit {
			severity := models.FlagSeverityWarning
			if ref.MAI == 2 || ref.MAI == 3 {
				severity = models.FlagSeverityError
			}
			result.MUEFlags = append(result.MUEFlags, models.MUEFlag{
				Code:         p.Code,
				ClaimedUnits: units,
				MaxUnits:     ref.MUELimit,
				MAI:          ref.MAI,
				Severity:     severity,
				Message:      fmt.Sprintf("%d units exceeds MUE limit of %d", units, ref.MUELimit),
			})
		}
		if ref.GlobalDays == "090" || ref.GlobalDays == "010" {
			result.GlobalFlags = append(result.GlobalFlags, models.GlobalFlag{
				Code:                p.Code,
				GlobalDays:          ref.GlobalDays,
				Severity:            models.FlagSeverityInfo,
				Message:             fmt.Sprintf("code carries a %s-day global period", ref.GlobalDays),
				RecommendedModifier: "",
			})
		}
	}

	result.Summary = models.SummarizeCCI(result)

	mue := &models.MUEResult{
		Flags:       result.MUEFlags,
		Status:      models.CCIStatusPass,
		ProcessedAt: result.ProcessedAt,
	}
	for _, f := range result.MUEFlags {
		if f.Severity == models.FlagSeverityError {
			mue.Status = models.CCIStatusFail
			break
		}
		mue.Status = models.CCIStatusWarning
	}
	return result, mue, nil
}

// builtinPTPEdits is a small, real subset of the CCI PTP table covering the
// procedures the built-in reference data knows about.
func builtinPTPEdits() []PTPEdit {
	return []PTPEdit{
		{
			PrimaryCode:       "47562",
			SecondaryCode:     "47563",
			ModifierIndicator: "0",
			Rationale:         "laparoscopic cholecystectomy with cholangiography bundles plain cholecystectomy",
		},
		{
			PrimaryCode:       "47562",
			SecondaryCode:     "76000",
			ModifierIndicator: "1",
			AllowedModifiers:  []string{"59", "XU"},
			Rationale:         "fluoroscopy is bundled unless a distinct service applies",
		},
		{
			PrimaryCode:       "44970",
			SecondaryCode:     "49320",
			ModifierIndicator: "0",
			Rationale:         "diagnostic laparoscopy bundles into laparoscopic appendectomy",
		},
		{
			PrimaryCode:       "29881",
			SecondaryCode:     "29870",
			ModifierIndicator: "1",
			AllowedModifiers:  []string{"59"},
			Rationale:         "diagnostic knee arthroscopy bundles into meniscectomy same compartment",
		},
	}
}

func builtinCodeReferences() []CodeReference {
	return []CodeReference{
		{Code: "47562", Description: "Laparoscopy, surgical; cholecystectomy", MUELimit: 1, MAI: 2, GlobalDays: "090", StatusCode: "A"},
		{Code: "47563", Description: "Laparoscopy, surgical; cholecystectomy with cholangiography", MUELimit: 1, MAI: 2, GlobalDays: "090", StatusCode: "A"},
		{Code: "44970", Description: "Laparoscopy, surgical, appendectomy", MUELimit: 1, MAI: 2, GlobalDays: "090", StatusCode: "A"},
		{Code: "49320", Description: "Laparoscopy, abdomen, diagnostic", MUELimit: 1, MAI: 2, GlobalDays: "010", StatusCode: "A"},
		{Code: "29881", Description: "Arthroscopy, knee, surgical; with meniscectomy", MUELimit: 2, MAI: 1, GlobalDays: "090", StatusCode: "A"},
		{Code: "29870", Description: "Arthroscopy, knee, diagnostic", MUELimit: 1, MAI: 2, GlobalDays: "010", StatusCode: "A"},
		{Code: "76000", Description: "Fluoroscopy, up to 1 hour", MUELimit: 2, MAI: 3, GlobalDays: "XXX", StatusCode: "A"},
		{Code: "12001", Description: "Simple repair of superficial wounds; 2.5 cm or less", MUELimit: 1, MAI: 2, GlobalDays: "000", StatusCode: "A"},
	}
}
