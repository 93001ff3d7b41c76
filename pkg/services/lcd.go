package services

import (
	"context"
	"strings"
	"time"

	"github.com/medcode-ai/opnote/pkg/models"
)

// DefaultJurisdiction is used when a case supplies no MAC jurisdiction.
const DefaultJurisdiction = "WI"

// LCDPolicy is one local coverage determination policy.
type LCDPolicy struct {
	PolicyID     string
	Title        string
	Jurisdiction string
	CPTCodes     []string
	Criteria     []string
	Keywords     []string
}

// LCDService retrieves and scores coverage policies for a jurisdiction.
type LCDService struct {
	policies     []LCDPolicy
	jurisdiction string
	cache        *Cache
}

// NewLCDService seeds the service. An empty jurisdiction falls back to
// DefaultJurisdiction; nil policies load the built-in subset.
func NewLCDService(policies []LCDPolicy, jurisdiction string, cache *Cache) *LCDService {
	if policies == nil {
		policies = builtinLCDPolicies()
	}
	if jurisdiction == "" {
		jurisdiction = DefaultJurisdiction
	}
	return &LCDService{policies: policies, jurisdiction: jurisdiction, cache: cache}
}

// Jurisdiction returns the MAC jurisdiction this service answers for.
func (s *LCDService) Jurisdiction() string {
	return s.jurisdiction
}

// PoliciesFor returns jurisdiction policies covering any of the CPT codes,
// scored by keyword overlap with the note text. Highest score first.
func (s *LCDService) PoliciesFor(ctx context.Context, cptCodes []string, noteText string) ([]models.PolicyEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(cptCodes))
	for _, c := range cptCodes {
		wanted[c] = true
	}
	lowered := strings.ToLower(noteText)

	var evals []models.PolicyEvaluation
	for _, p := range s.policies {
		if p.Jurisdiction != s.jurisdiction {
			continue
		}
		covers := false
		for _, c := range p.CPTCodes {
			if wanted[c] {
				covers = true
				break
			}
		}
		if !covers {
			continue
		}
		evals = append(evals, s.evaluate(p, lowered))
	}

	// insertion sort by score, lists are tiny
	for i := 1; i < len(evals); i++ {
		for j := i; j > 0 && evals[j].RetrievalScore > evals[j-1].RetrievalScore; j-- {
			evals[j], evals[j-1] = evals[j-1], evals[j]
		}
	}
	return evals, nil
}

// Evaluate runs retrieval plus criteria evaluation and assembles the
// overall coverage result for the case.
func (s *LCDService) Evaluate(ctx context.Context, cptCodes []string, noteText string, dateOfService time.Time) (*models.LCDResult, error) {
	evals, err := s.PoliciesFor(ctx, cptCodes, noteText)
	if err != nil {
		return nil, err
	}

	result := &models.LCDResult{
		Jurisdiction:          s.jurisdiction,
		DateOfService:         dateOfService,
		Evaluations:           evals,
		OverallCoverageStatus: models.CoverageUnknown,
	}
	if len(evals) == 0 {
		return result, nil
	}

	best := evals[0]
	result.BestMatch = &best

	passes, fails := 0, 0
	for _, e := range evals {
		switch e.Status {
		case models.CoveragePass:
			passes++
		case models.CoverageFail:
			fails++
			for _, c := range e.UnmetCriteria {
				if c.Severity == models.FlagSeverityError {
					result.CriticalIssues = append(result.CriticalIssues, c.Criterion)
				}
				if c.Action != "" {
					result.Recommendations = append(result.Recommendations, c.Action)
				}
			}
		}
	}
	switch {
	case fails == 0 && passes > 0:
		result.OverallCoverageStatus = models.CoveragePass
	case passes == 0 && fails > 0:
		result.OverallCoverageStatus = models.CoverageFail
	case passes > 0 && fails > 0:
		result.OverallCoverageStatus = models.CoveragePartial
	}
	return result, nil
}

// evaluate scores one policy and checks its criteria against the note.
// A criterion is met when its keyword phrase appears in the documentation.
func (s *LCDService) evaluate(p LCDPolicy, loweredNote string) models.PolicyEvaluation {
	eval := models.PolicyEvaluation{
		PolicyID: p.PolicyID,
		Title:    p.Title,
		Status:   models.CoveragePass,
	}

	matched := 0
	for _, kw := range p.Keywords {
		if strings.Contains(loweredNote, strings.ToLower(kw)) {
			matched++
			eval.SpecificEvidence = append(eval.SpecificEvidence, kw)
		}
	}
	if len(p.Keywords) > 0 {
		eval.RetrievalScore = float64(matched) / float64(len(p.Keywords))
	}

	for _, criterion := range p.Criteria {
		if strings.Contains(loweredNote, strings.ToLower(criterion)) {
			continue
		}
		eval.UnmetCriteria = append(eval.UnmetCriteria, models.UnmetCriterion{
			Criterion: criterion,
			Action:    "document " + criterion + " in the operative note",
			Severity:  models.FlagSeverityWarning,
		})
	}
	if len(eval.UnmetCriteria) > 0 {
		eval.Status = models.CoverageFail
		eval.AdditionalDocumentation = append(eval.AdditionalDocumentation,
			"supporting documentation for unmet coverage criteria")
	}
	return eval
}

func builtinLCDPolicies() []LCDPolicy {
	return []LCDPolicy{
		{
			PolicyID:     "L34555",
			Title:        "Cholecystectomy for Symptomatic Gallbladder Disease",
			Jurisdiction: "WI",
			CPTCodes:     []string{"47562", "47563"},
			Criteria:     []string{"cholelithiasis", "cholecystitis"},
			Keywords:     []string{"gallbladder", "cholecystectomy", "biliary colic", "cholelithiasis"},
		},
		{
			PolicyID:     "L38962",
			Title:        "Knee Arthroscopy for Meniscal Pathology",
			Jurisdiction: "WI",
			CPTCodes:     []string{"29881", "29870"},
			Criteria:     []string{"meniscal tear", "failed conservative"},
			Keywords:     []string{"meniscus", "arthroscopy", "meniscal tear", "mcmurray"},
		},
		{
			PolicyID:     "L34938",
			Title:        "Appendectomy for Acute Appendicitis",
			Jurisdiction: "WI",
			CPTCodes:     []string{"44970"},
			Criteria:     []string{"appendicitis"},
			Keywords:     []string{"appendix", "appendicitis", "right lower quadrant"},
		},
	}
}
