package llm

import (
	"fmt"

	"github.com/shopspring/decimal"

	"billaudit/pkg/core/normalize"
	"billaudit/pkg/core/utils"
	"billaudit/pkg/models"
)

// issuePayload mirrors the JSON issue shape every analysis prompt
// prescribes. decimal.Decimal tolerates both numeric and quoted amounts.
type issuePayload struct {
	Type              string           `json:"type"`
	Summary           string           `json:"summary"`
	Evidence          string           `json:"evidence"`
	Code              *string          `json:"code"`
	Date              *string          `json:"date"`
	MaxSavings        *decimal.Decimal `json:"max_savings"`
	RecommendedAction *string          `json:"recommended_action"`
	Confidence        *float64         `json:"confidence"`
}

type issuesEnvelope struct {
	Issues []issuePayload `json:"issues"`
}

// ParseIssues converts a raw model response into an AnalysisResult with
// the given provider name and source. Unknown issue types map to "other";
// savings are normalized to non-negative cents or absent.
func ParseIssues(resp, providerName, source string) (*models.AnalysisResult, error) {
	var env issuesEnvelope
	if err := utils.SmartUnmarshal(resp, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrJSONParse, err)
	}

	issues := make([]models.Issue, 0, len(env.Issues))
	for _, p := range env.Issues {
		conf := 0.5
		if p.Confidence != nil {
			conf = clamp01(*p.Confidence)
		}
		issues = append(issues, models.Issue{
			Type:              coerceIssueType(p.Type),
			Summary:           p.Summary,
			Evidence:          p.Evidence,
			Code:              p.Code,
			Date:              p.Date,
			MaxSavings:        normalize.Money(p.MaxSavings),
			RecommendedAction: p.RecommendedAction,
			Source:            source,
			Confidence:        conf,
		})
	}

	return &models.AnalysisResult{
		Issues: issues,
		Meta: models.AnalysisMeta{
			Provider:   providerName,
			IssueCount: len(issues),
		},
	}, nil
}

var knownIssueTypes = map[models.IssueType]bool{
	models.IssueDuplicateCharge:         true,
	models.IssueBillingError:            true,
	models.IssueNonCoveredService:       true,
	models.IssueOverbilling:             true,
	models.IssueInsurance:               true,
	models.IssueFSA:                     true,
	models.IssueGenderContradiction:     true,
	models.IssueAgeInappropriateProc:    true,
	models.IssueAgeInappropriateScreen:  true,
	models.IssueAnatomicalContradiction: true,
	models.IssueTemporalViolation:       true,
	models.IssueInconsistentWithHistory: true,
	models.IssueOther:                   true,
}

func coerceIssueType(s string) models.IssueType {
	t := models.IssueType(s)
	if knownIssueTypes[t] {
		return t
	}
	return models.IssueOther
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
