package models

import "github.com/shopspring/decimal"

// IssueType categorizes a detected billing problem.
type IssueType string

const (
	IssueDuplicateCharge         IssueType = "duplicate_charge"
	IssueBillingError            IssueType = "billing_error"
	IssueNonCoveredService       IssueType = "non_covered_service"
	IssueOverbilling             IssueType = "overbilling"
	IssueInsurance               IssueType = "insurance_issue"
	IssueFSA                     IssueType = "fsa_issue"
	IssueGenderContradiction     IssueType = "gender_specific_contradiction"
	IssueAgeInappropriateProc    IssueType = "age_inappropriate_procedure"
	IssueAgeInappropriateScreen  IssueType = "age_inappropriate_screening"
	IssueAnatomicalContradiction IssueType = "anatomical_contradiction"
	IssueTemporalViolation       IssueType = "temporal_violation"
	IssueInconsistentWithHistory IssueType = "inconsistent_with_health_history"
	IssueOther                   IssueType = "other"
)

// Issue sources. The orchestrator merges analyzer issues (llm) with rule
// engine issues (deterministic); the ensemble provider emits ensemble.
const (
	SourceDeterministic = "deterministic"
	SourceLLM           = "llm"
	SourceEnsemble      = "ensemble"
)

// Issue is one detected finding, either rule-based or model-produced.
type Issue struct {
	Type              IssueType        `json:"type"`
	Summary           string           `json:"summary"`
	Evidence          string           `json:"evidence"`
	Code              *string          `json:"code"`
	Date              *string          `json:"date"`
	MaxSavings        *decimal.Decimal `json:"max_savings"`
	RecommendedAction *string          `json:"recommended_action"`
	Source            string           `json:"source"`
	Confidence        float64          `json:"confidence"`
}

// AnalysisMeta records the savings reconciliation for one run.
// TotalMaxSavings is max(LLMMaxSavings, DeterministicSavings), never the
// sum: model findings routinely restate the deterministic ones and summing
// would double-count.
type AnalysisMeta struct {
	DeterministicSavings decimal.Decimal `json:"deterministic_savings"`
	LLMMaxSavings        decimal.Decimal `json:"llm_max_savings"`
	TotalMaxSavings      decimal.Decimal `json:"total_max_savings"`
	Provider             string          `json:"provider"`
	IssueCount           int             `json:"issue_count"`
}

// AnalysisResult is the reconciled output of one analysis. Issue order is
// observable: analyzer-produced issues first, deterministic issues after.
type AnalysisResult struct {
	Issues []Issue      `json:"issues"`
	Meta   AnalysisMeta `json:"meta"`
}
