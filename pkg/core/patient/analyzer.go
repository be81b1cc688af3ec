// Package patient runs the cross-document patient-level analysis: a
// two-pass model review of every document for one patient, merged with
// the deterministic demographic and history checks.
package patient

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"billaudit/pkg/core/llm"
	"billaudit/pkg/core/prompt"
	"billaudit/pkg/core/rules"
	"billaudit/pkg/models"
)

// Document is one input to a patient-level run. History documents feed
// the prompt's medical-history block and are excluded from the
// deterministic procedure scan, which would otherwise flag conditions
// mentioned in the history itself.
type Document struct {
	ID        string
	Text      string
	IsHistory bool
}

// Result is the outcome of one patient-level run. Err is carried inline
// rather than returned so a partial result (pass one succeeded, pass two
// failed) still reaches the caller.
type Result struct {
	DetectedIssues []models.Issue `json:"detected_issues"`
	LatencyMS      int64          `json:"latency_ms"`
	Err            error          `json:"-"`
}

// Analyzer drives the two-pass review against one provider.
type Analyzer struct {
	provider llm.Provider
	logger   *zap.Logger
}

func New(provider llm.Provider, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{provider: provider, logger: logger}
}

// AnalyzePatient reviews all documents for one patient. Pass one submits
// the full prompt; pass two re-asks only for the error categories pass
// one produced nothing for. Model findings are deduplicated by procedure
// code and merged with the deterministic cross-document issues. Latency
// covers both model calls.
func (a *Analyzer) AnalyzePatient(ctx context.Context, profile models.PatientProfile, docs []Document) Result {
	var (
		historyParts []string
		billingTexts []string
		scanDocs     []rules.DocumentText
	)
	for _, d := range docs {
		if d.IsHistory {
			historyParts = append(historyParts, d.Text)
			continue
		}
		billingTexts = append(billingTexts, d.Text)
		scanDocs = append(scanDocs, rules.DocumentText{ID: d.ID, Text: d.Text})
	}
	historyBlock := strings.Join(historyParts, "\n---\n")

	start := time.Now()
	issues, err := a.passOne(ctx, profile, historyBlock, billingTexts)
	if err != nil {
		a.logger.Warn("patient pass one failed", zap.String("patient_id", profile.PatientID), zap.Error(err))
		return Result{
			DetectedIssues: rules.CrossDocumentIssues(profile, scanDocs),
			LatencyMS:      time.Since(start).Milliseconds(),
			Err:            err,
		}
	}

	if missed := missedCategories(issues); len(missed) > 0 {
		second, err := a.passTwo(ctx, profile, missed, billingTexts)
		if err != nil {
			// Pass one findings stand on their own.
			a.logger.Warn("patient pass two failed", zap.String("patient_id", profile.PatientID), zap.Error(err))
		} else {
			issues = mergeByCode(issues, second)
		}
	}

	latency := time.Since(start).Milliseconds()
	issues = mergeByCode(issues, rules.CrossDocumentIssues(profile, scanDocs))

	a.logger.Info("patient analysis complete",
		zap.String("patient_id", profile.PatientID),
		zap.Int("issues", len(issues)),
		zap.Int64("latency_ms", latency))
	return Result{DetectedIssues: issues, LatencyMS: latency}
}

func (a *Analyzer) passOne(ctx context.Context, profile models.PatientProfile, historyBlock string, docs []string) ([]models.Issue, error) {
	resp, err := a.provider.RunPrompt(ctx, prompt.PatientPassOne(profile, historyBlock, docs))
	if err != nil {
		return nil, err
	}
	result, err := llm.ParseIssues(resp, a.provider.Name(), models.SourceLLM)
	if err != nil {
		return nil, err
	}
	return result.Issues, nil
}

func (a *Analyzer) passTwo(ctx context.Context, profile models.PatientProfile, missed []string, docs []string) ([]models.Issue, error) {
	resp, err := a.provider.RunPrompt(ctx, prompt.PatientPassTwo(profile, missed, docs))
	if err != nil {
		return nil, err
	}
	result, err := llm.ParseIssues(resp, a.provider.Name(), models.SourceLLM)
	if err != nil {
		return nil, err
	}
	return result.Issues, nil
}

// missedCategories returns the error categories, in prompt order, that no
// pass-one issue covered. Age findings of either granularity count toward
// the age category.
func missedCategories(issues []models.Issue) []string {
	covered := map[string]bool{}
	for _, iss := range issues {
		covered[categoryOf(iss.Type)] = true
	}
	var missed []string
	for _, c := range prompt.ErrorCategories {
		if !covered[c] {
			missed = append(missed, c)
		}
	}
	return missed
}

func categoryOf(t models.IssueType) string {
	switch t {
	case models.IssueAgeInappropriateProc, models.IssueAgeInappropriateScreen:
		return "age_inappropriate_procedure"
	case models.IssueAnatomicalContradiction, models.IssueTemporalViolation,
		models.IssueGenderContradiction, models.IssueInconsistentWithHistory,
		models.IssueDuplicateCharge:
		return string(t)
	default:
		return "other"
	}
}

// mergeByCode appends additions whose procedure code is not already
// represented. Uncoded additions always pass through: there is nothing
// safe to deduplicate them on.
func mergeByCode(base, additions []models.Issue) []models.Issue {
	seen := map[string]bool{}
	for _, iss := range base {
		if iss.Code != nil && *iss.Code != "" {
			seen[*iss.Code] = true
		}
	}
	out := base
	for _, iss := range additions {
		if iss.Code != nil && *iss.Code != "" {
			if seen[*iss.Code] {
				continue
			}
			seen[*iss.Code] = true
		}
		out = append(out, iss)
	}
	return out
}
