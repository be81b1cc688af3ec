package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billaudit/pkg/core/extract"
	"billaudit/pkg/core/llm"
	"billaudit/pkg/models"
)

// stubProvider scripts every provider entry point. It always satisfies
// FactAwareAnalyzer; tests that want text-only behavior make factsFn fail.
type stubProvider struct {
	name      string
	runFn     func(prompt string) (string, error)
	analyzeFn func() (*models.AnalysisResult, error)
	factsFn   func(facts *models.FactMap) (*models.AnalysisResult, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) HealthCheck(ctx context.Context) bool { return true }

func (s *stubProvider) RunPrompt(ctx context.Context, prompt string) (string, error) {
	if s.runFn != nil {
		return s.runFn(prompt)
	}
	return `{"issues":[]}`, nil
}

func (s *stubProvider) AnalyzeDocument(ctx context.Context, text string) (*models.AnalysisResult, error) {
	if s.analyzeFn != nil {
		return s.analyzeFn()
	}
	return &models.AnalysisResult{}, nil
}

func (s *stubProvider) AnalyzeDocumentWithFacts(ctx context.Context, text string, facts *models.FactMap) (*models.AnalysisResult, error) {
	if s.factsFn != nil {
		return s.factsFn(facts)
	}
	return &models.AnalysisResult{}, nil
}

const medicalBillText = `MEDICAL BILL
Patient: Jane Roe
Date of Service: 2024-03-01
CPT 99213 office visit  $50.00
CPT 99213 office visit  $50.00`

// scriptedRun answers the phase-1 and phase-2 prompts for medicalBillText.
func scriptedRun(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "EXACTLY these keys"):
		return `{"patient_name":"Jane Roe","date_of_service":"2024-03-01","document_type":"medical_bill"}`, nil
	case strings.Contains(prompt, `"medical_line_items"`):
		return `{"medical_line_items":[
			{"date_of_service":"2024-03-01","description":"office visit","cpt_code":"99213","patient_responsibility":50.00},
			{"date_of_service":"2024-03-01","description":"office visit","cpt_code":"99213","patient_responsibility":50.00}
		]}`, nil
	default:
		return `{"issues":[]}`, nil
	}
}

func llmFinding() *models.AnalysisResult {
	savings := decimal.NewFromFloat(10.00)
	return &models.AnalysisResult{Issues: []models.Issue{{
		Type:       models.IssueOverbilling,
		Summary:    "visit billed above the usual rate",
		Evidence:   "office visit at $50.00",
		MaxSavings: &savings,
		Source:     models.SourceLLM,
		Confidence: 0.7,
	}}}
}

func newTestOrchestrator(t *testing.T, stub *stubProvider) *Orchestrator {
	t.Helper()
	registry := llm.NewRegistry(nil)
	require.True(t, registry.Register(context.Background(), stub))
	extractors := map[string]extract.Extractor{
		"openai": extract.NewLLMExtractor("openai", stub, nil),
	}
	return New(registry, extractors, stub.Name(), stub.Name(), nil)
}

func TestRunMergesAnalyzerAndDeterministicIssues(t *testing.T) {
	stub := &stubProvider{
		name:  "stub",
		runFn: scriptedRun,
		factsFn: func(facts *models.FactMap) (*models.AnalysisResult, error) {
			require.NotNil(t, facts)
			require.Len(t, facts.MedicalLineItems, 2)
			return llmFinding(), nil
		},
	}
	o := newTestOrchestrator(t, stub)

	result, err := o.Run(context.Background(), medicalBillText, RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Analysis)

	// Analyzer issue first, then the deterministic duplicate.
	require.Len(t, result.Analysis.Issues, 2)
	assert.Equal(t, models.SourceLLM, result.Analysis.Issues[0].Source)
	assert.Equal(t, models.SourceDeterministic, result.Analysis.Issues[1].Source)
	assert.Equal(t, models.IssueDuplicateCharge, result.Analysis.Issues[1].Type)

	// Total savings is the max of the two channels, never the sum.
	meta := result.Analysis.Meta
	assert.True(t, meta.DeterministicSavings.Equal(decimal.NewFromFloat(50.00)), meta.DeterministicSavings.String())
	assert.True(t, meta.LLMMaxSavings.Equal(decimal.NewFromFloat(10.00)), meta.LLMMaxSavings.String())
	assert.True(t, meta.TotalMaxSavings.Equal(decimal.NewFromFloat(50.00)), meta.TotalMaxSavings.String())
	assert.Equal(t, 2, meta.IssueCount)

	assert.Equal(t, models.ModeFactsAndText, result.Log.Analysis.Mode)
	assert.Contains(t, result.Summary, "2 issue(s)")
}

func TestRunEmitsProgressStagesInOrder(t *testing.T) {
	stub := &stubProvider{name: "stub", runFn: scriptedRun, factsFn: func(*models.FactMap) (*models.AnalysisResult, error) {
		return llmFinding(), nil
	}}
	o := newTestOrchestrator(t, stub)

	var stages []string
	result, err := o.Run(context.Background(), medicalBillText, RunOptions{
		Progress: func(stage string, snapshot models.WorkflowLog) {
			assert.NotEmpty(t, snapshot.WorkflowID)
			stages = append(stages, stage)
			// Snapshot fields are copies; scribbling on them must not
			// reach the run.
			snapshot.Extraction.Extractor = "scribbled"
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		StagePreExtraction,
		StageExtraction,
		StageLineItems,
		StageAnalysis,
		StageComplete,
	}, stages)
	assert.Equal(t, "openai", result.Log.Extraction.Extractor)
}

func TestRunSkipsLineItemsWhenDocumentTypeUnknown(t *testing.T) {
	// Phase-1 never names a document type; the classifier still scores the
	// text as a medical bill. Phase-2 dispatches on the normalized type
	// only, so it must not run.
	stub := &stubProvider{
		name: "stub",
		runFn: func(prompt string) (string, error) {
			if strings.Contains(prompt, "EXACTLY these keys") {
				return `{"patient_name":"Jane Roe","date_of_service":"2024-03-01"}`, nil
			}
			return `{"medical_line_items":[
				{"date_of_service":"2024-03-01","description":"office visit","cpt_code":"99213","patient_responsibility":50.00}
			]}`, nil
		},
	}
	o := newTestOrchestrator(t, stub)

	result, err := o.Run(context.Background(), medicalBillText, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.DocMedicalBill, result.Log.PreExtraction.Classification.DocumentType)
	assert.Nil(t, result.Log.Extraction.MedicalItemCount)
	assert.Empty(t, result.Facts.MedicalLineItems)
}

func TestRunSuccessLogHasFiveTopLevelKeys(t *testing.T) {
	stub := &stubProvider{name: "stub", runFn: scriptedRun, factsFn: func(*models.FactMap) (*models.AnalysisResult, error) {
		return llmFinding(), nil
	}}
	o := newTestOrchestrator(t, stub)

	result, err := o.Run(context.Background(), medicalBillText, RunOptions{})
	require.NoError(t, err)

	raw, err := json.Marshal(result.Log)
	require.NoError(t, err)
	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &top))

	assert.Len(t, top, 5)
	for _, key := range []string{"workflow_id", "timestamp", "pre_extraction", "extraction", "analysis"} {
		assert.Contains(t, top, key)
	}
}

func TestRunFallsBackWhenAnalyzerMissing(t *testing.T) {
	stub := &stubProvider{name: "stub", runFn: scriptedRun, factsFn: func(*models.FactMap) (*models.AnalysisResult, error) {
		return llmFinding(), nil
	}}
	o := newTestOrchestrator(t, stub)

	result, err := o.Run(context.Background(), medicalBillText, RunOptions{AnalyzerOverride: "missing"})
	require.NoError(t, err)

	fb := result.Log.Analysis.FallbackUsed
	require.NotNil(t, fb)
	assert.Equal(t, "missing", fb.Requested)
	assert.Equal(t, "stub", fb.Used)
	assert.Equal(t, "stub", result.Log.Analysis.Analyzer)
}

func TestRunRetriesTextOnlyAfterFactAwareFailure(t *testing.T) {
	stub := &stubProvider{
		name:  "stub",
		runFn: scriptedRun,
		factsFn: func(*models.FactMap) (*models.AnalysisResult, error) {
			return nil, errors.New("fact bundle rejected")
		},
		analyzeFn: func() (*models.AnalysisResult, error) {
			return llmFinding(), nil
		},
	}
	o := newTestOrchestrator(t, stub)

	result, err := o.Run(context.Background(), medicalBillText, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.ModeTextOnly, result.Log.Analysis.Mode)
	assert.Empty(t, result.Log.Analysis.Error)
}

func TestRunCancelledContext(t *testing.T) {
	stub := &stubProvider{name: "stub", runFn: scriptedRun}
	o := newTestOrchestrator(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Run(ctx, medicalBillText, RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCancelled))
	assert.True(t, result.Log.Cancelled)
	assert.Equal(t, models.StatusFailed, result.Log.Status)
	assert.Nil(t, result.Analysis)
}

func TestRunAnalyzerFailureSealsLog(t *testing.T) {
	stub := &stubProvider{
		name:  "stub",
		runFn: scriptedRun,
		factsFn: func(*models.FactMap) (*models.AnalysisResult, error) {
			return nil, errors.New("backend down")
		},
		analyzeFn: func() (*models.AnalysisResult, error) {
			return nil, errors.New("backend down")
		},
	}
	o := newTestOrchestrator(t, stub)

	result, err := o.Run(context.Background(), medicalBillText, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, result.Log.Status)
	assert.False(t, result.Log.Cancelled)
	assert.NotEmpty(t, result.Log.Analysis.Error)
	assert.Nil(t, result.Analysis)
}

func TestSelectExtractorRouting(t *testing.T) {
	o := &Orchestrator{}

	name, reason := o.selectExtractor(models.DocPharmacyReceipt, "")
	assert.Equal(t, "gemini", name)
	assert.Equal(t, "regex classification", reason)

	name, reason = o.selectExtractor(models.DocMedicalBill, "heuristic")
	assert.Equal(t, "heuristic", name)
	assert.Equal(t, "override", reason)

	name, reason = o.selectExtractor(models.DocUnknown, "")
	assert.Equal(t, DefaultExtractor, name)
	assert.Contains(t, reason, "using default")
}
