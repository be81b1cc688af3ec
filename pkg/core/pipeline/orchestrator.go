// Package pipeline is the single-document orchestrator: classification,
// two-phase extraction, analysis and savings reconciliation, with a
// workflow log recording every decision along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billaudit/pkg/core/classify"
	"billaudit/pkg/core/extract"
	"billaudit/pkg/core/llm"
	"billaudit/pkg/core/normalize"
	"billaudit/pkg/core/prompt"
	"billaudit/pkg/core/rules"
	"billaudit/pkg/models"
)

// Progress stage names, emitted in order during a run.
const (
	StagePreExtraction = "pre_extraction_active"
	StageExtraction    = "extraction_active"
	StageLineItems     = "line_items_active"
	StageAnalysis      = "analysis_active"
	StageComplete      = "complete"
)

// ProgressFunc receives the stage name and a value snapshot of the log as
// built so far. Mutating the snapshot's own fields has no effect on the
// run, but pointer fields (the fact map, the analysis result) alias the
// live log and must be treated as read-only.
type ProgressFunc func(stage string, snapshot models.WorkflowLog)

// RunOptions tune one orchestrator run. Zero value means: route the
// extractor by document type, analyze with the default analyzer, no
// patient context, no progress callbacks.
type RunOptions struct {
	ExtractorOverride string
	AnalyzerOverride  string
	Profile           *models.PatientProfile
	Progress          ProgressFunc
}

// RunResult is the sealed output of one run.
type RunResult struct {
	Facts    *models.FactMap        `json:"facts"`
	Analysis *models.AnalysisResult `json:"analysis"`
	Summary  string                 `json:"summary"`
	Log      models.WorkflowLog     `json:"log"`
}

// DefaultExtractorMap routes classified document types to phase-1
// extractor names. Types not listed fall through to DefaultExtractor.
var DefaultExtractorMap = map[models.DocumentType]string{
	models.DocMedicalBill:     "openai",
	models.DocDentalBill:      "openai",
	models.DocInsuranceEOB:    "openai",
	models.DocGeneric:         "openai",
	models.DocPharmacyReceipt: "gemini",
}

// DefaultExtractor handles document types without a dedicated route.
const DefaultExtractor = "openai"

// Orchestrator wires the registry, the extractor set and the rule engine
// into the end-to-end document run.
type Orchestrator struct {
	registry        *llm.Registry
	extractors      map[string]extract.Extractor
	defaultAnalyzer string
	fallbackName    string
	logger          *zap.Logger
}

// New builds an orchestrator. defaultAnalyzer is used when no override is
// given; fallbackName is substituted (and logged as a fallback) when the
// requested analyzer is not registered. The heuristic provider is the
// usual fallback since it always registers.
func New(registry *llm.Registry, extractors map[string]extract.Extractor, defaultAnalyzer, fallbackName string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:        registry,
		extractors:      extractors,
		defaultAnalyzer: defaultAnalyzer,
		fallbackName:    fallbackName,
		logger:          logger,
	}
}

// Run executes the full pipeline over one document. The workflow log in
// the result is sealed: a successful run carries no status, a failed run
// carries Status "failed", a cancelled run additionally carries
// Cancelled true. The log is always returned, error or not.
func (o *Orchestrator) Run(ctx context.Context, rawText string, opts RunOptions) (*RunResult, error) {
	wlog := models.WorkflowLog{
		WorkflowID: uuid.NewString(),
		Timestamp:  time.Now().UTC(),
	}
	result := &RunResult{Log: wlog}

	o.logger.Info("workflow started", zap.String("workflow_id", wlog.WorkflowID))

	// Pre-extraction: classify, scan, route.
	classification := classify.Classify(rawText)
	preFacts := classify.Scan(rawText)
	extractorName, reason := o.selectExtractor(classification.DocumentType, opts.ExtractorOverride)
	wlog.PreExtraction = models.PreExtractionLog{
		Classification:    classification,
		Facts:             preFacts,
		ExtractorSelected: extractorName,
		ExtractorReason:   reason,
	}
	emit(opts.Progress, StagePreExtraction, wlog)

	if err := checkCancelled(ctx, &wlog, result); err != nil {
		return result, err
	}

	// Phase-1 extraction.
	extractor, ok := o.extractors[extractorName]
	if !ok {
		extractor = o.extractors[DefaultExtractor]
	}
	extractionInput := rawText
	if opts.Profile != nil {
		extractionInput = prompt.ProfilePrologue(*opts.Profile) + rawText
	}

	wlog.Extraction.Extractor = extractorName
	var facts models.FactMap
	if extractor == nil {
		wlog.Extraction.ExtractionError = fmt.Sprintf("no extractor registered under %q", extractorName)
	} else {
		extracted, err := extractor.Extract(ctx, extractionInput)
		if err != nil {
			wlog.Extraction.ExtractionError = err.Error()
		}
		facts = normalize.Facts(extracted)
	}
	wlog.Extraction.Facts = &facts
	wlog.Extraction.FactCount = facts.FactCount()
	emit(opts.Progress, StageExtraction, wlog)

	if err := checkCancelled(ctx, &wlog, result); err != nil {
		return result, err
	}

	// Phase-2 line items. Dispatch is on the normalized document type
	// only; the classifier's guess routes the extractor, never this
	// pass, so an unknown type skips line-item extraction. Failure here
	// is recorded but does not abort the run; phase-1 facts still feed
	// the analysis.
	docType := facts.Doc()
	if p2 := o.phase2For(extractorName); p2 != nil && docType != models.DocUnknown {
		if err := p2.Run(ctx, docType, rawText, &facts, &wlog.Extraction); err != nil {
			o.logger.Warn("line-item extraction failed",
				zap.String("workflow_id", wlog.WorkflowID),
				zap.Error(err))
		}
	}
	wlog.Extraction.Facts = &facts
	emit(opts.Progress, StageLineItems, wlog)

	if err := checkCancelled(ctx, &wlog, result); err != nil {
		return result, err
	}

	// Analysis.
	requested := opts.AnalyzerOverride
	if requested == "" {
		requested = o.defaultAnalyzer
	}
	analyzer, err := o.registry.Get(requested)
	if err != nil {
		fallback, ferr := o.registry.Get(o.fallbackName)
		if ferr != nil {
			wlog.Analysis.Analyzer = requested
			wlog.Analysis.Error = err.Error()
			return seal(result, &wlog, fmt.Errorf("%w: %s and fallback %s", models.ErrAnalyzerUnavailable, requested, o.fallbackName))
		}
		analyzer = fallback
		wlog.Analysis.FallbackUsed = &models.FallbackInfo{Requested: requested, Used: o.fallbackName}
		o.logger.Warn("analyzer unavailable, using fallback",
			zap.String("requested", requested),
			zap.String("used", o.fallbackName))
	}
	wlog.Analysis.Analyzer = analyzer.Name()
	emit(opts.Progress, StageAnalysis, wlog)

	analysis, mode, err := o.analyze(ctx, analyzer, rawText, &facts)
	wlog.Analysis.Mode = mode
	if err != nil {
		wlog.Analysis.Error = err.Error()
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			wlog.Status = models.StatusFailed
			wlog.Cancelled = true
			result.Log = wlog
			return result, models.ErrCancelled
		}
		return seal(result, &wlog, err)
	}

	// Savings reconciliation and issue merge: analyzer issues first,
	// deterministic issues after.
	deterministicIssues := rules.Issues(&facts)
	deterministicSavings := rules.Savings(&facts)
	llmSavings := decimal.Zero
	for _, iss := range analysis.Issues {
		if iss.Source != models.SourceDeterministic && iss.MaxSavings != nil {
			llmSavings = llmSavings.Add(*iss.MaxSavings)
		}
	}
	total := llmSavings
	if deterministicSavings.GreaterThan(total) {
		total = deterministicSavings
	}
	analysis.Issues = append(analysis.Issues, deterministicIssues...)
	analysis.Meta.DeterministicSavings = deterministicSavings
	analysis.Meta.LLMMaxSavings = llmSavings
	analysis.Meta.TotalMaxSavings = total
	analysis.Meta.IssueCount = len(analysis.Issues)
	if analysis.Meta.Provider == "" {
		analysis.Meta.Provider = analyzer.Name()
	}

	wlog.Analysis.Result = analysis
	result.Facts = &facts
	result.Analysis = analysis
	result.Summary = summarize(analysis)
	result.Log = wlog
	emit(opts.Progress, StageComplete, wlog)

	o.logger.Info("workflow complete",
		zap.String("workflow_id", wlog.WorkflowID),
		zap.Int("issues", analysis.Meta.IssueCount),
		zap.String("total_max_savings", total.StringFixed(2)))
	return result, nil
}

// selectExtractor applies the override when given, otherwise routes by
// the classified document type. The reason strings are part of the
// workflow log surface.
func (o *Orchestrator) selectExtractor(docType models.DocumentType, override string) (name, reason string) {
	if override != "" {
		return override, "override"
	}
	if routed, ok := DefaultExtractorMap[docType]; ok {
		return routed, "regex classification"
	}
	return DefaultExtractor, fmt.Sprintf("no route for document type %s, using default", docType)
}

// phase2For builds the line-item parser over the same backend that ran
// phase-1, so both passes stay on one provider.
func (o *Orchestrator) phase2For(extractorName string) *extract.Phase2Parser {
	e, ok := o.extractors[extractorName]
	if !ok {
		return nil
	}
	switch typed := e.(type) {
	case *extract.LLMExtractor:
		return extract.NewPhase2Parser(typed.Provider(), o.logger)
	case *extract.HeuristicExtractor:
		return extract.NewPhase2Parser(llm.NewHeuristicProvider(), o.logger)
	default:
		return nil
	}
}

// analyze prefers the fact-aware path when the analyzer supports it and
// facts exist. A fact-aware failure retries once in text-only mode before
// giving up: a malformed fact bundle must not take down a run the plain
// prompt could complete.
func (o *Orchestrator) analyze(ctx context.Context, analyzer llm.Provider, text string, facts *models.FactMap) (*models.AnalysisResult, string, error) {
	if fa, ok := analyzer.(llm.FactAwareAnalyzer); ok && facts.FactCount() > 0 {
		result, err := fa.AnalyzeDocumentWithFacts(ctx, text, facts)
		if err == nil {
			return result, models.ModeFactsAndText, nil
		}
		if ctx.Err() != nil {
			return nil, models.ModeFactsAndText, err
		}
		o.logger.Warn("fact-aware analysis failed, retrying text-only",
			zap.String("analyzer", analyzer.Name()),
			zap.Error(err))
	}
	result, err := analyzer.AnalyzeDocument(ctx, text)
	if err != nil {
		return nil, models.ModeTextOnly, err
	}
	return result, models.ModeTextOnly, nil
}

func summarize(a *models.AnalysisResult) string {
	if len(a.Issues) == 0 {
		return "No billing issues detected."
	}
	return fmt.Sprintf("%d issue(s) detected; up to $%s in potential savings.",
		len(a.Issues), a.Meta.TotalMaxSavings.StringFixed(2))
}

func emit(fn ProgressFunc, stage string, snapshot models.WorkflowLog) {
	if fn != nil {
		fn(stage, snapshot)
	}
}

func checkCancelled(ctx context.Context, wlog *models.WorkflowLog, result *RunResult) error {
	if ctx.Err() == nil {
		return nil
	}
	wlog.Status = models.StatusFailed
	wlog.Cancelled = true
	result.Log = *wlog
	return models.ErrCancelled
}

func seal(result *RunResult, wlog *models.WorkflowLog, err error) (*RunResult, error) {
	wlog.Status = models.StatusFailed
	result.Log = *wlog
	return result, err
}
