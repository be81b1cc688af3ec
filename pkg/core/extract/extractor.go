// Package extract holds the fact extractor adapters (phase-1) and the
// line-item parser (phase-2). All adapters satisfy the same contract:
// they always return a complete fact map (every key present, nil where
// unknown) and never turn a backend failure into a pipeline failure.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"billaudit/pkg/core/classify"
	"billaudit/pkg/core/llm"
	"billaudit/pkg/core/normalize"
	"billaudit/pkg/core/prompt"
	"billaudit/pkg/core/utils"
	"billaudit/pkg/models"
)

// Extractor produces a fact map from raw text. The error return is
// informational only: on failure the map is the all-absent map and the
// error string is recorded in the workflow log.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, text string) (models.FactMap, error)
}

// LLMExtractor drives a model backend with the static extraction prompt
// and projects the JSON response onto the known key set. Unknown keys in
// the response are discarded.
type LLMExtractor struct {
	name     string
	provider llm.Provider
	logger   *zap.Logger
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor wraps a provider as a phase-1 extractor. The extractor
// name (e.g. "openai", "gemini") is the routing key in the default
// extractor map, independent of the provider's registry name.
func NewLLMExtractor(name string, provider llm.Provider, logger *zap.Logger) *LLMExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{name: name, provider: provider, logger: logger}
}

func (e *LLMExtractor) Name() string { return e.name }

// Provider exposes the backing provider so phase-2 can dispatch through
// the same backend that performed phase-1.
func (e *LLMExtractor) Provider() llm.Provider { return e.provider }

// factPayload mirrors the fact keys for response projection. encoding/json
// drops any key the model invents.
type factPayload struct {
	PatientName    *string `json:"patient_name"`
	DateOfBirth    *string `json:"date_of_birth"`
	DateOfService  *string `json:"date_of_service"`
	TimeOfService  *string `json:"time_of_service"`
	DateRangeStart *string `json:"date_range_start"`
	DateRangeEnd   *string `json:"date_range_end"`
	ProviderName   *string `json:"provider_name"`
	FacilityName   *string `json:"facility_name"`
	Address        *string `json:"address"`
	PhoneNumber    *string `json:"phone_number"`
	ProcedureCode  *string `json:"procedure_code"`
	ReceiptNumber  *string `json:"receipt_number"`
	StoreID        *string `json:"store_id"`
	DocumentType   *string `json:"document_type"`
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (models.FactMap, error) {
	resp, err := e.provider.RunPrompt(ctx, prompt.Extraction(text))
	if err != nil {
		e.logger.Warn("extraction prompt failed", zap.String("extractor", e.name), zap.Error(err))
		return models.FactMap{}, fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}

	var payload factPayload
	if err := utils.SmartUnmarshal(resp, &payload); err != nil {
		e.logger.Warn("extraction response unparseable", zap.String("extractor", e.name), zap.Error(err))
		return models.FactMap{}, fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}

	return models.FactMap{
		PatientName:    payload.PatientName,
		DateOfBirth:    payload.DateOfBirth,
		DateOfService:  payload.DateOfService,
		TimeOfService:  payload.TimeOfService,
		DateRangeStart: payload.DateRangeStart,
		DateRangeEnd:   payload.DateRangeEnd,
		ProviderName:   payload.ProviderName,
		FacilityName:   payload.FacilityName,
		Address:        payload.Address,
		PhoneNumber:    payload.PhoneNumber,
		ProcedureCode:  payload.ProcedureCode,
		ReceiptNumber:  payload.ReceiptNumber,
		StoreID:        payload.StoreID,
		DocumentType:   payload.DocumentType,
	}, nil
}

// HeuristicExtractor is the regex fallback used when no model key is
// available or the caller forces offline mode.
type HeuristicExtractor struct{}

var _ Extractor = (*HeuristicExtractor)(nil)

func NewHeuristicExtractor() *HeuristicExtractor { return &HeuristicExtractor{} }

func (e *HeuristicExtractor) Name() string { return "heuristic" }

var (
	patientRe  = regexp.MustCompile(`(?im)^\s*Patient(?: Name)?\s*[:#]\s*(.+)$`)
	dobRe      = regexp.MustCompile(`(?im)\b(?:DOB|Date of Birth)\s*[:#]\s*(\S[^\n]*)`)
	dosRe      = regexp.MustCompile(`(?im)\bDate of Service\s*[:#]\s*(\S[^\n]*)`)
	providerRe = regexp.MustCompile(`(?im)^\s*(?:Provider|Physician|Doctor|Dentist)\s*[:#]\s*(.+)$`)
	facilityRe = regexp.MustCompile(`(?im)^\s*(?:Facility|Clinic|Hospital|Location)\s*[:#]\s*(.+)$`)
	phoneRe    = regexp.MustCompile(`\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}`)
	receiptRe  = regexp.MustCompile(`(?im)\bReceipt\s*#?\s*[:#]?\s*([A-Z0-9-]+)`)
	storeRe    = regexp.MustCompile(`(?im)\bStore\s*(?:ID|#)\s*[:#]?\s*([A-Z0-9-]+)`)
	procCodeRe = regexp.MustCompile(`\b(?:D\d{4}|\d{5})\b`)
	timeRe     = regexp.MustCompile(`\b\d{1,2}:\d{2}(?:\s?[AP]M)?\b`)
)

func (e *HeuristicExtractor) Extract(ctx context.Context, text string) (models.FactMap, error) {
	f := models.FactMap{}
	f.PatientName = firstGroup(patientRe, text)
	f.DateOfBirth = firstGroup(dobRe, text)
	f.DateOfService = firstGroup(dosRe, text)
	f.ProviderName = firstGroup(providerRe, text)
	f.FacilityName = firstGroup(facilityRe, text)
	f.PhoneNumber = firstMatch(phoneRe, text)
	f.ReceiptNumber = firstGroup(receiptRe, text)
	f.StoreID = firstGroup(storeRe, text)
	f.ProcedureCode = firstMatch(procCodeRe, text)
	f.TimeOfService = firstMatch(timeRe, text)

	dt := string(classify.Classify(text).DocumentType)
	f.DocumentType = &dt
	return f, nil
}

func firstGroup(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return nil
	}
	return &v
}

func firstMatch(re *regexp.Regexp, text string) *string {
	m := re.FindString(text)
	if m == "" {
		return nil
	}
	return &m
}

// Normalize runs the fact normalizer over an extractor result. Separate
// so tests can exercise raw extraction.
func Normalize(f models.FactMap) models.FactMap {
	return normalize.Facts(f)
}
