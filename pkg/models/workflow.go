package models

import "time"

// Classification is the document classifier verdict.
type Classification struct {
	DocumentType DocumentType         `json:"document_type"`
	Confidence   float64              `json:"confidence"`
	Scores       map[DocumentType]int `json:"scores"`
}

// PreFacts is the structural summary emitted by the pre-fact scanner.
type PreFacts struct {
	HasCPTCodes    bool `json:"has_cpt_codes"`
	HasDentalCodes bool `json:"has_dental_codes"`
	HasRxMarkers   bool `json:"has_rx_markers"`
	LineCount      int  `json:"line_count"`
	CharCount      int  `json:"char_count"`
}

// PreExtractionLog records the decisions taken before extraction.
type PreExtractionLog struct {
	Classification    Classification `json:"classification"`
	Facts             PreFacts       `json:"facts"`
	ExtractorSelected string         `json:"extractor_selected"`
	ExtractorReason   string         `json:"extractor_reason"`
}

// ExtractionLog records the extraction phase, including phase-2 item counts
// and per-phase error strings. The item-count keys are always serialized,
// null until their pass runs. Error keys are per document type
// (receipt_extraction_error, medical_extraction_error, ...) and are
// omitted when empty.
type ExtractionLog struct {
	Extractor string   `json:"extractor"`
	Facts     *FactMap `json:"facts"`
	FactCount int      `json:"fact_count"`

	ReceiptItemCount   *int `json:"receipt_item_count"`
	MedicalItemCount   *int `json:"medical_item_count"`
	DentalItemCount    *int `json:"dental_item_count"`
	InsuranceItemCount *int `json:"insurance_item_count"`
	FSAItemCount       *int `json:"fsa_item_count"`

	ExtractionError          string `json:"extraction_error,omitempty"`
	ReceiptExtractionError   string `json:"receipt_extraction_error,omitempty"`
	MedicalExtractionError   string `json:"medical_extraction_error,omitempty"`
	DentalExtractionError    string `json:"dental_extraction_error,omitempty"`
	InsuranceExtractionError string `json:"insurance_extraction_error,omitempty"`
	FSAExtractionError       string `json:"fsa_extraction_error,omitempty"`
}

// FallbackInfo records an analyzer substitution.
type FallbackInfo struct {
	Requested string `json:"requested"`
	Used      string `json:"used"`
}

// Analysis modes.
const (
	ModeFactsAndText = "facts+text"
	ModeTextOnly     = "text_only"
)

// AnalysisLog records the analysis phase.
type AnalysisLog struct {
	Analyzer     string          `json:"analyzer"`
	Mode         string          `json:"mode"`
	FallbackUsed *FallbackInfo   `json:"fallback_used,omitempty"`
	Result       *AnalysisResult `json:"result"`
	Error        string          `json:"error,omitempty"`
}

// WorkflowLog is the per-run record of every pipeline decision. It is
// built incrementally during a run and sealed before return; progress
// callbacks receive value snapshots whose pointer fields alias the live
// log and are read-only by contract. A successful
// run serializes exactly the five top-level keys below; Status and
// Cancelled appear only on failed or cancelled runs.
type WorkflowLog struct {
	WorkflowID    string           `json:"workflow_id"`
	Timestamp     time.Time        `json:"timestamp"`
	PreExtraction PreExtractionLog `json:"pre_extraction"`
	Extraction    ExtractionLog    `json:"extraction"`
	Analysis      AnalysisLog      `json:"analysis"`

	Status    string `json:"status,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// StatusFailed marks a sealed log whose run did not produce an analysis.
const StatusFailed = "failed"
