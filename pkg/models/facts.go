// Package models defines the shared data shapes that flow through the
// billing analysis pipeline: extracted fact maps, line items, detected
// issues, analysis results and the per-run workflow log.
package models

import "github.com/shopspring/decimal"

// DocumentType is the normalized classification of a submitted document.
type DocumentType string

const (
	DocMedicalBill        DocumentType = "medical_bill"
	DocDentalBill         DocumentType = "dental_bill"
	DocPharmacyReceipt    DocumentType = "pharmacy_receipt"
	DocInsuranceEOB       DocumentType = "insurance_eob"
	DocInsuranceClaimHist DocumentType = "insurance_claim_history"
	DocInsuranceDocument  DocumentType = "insurance_document"
	DocFSAClaimHistory    DocumentType = "fsa_claim_history"
	DocFSAReceipt         DocumentType = "fsa_receipt"
	DocGeneric            DocumentType = "generic"
	DocUnknown            DocumentType = "unknown"
)

// KnownDocumentTypes enumerates every value document_type may take after
// normalization. Anything else is coerced to DocUnknown.
var KnownDocumentTypes = map[DocumentType]bool{
	DocMedicalBill:        true,
	DocDentalBill:         true,
	DocPharmacyReceipt:    true,
	DocInsuranceEOB:       true,
	DocInsuranceClaimHist: true,
	DocInsuranceDocument:  true,
	DocFSAClaimHistory:    true,
	DocFSAReceipt:         true,
	DocGeneric:            true,
	DocUnknown:            true,
}

// FactMap is the canonical set of document-level facts produced by an
// extractor. Every field is optional; nil means the extractor could not
// find a value. Extractors must return the full struct (all keys present,
// nil where unknown) so downstream code never distinguishes "missing key"
// from "absent value". Line items are attached after phase-2 parsing.
type FactMap struct {
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

	MedicalLineItems    []MedicalLineItem    `json:"medical_line_items,omitempty"`
	DentalLineItems     []DentalLineItem     `json:"dental_line_items,omitempty"`
	ReceiptItems        []ReceiptItem        `json:"receipt_items,omitempty"`
	InsuranceClaimItems []InsuranceClaimItem `json:"insurance_claim_items,omitempty"`
	FSAClaimItems       []FSAClaimItem       `json:"fsa_claim_items,omitempty"`
}

// Doc returns the normalized document type, or DocUnknown when absent.
func (f *FactMap) Doc() DocumentType {
	if f == nil || f.DocumentType == nil {
		return DocUnknown
	}
	dt := DocumentType(*f.DocumentType)
	if !KnownDocumentTypes[dt] {
		return DocUnknown
	}
	return dt
}

// FactCount reports how many of the fourteen fact keys carry a value.
func (f *FactMap) FactCount() int {
	n := 0
	for _, p := range []*string{
		f.PatientName, f.DateOfBirth, f.DateOfService, f.TimeOfService,
		f.DateRangeStart, f.DateRangeEnd, f.ProviderName, f.FacilityName,
		f.Address, f.PhoneNumber, f.ProcedureCode, f.ReceiptNumber,
		f.StoreID, f.DocumentType,
	} {
		if p != nil {
			n++
		}
	}
	return n
}

// MedicalLineItem is one row of a medical bill.
type MedicalLineItem struct {
	DateOfService         string           `json:"date_of_service"`
	Description           string           `json:"description"`
	CPTCode               *string          `json:"cpt_code"`
	Billed                *decimal.Decimal `json:"billed"`
	Allowed               *decimal.Decimal `json:"allowed"`
	PatientResponsibility *decimal.Decimal `json:"patient_responsibility"`
	Units                 *int             `json:"units"`
}

// DentalLineItem is one row of a dental bill.
type DentalLineItem struct {
	DateOfService         string           `json:"date_of_service"`
	Description           string           `json:"description"`
	CDTCode               *string          `json:"cdt_code"`
	ToothNumber           *string          `json:"tooth_number"`
	Billed                *decimal.Decimal `json:"billed"`
	PatientResponsibility *decimal.Decimal `json:"patient_responsibility"`
}

// ReceiptItem is one purchased item on a pharmacy or FSA receipt.
type ReceiptItem struct {
	Description       string           `json:"description"`
	Amount            *decimal.Decimal `json:"amount"`
	FSAEligible       *bool            `json:"fsa_eligible"`
	EligibilityReason *string          `json:"eligibility_reason"`
}

// InsuranceClaimItem is one claim row from an EOB or claim history.
type InsuranceClaimItem struct {
	Date                  string           `json:"date"`
	Provider              string           `json:"provider"`
	Billed                *decimal.Decimal `json:"billed"`
	Allowed               *decimal.Decimal `json:"allowed"`
	InsurancePaid         *decimal.Decimal `json:"insurance_paid"`
	PatientResponsibility *decimal.Decimal `json:"patient_responsibility"`
	Status                string           `json:"status"`
}

// FSAClaimItem is one row of an FSA claim history.
type FSAClaimItem struct {
	DateSubmitted    *string          `json:"date_submitted"`
	Merchant         *string          `json:"merchant"`
	Description      string           `json:"description"`
	AmountSubmitted  *decimal.Decimal `json:"amount_submitted"`
	AmountReimbursed *decimal.Decimal `json:"amount_reimbursed"`
	Status           *string          `json:"status"`
}

// PatientProfile carries the demographics and history injected into
// patient-level runs. It is an external input; the core never mutates it.
type PatientProfile struct {
	PatientID            string   `json:"patient_id"`
	Name                 string   `json:"name"`
	Age                  int      `json:"age"`
	Sex                  string   `json:"sex"` // "M", "F" or "other"
	DateOfBirth          string   `json:"date_of_birth"`
	Conditions           []string `json:"conditions"`
	Allergies            []string `json:"allergies"`
	PriorSurgicalHistory []string `json:"prior_surgical_history"`
}
