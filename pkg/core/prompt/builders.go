// Package prompt builds the prompt strings submitted to LLM backends.
// The pipeline treats every builder's output as an opaque byte-exact
// input to the provider; nothing downstream parses prompts.
package prompt

import (
	"fmt"
	"strings"

	"billaudit/pkg/models"
)

// extractionSystem lists the fact keys and per-key rules for phase-1
// extraction. Every backend receives the same template.
const extractionSystem = `You are a meticulous healthcare billing analyst.
Extract document-level facts from the billing document below and return a single JSON object with EXACTLY these keys (use null when a value is not present):

  patient_name, date_of_birth, date_of_service, time_of_service,
  date_range_start, date_range_end, provider_name, facility_name,
  address, phone_number, procedure_code, receipt_number, store_id,
  document_type

Extraction rules:
- patient_name: the person receiving care, never the provider.
- date_of_service: the date care was delivered; if the document covers a range, set date_range_start and date_range_end instead.
- phone_number, receipt_number, store_id, procedure_code: copy exactly as printed.
- document_type: classify as ONE of medical_bill, dental_bill, pharmacy_receipt, insurance_eob, insurance_claim_history, insurance_document, fsa_claim_history, fsa_receipt, generic, unknown.
  Classification priority: dental codes (D####) indicate dental_bill even when CPT codes are also present; reimbursement tables indicate insurance_eob even when procedure codes are present; a register receipt with Rx markers is pharmacy_receipt.

Return ONLY the JSON object. No commentary, no markdown fences.`

// Extraction builds the phase-1 fact extraction prompt.
func Extraction(documentText string) string {
	return fmt.Sprintf("%s\n\nDOCUMENT:\n%s", extractionSystem, documentText)
}

// ProfilePrologue renders the optional patient-context block prefixed to
// the extraction input when the caller supplies a profile.
func ProfilePrologue(p models.PatientProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PATIENT CONTEXT: name=%s age=%d sex=%s dob=%s\n", p.Name, p.Age, p.Sex, p.DateOfBirth)
	if len(p.Conditions) > 0 {
		fmt.Fprintf(&b, "Known conditions: %s\n", strings.Join(p.Conditions, "; "))
	}
	b.WriteString("---\n")
	return b.String()
}

// Phase-2 prompts: each prescribes the exact JSON shape for one
// line-item variant and embeds the raw document text.

func ReceiptItems(documentText string) string {
	return fmt.Sprintf(`Extract every purchased item from the pharmacy or FSA receipt below.
Return ONLY a JSON object of this exact shape:
{"receipt_items":[{"description":"...","amount":0.00,"fsa_eligible":true,"eligibility_reason":"..."}]}
amount is the item total in dollars. fsa_eligible and eligibility_reason may be null.

RECEIPT:
%s`, documentText)
}

func MedicalItems(documentText string) string {
	return fmt.Sprintf(`Extract every charge line from the medical bill below.
Return ONLY a JSON object of this exact shape:
{"medical_line_items":[{"date_of_service":"YYYY-MM-DD","description":"...","cpt_code":"99999","billed":0.00,"allowed":0.00,"patient_responsibility":0.00,"units":1}]}
cpt_code, billed, allowed, patient_responsibility and units may be null when not printed.

BILL:
%s`, documentText)
}

func DentalItems(documentText string) string {
	return fmt.Sprintf(`Extract every charge line from the dental bill below.
Return ONLY a JSON object of this exact shape:
{"dental_line_items":[{"date_of_service":"YYYY-MM-DD","description":"...","cdt_code":"D9999","tooth_number":"14","billed":0.00,"patient_responsibility":0.00}]}
cdt_code, tooth_number, billed and patient_responsibility may be null when not printed.

BILL:
%s`, documentText)
}

func InsuranceItems(documentText string) string {
	return fmt.Sprintf(`Extract every claim row from the insurance statement below.
Return ONLY a JSON object of this exact shape:
{"insurance_claim_items":[{"date":"YYYY-MM-DD","provider":"...","billed":0.00,"allowed":0.00,"insurance_paid":0.00,"patient_responsibility":0.00,"status":"paid|denied|pending"}]}
billed, allowed, insurance_paid and patient_responsibility may be null when not printed.

STATEMENT:
%s`, documentText)
}

func FSAItems(documentText string) string {
	return fmt.Sprintf(`Extract every claim row from the FSA claim history below.
Return ONLY a JSON object of this exact shape:
{"fsa_claim_items":[{"date_submitted":"YYYY-MM-DD","merchant":"...","description":"...","amount_submitted":0.00,"amount_reimbursed":0.00,"status":"..."}]}
date_submitted, merchant, amount_submitted, amount_reimbursed and status may be null when not printed.

HISTORY:
%s`, documentText)
}

// analysisInstructions is shared by the document analysis prompts.
const analysisInstructions = `You are a healthcare billing auditor. Identify billing errors, duplicate charges, denied claims worth appealing, and missed reimbursements.
Return ONLY a JSON object of this exact shape:
{"issues":[{"type":"duplicate_charge|billing_error|non_covered_service|overbilling|insurance_issue|fsa_issue|other","summary":"...","evidence":"...","code":"99999","date":"YYYY-MM-DD","max_savings":0.00,"recommended_action":"...","confidence":0.8}]}
code, date, max_savings and recommended_action may be null. confidence is your certainty in [0,1]. Report only issues supported by the document text.`

// Analysis builds the text-only document analysis prompt.
func Analysis(documentText string) string {
	return fmt.Sprintf("%s\n\nDOCUMENT:\n%s", analysisInstructions, documentText)
}

// AnalysisWithFacts appends the extracted facts so the model reasons over
// the structured view as well as the raw text.
func AnalysisWithFacts(documentText, factsJSON string) string {
	return fmt.Sprintf("%s\n\nEXTRACTED FACTS:\n%s\n\nDOCUMENT:\n%s", analysisInstructions, factsJSON, documentText)
}

// ErrorCategories are the seven cross-document error categories the
// patient-level analyzer enumerates, in prompt order.
var ErrorCategories = []string{
	"anatomical_contradiction",
	"temporal_violation",
	"gender_specific_contradiction",
	"age_inappropriate_procedure",
	"inconsistent_with_health_history",
	"duplicate_charge",
	"other",
}

const patientInstructions = `You are a clinical billing auditor reviewing ALL documents for ONE patient.
Work in two explicit reasoning steps:
STEP 1 - build a timeline of every billed procedure across all documents.
STEP 2 - check every procedure against the patient profile for these error categories:
  1. anatomical_contradiction - procedure on an organ the patient no longer has or never had
  2. temporal_violation - procedures whose sequence or spacing is clinically impossible
  3. gender_specific_contradiction - procedure inconsistent with the patient's sex
  4. age_inappropriate_procedure - procedure or screening outside its age indication
  5. inconsistent_with_health_history - procedure contradicted by conditions or history
  6. duplicate_charge - same procedure billed more than once across documents
  7. other - any other billing error
Return ONLY a JSON object: {"issues":[{"type":"...","summary":"...","evidence":"...","code":"99999","date":"YYYY-MM-DD","max_savings":0.00,"recommended_action":"...","confidence":0.8}]}`

// PatientPassOne builds the full two-pass cross-document prompt: profile,
// optional primary-care history block, then every document separated.
func PatientPassOne(profile models.PatientProfile, historyBlock string, docs []string) string {
	var b strings.Builder
	b.WriteString(patientInstructions)
	b.WriteString("\n\nPATIENT PROFILE:\n")
	b.WriteString(profileBlock(profile))
	if historyBlock != "" {
		b.WriteString("\nPRIMARY CARE MEDICAL HISTORY:\n")
		b.WriteString(historyBlock)
		b.WriteString("\n")
	}
	for i, doc := range docs {
		fmt.Fprintf(&b, "\n===== DOCUMENT %d =====\n%s\n", i+1, doc)
	}
	return b.String()
}

// PatientPassTwo builds the smaller targeted prompt that re-lists the
// patient summary and only the categories pass one produced nothing for.
func PatientPassTwo(profile models.PatientProfile, missedCategories []string, docs []string) string {
	var b strings.Builder
	b.WriteString("Second pass. Re-examine the documents ONLY for these categories that were not covered in the first pass:\n")
	for _, c := range missedCategories {
		fmt.Fprintf(&b, "  - %s\n", c)
	}
	b.WriteString("\nPATIENT SUMMARY:\n")
	b.WriteString(profileBlock(profile))
	for i, doc := range docs {
		fmt.Fprintf(&b, "\n===== DOCUMENT %d =====\n%s\n", i+1, doc)
	}
	b.WriteString("\nReturn ONLY the same JSON issue shape as before. Return {\"issues\":[]} if nothing is found.")
	return b.String()
}

func profileBlock(p models.PatientProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name=%s age=%d sex=%s dob=%s\n", p.Name, p.Age, p.Sex, p.DateOfBirth)
	fmt.Fprintf(&b, "conditions: %s\n", strings.Join(p.Conditions, "; "))
	fmt.Fprintf(&b, "allergies: %s\n", strings.Join(p.Allergies, "; "))
	fmt.Fprintf(&b, "prior surgeries: %s\n", strings.Join(p.PriorSurgicalHistory, "; "))
	return b.String()
}
