// Package classify routes raw document text to an extractor family.
// Classification is a pure regex scoring pass: no model call, no state.
package classify

import (
	"regexp"

	"billaudit/pkg/models"
)

// Per-type trigger patterns. These are frozen; changing them changes which
// extractor family a document is routed to.
var patterns = map[models.DocumentType][]*regexp.Regexp{
	models.DocMedicalBill: {
		regexp.MustCompile(`(?i)\bCPT\b`),
		regexp.MustCompile(`(?i)ICD-10`),
		regexp.MustCompile(`(?i)Date of Service`),
		regexp.MustCompile(`(?i)Patient Responsibility`),
		regexp.MustCompile(`(?i)Allowed Amount`),
	},
	models.DocInsuranceEOB: {
		regexp.MustCompile(`(?i)Explanation of Benefits`),
		regexp.MustCompile(`(?i)\bEOB\b`),
		regexp.MustCompile(`(?i)Insurance Paid`),
		regexp.MustCompile(`(?i)Claim Number`),
	},
	models.DocPharmacyReceipt: {
		regexp.MustCompile(`(?i)\bRx\b`),
		regexp.MustCompile(`(?i)NDC`),
		regexp.MustCompile(`(?i)Pharmacy`),
		regexp.MustCompile(`(?i)Copay`),
	},
	models.DocDentalBill: {
		regexp.MustCompile(`(?i)\bD\d{4}\b`),
		regexp.MustCompile(`(?i)Dental`),
		regexp.MustCompile(`(?i)Crown`),
		regexp.MustCompile(`(?i)Lab Fee`),
	},
}

// Tie-break ordering: specific document kinds before general ones.
var tieBreak = []models.DocumentType{
	models.DocDentalBill,
	models.DocMedicalBill,
	models.DocPharmacyReceipt,
	models.DocInsuranceEOB,
}

var (
	cptTokenRe   = regexp.MustCompile(`(?i)\bCPT\b`)
	dentalCodeRe = regexp.MustCompile(`(?i)\bD\d{4}\b`)
	reimburseRe  = regexp.MustCompile(`(?i)Explanation of Benefits|\bEOB\b|Insurance Paid`)
	procCodeRe   = regexp.MustCompile(`(?i)\bCPT\b|\bD\d{4}\b|\b\d{5}\b`)
)

// Classify scores the text against every recognized document type and
// returns the winner with a confidence in [0,1]. When nothing matches the
// result is {generic, 0.0, {}}. The same text always yields the same
// result.
func Classify(text string) models.Classification {
	scores := map[models.DocumentType]int{}
	total := 0
	for dt, pats := range patterns {
		n := 0
		for _, re := range pats {
			n += len(re.FindAllStringIndex(text, -1))
		}
		if n > 0 {
			scores[dt] = n
			total += n
		}
	}

	if total == 0 {
		return models.Classification{
			DocumentType: models.DocGeneric,
			Confidence:   0.0,
			Scores:       map[models.DocumentType]int{},
		}
	}

	winner := models.DocGeneric
	best := 0
	for _, dt := range tieBreak {
		if scores[dt] > best {
			winner = dt
			best = scores[dt]
		}
	}

	// Dental codes outrank CPT codes when both are present: dental bills
	// often cite CPT for ancillary charges, the reverse never happens.
	if winner == models.DocMedicalBill && dentalCodeRe.MatchString(text) && cptTokenRe.MatchString(text) && scores[models.DocDentalBill] > 0 {
		winner = models.DocDentalBill
	}

	// Reimbursement tables outweigh procedure codes: an EOB restating the
	// bill's codes is still an EOB.
	if (winner == models.DocMedicalBill || winner == models.DocDentalBill) &&
		reimburseRe.MatchString(text) && procCodeRe.MatchString(text) &&
		scores[models.DocInsuranceEOB] >= scores[winner] {
		winner = models.DocInsuranceEOB
	}

	return models.Classification{
		DocumentType: winner,
		Confidence:   float64(scores[winner]) / float64(total),
		Scores:       scores,
	}
}
