package rules

import (
	"fmt"
	"regexp"
	"strings"

	"billaudit/pkg/models"
)

// procedureConstraint captures the demographic gate on a procedure code.
type procedureConstraint struct {
	description string
	sex         string // "M", "F" or "" for any
	minAge      int    // 0 when not constrained
	maxAge      int    // 0 when not constrained
	screening   bool   // age findings become age_inappropriate_screening
}

// Demographic gates for the procedure codes the deterministic engine knows
// about. Deliberately small: only codes whose constraint is unambiguous
// clinical fact belong here, everything subtler is the model's job.
var procedureConstraints = map[string]procedureConstraint{
	// Obstetric care and imaging
	"59400": {description: "routine obstetric care with vaginal delivery", sex: "F"},
	"59510": {description: "routine obstetric care with cesarean delivery", sex: "F"},
	"76801": {description: "obstetric ultrasound, first trimester", sex: "F"},
	"76805": {description: "obstetric ultrasound, second or third trimester", sex: "F"},
	"76811": {description: "detailed fetal anatomic ultrasound", sex: "F"},
	"59025": {description: "fetal non-stress test", sex: "F"},
	// Gynecology
	"58150": {description: "total abdominal hysterectomy", sex: "F"},
	"57454": {description: "colposcopy with biopsy", sex: "F"},
	"88175": {description: "cervical cytology (pap smear)", sex: "F", screening: true},
	"77067": {description: "screening mammography, bilateral", sex: "F", screening: true},
	// Male-specific
	"55700": {description: "prostate biopsy", sex: "M"},
	"55250": {description: "vasectomy", sex: "M"},
	"84153": {description: "PSA screening", sex: "M", screening: true},
	// Age-gated screenings
	"45378": {description: "screening colonoscopy", minAge: 45, screening: true},
	"77080": {description: "bone density (DEXA) screening", minAge: 50, screening: true},
	"G0439": {description: "annual wellness visit, subsequent", minAge: 18, screening: true},
	// Pediatric-only
	"90460": {description: "pediatric immunization administration with counseling", maxAge: 18},
	"99381": {description: "preventive visit, infant", maxAge: 1},
}

var crossDocCodeRe = regexp.MustCompile(`\b(?:[A-Z]\d{4}|\d{5})\b`)

// DocumentText pairs a source document id with its raw text for
// cross-document scanning.
type DocumentText struct {
	ID   string
	Text string
}

// CrossDocumentIssues scans every document's procedure codes against the
// patient's demographics and prior surgical history. These findings need
// no model: a male patient billed for an obstetric ultrasound is wrong by
// definition.
func CrossDocumentIssues(profile models.PatientProfile, docs []DocumentText) []models.Issue {
	var out []models.Issue
	seen := map[string]bool{}

	for _, doc := range docs {
		for _, code := range crossDocCodeRe.FindAllString(doc.Text, -1) {
			c, ok := procedureConstraints[code]
			if !ok || seen[code] {
				continue
			}
			if iss := checkConstraint(profile, doc.ID, code, c); iss != nil {
				out = append(out, *iss)
				seen[code] = true
			}
		}
	}

	out = append(out, historyContradictions(profile, docs)...)
	return out
}

func checkConstraint(profile models.PatientProfile, docID, code string, c procedureConstraint) *models.Issue {
	codeCopy := code
	action := "Contact the provider to verify the billed procedure; request a corrected claim if it was billed to the wrong patient."

	if c.sex != "" && profile.Sex != "" && profile.Sex != "other" && profile.Sex != c.sex {
		return &models.Issue{
			Type:    models.IssueGenderContradiction,
			Summary: fmt.Sprintf("procedure %s (%s) is inconsistent with patient sex %s", code, c.description, profile.Sex),
			Evidence: fmt.Sprintf("document %s bills code %s (%s), which is only performed for %s patients",
				docID, code, c.description, c.sex),
			Code:              &codeCopy,
			RecommendedAction: &action,
			Source:            models.SourceDeterministic,
			Confidence:        1.0,
		}
	}

	if profile.Age > 0 {
		ageType := models.IssueAgeInappropriateProc
		if c.screening {
			ageType = models.IssueAgeInappropriateScreen
		}
		if c.minAge > 0 && profile.Age < c.minAge {
			return &models.Issue{
				Type:    ageType,
				Summary: fmt.Sprintf("procedure %s (%s) is not indicated below age %d", code, c.description, c.minAge),
				Evidence: fmt.Sprintf("document %s bills code %s (%s) for a %d-year-old patient; guideline minimum age is %d",
					docID, code, c.description, profile.Age, c.minAge),
				Code:              &codeCopy,
				RecommendedAction: &action,
				Source:            models.SourceDeterministic,
				Confidence:        1.0,
			}
		}
		if c.maxAge > 0 && profile.Age > c.maxAge {
			return &models.Issue{
				Type:    ageType,
				Summary: fmt.Sprintf("procedure %s (%s) is not indicated above age %d", code, c.description, c.maxAge),
				Evidence: fmt.Sprintf("document %s bills code %s (%s) for a %d-year-old patient; guideline maximum age is %d",
					docID, code, c.description, profile.Age, c.maxAge),
				Code:              &codeCopy,
				RecommendedAction: &action,
				Source:            models.SourceDeterministic,
				Confidence:        1.0,
			}
		}
	}

	return nil
}

// organRemovals lists history phrases and the terms whose later
// appearance in a billed document is anatomically impossible. Slice, not
// map: issue order must be stable across runs.
var organRemovals = []struct {
	surgery string
	terms   []string
}{
	{"appendectomy", []string{"appendectomy", "appendix"}},
	{"cholecystectomy", []string{"cholecystectomy", "gallbladder"}},
	{"hysterectomy", []string{"hysterectomy", "uterine", "uterus"}},
	{"nephrectomy", []string{"nephrectomy"}},
	{"splenectomy", []string{"splenectomy", "spleen"}},
	{"tonsillectomy", []string{"tonsillectomy", "tonsil"}},
}

// historyContradictions flags procedures on organs the surgical history
// says were already removed.
func historyContradictions(profile models.PatientProfile, docs []DocumentText) []models.Issue {
	var out []models.Issue
	action := "Request medical records review; a procedure on a previously removed organ indicates a coding error or wrong-patient billing."

	for _, prior := range profile.PriorSurgicalHistory {
		priorLower := strings.ToLower(prior)
		for _, removal := range organRemovals {
			if !strings.Contains(priorLower, removal.surgery) {
				continue
			}
			for _, doc := range docs {
				docLower := strings.ToLower(doc.Text)
				for _, term := range removal.terms {
					if strings.Contains(docLower, term) {
						out = append(out, models.Issue{
							Type:    models.IssueAnatomicalContradiction,
							Summary: fmt.Sprintf("billed procedure references %s after prior %s", term, removal.surgery),
							Evidence: fmt.Sprintf("patient history lists %q but document %s bills a procedure referencing %q",
								prior, doc.ID, term),
							RecommendedAction: &action,
							Source:            models.SourceDeterministic,
							Confidence:        0.9,
						})
						break
					}
				}
			}
			break
		}
	}
	return out
}
