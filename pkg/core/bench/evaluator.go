// Package bench scores analyzer output against an annotated ground-truth
// catalog and aggregates the results across a patient suite.
package bench

import (
	"encoding/json"
	"strings"

	"billaudit/pkg/models"
)

// ExpectedIssue is one ground-truth annotation.
type ExpectedIssue struct {
	Type                    string `yaml:"type" json:"type"`
	Severity                string `yaml:"severity" json:"severity"`
	CPTCode                 string `yaml:"cpt_code,omitempty" json:"cpt_code,omitempty"`
	RequiresDomainKnowledge bool   `yaml:"requires_domain_knowledge" json:"requires_domain_knowledge"`
}

// CaseEval is the scored outcome for one patient case.
type CaseEval struct {
	CaseID    string `json:"case_id"`
	TP        int    `json:"tp"`
	FP        int    `json:"fp"`
	FN        int    `json:"fn"`
	LatencyMS int64  `json:"latency_ms"`

	// Per-category tallies keyed by normalized category name.
	Categories map[string]*Tally `json:"categories"`

	// Domain-knowledge tallies over expected issues flagged as requiring it.
	DomainKnowledgeExpected int `json:"domain_knowledge_expected"`
	DomainKnowledgeMatched  int `json:"domain_knowledge_matched"`

	// MatchedExpected[i] is true when expected issue i found a detection.
	MatchedExpected []bool `json:"-"`
}

// Tally is a true-positive / false-positive / false-negative count.
type Tally struct {
	TP       int `json:"tp"`
	FP       int `json:"fp"`
	FN       int `json:"fn"`
	Expected int `json:"expected"`
}

// EvaluateCase matches detections to expectations for one patient.
// Matching precedence per expected issue: first a CPT substring hit in
// the detection's serialized form, then overlap of the expected type's
// keywords. Both sides match at most once; first match wins.
func EvaluateCase(caseID string, detected []models.Issue, expected []ExpectedIssue, latencyMS int64) CaseEval {
	eval := CaseEval{
		CaseID:          caseID,
		LatencyMS:       latencyMS,
		Categories:      map[string]*Tally{},
		MatchedExpected: make([]bool, len(expected)),
	}

	serialized := make([]string, len(detected))
	for i, iss := range detected {
		serialized[i] = serializeIssue(iss)
	}
	detectedUsed := make([]bool, len(detected))

	// Pass 1: CPT code substring.
	for ei, exp := range expected {
		if exp.CPTCode == "" {
			continue
		}
		code := strings.ToLower(exp.CPTCode)
		for di := range detected {
			if detectedUsed[di] {
				continue
			}
			if strings.Contains(serialized[di], code) {
				eval.MatchedExpected[ei] = true
				detectedUsed[di] = true
				break
			}
		}
	}

	// Pass 2: type keyword overlap.
	for ei, exp := range expected {
		if eval.MatchedExpected[ei] {
			continue
		}
		keywords := typeKeywords(exp.Type)
		for di := range detected {
			if detectedUsed[di] {
				continue
			}
			if keywordOverlap(serialized[di], keywords) {
				eval.MatchedExpected[ei] = true
				detectedUsed[di] = true
				break
			}
		}
	}

	for ei, exp := range expected {
		cat := CategoryOf(exp.Type)
		t := eval.tally(cat)
		t.Expected++
		if exp.RequiresDomainKnowledge {
			eval.DomainKnowledgeExpected++
		}
		if eval.MatchedExpected[ei] {
			eval.TP++
			t.TP++
			if exp.RequiresDomainKnowledge {
				eval.DomainKnowledgeMatched++
			}
		} else {
			eval.FN++
			t.FN++
		}
	}
	for di, iss := range detected {
		if detectedUsed[di] {
			continue
		}
		eval.FP++
		eval.tally(CategoryOf(string(iss.Type))).FP++
	}
	return eval
}

func (e *CaseEval) tally(category string) *Tally {
	t, ok := e.Categories[category]
	if !ok {
		t = &Tally{}
		e.Categories[category] = t
	}
	return t
}

// ParentAgeCategory aggregates the three age subcategories.
const ParentAgeCategory = "age_inappropriate_service"

var ageSubcategories = map[string]bool{
	"age_inappropriate":           true,
	"age_inappropriate_procedure": true,
	"age_inappropriate_screening": true,
}

// CategoryOf normalizes an issue or annotation type to its scoring
// category. The three age subtypes keep their own tallies; the parent
// total is derived at aggregation time.
func CategoryOf(typ string) string {
	t := strings.ToLower(strings.TrimSpace(typ))
	if t == "" {
		return "other"
	}
	return t
}

func serializeIssue(iss models.Issue) string {
	raw, err := json.Marshal(iss)
	if err != nil {
		return strings.ToLower(string(iss.Type) + " " + iss.Summary + " " + iss.Evidence)
	}
	return strings.ToLower(string(raw))
}

// typeKeywords splits a type name into its meaningful words. Connective
// words carry no signal and would over-match.
func typeKeywords(typ string) []string {
	var out []string
	for _, w := range strings.Split(strings.ToLower(typ), "_") {
		switch w {
		case "", "with", "of", "the", "specific":
			continue
		}
		out = append(out, w)
	}
	return out
}

func keywordOverlap(serialized string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(serialized, k) {
			return true
		}
	}
	return false
}
