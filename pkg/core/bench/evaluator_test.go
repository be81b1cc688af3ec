package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billaudit/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestEvaluateCaseMatchesByCPTCode(t *testing.T) {
	detected := []models.Issue{{
		Type:     models.IssueOther,
		Summary:  "questionable ultrasound charge",
		Evidence: "code 76805 billed for male patient",
		Code:     strPtr("76805"),
	}}
	expected := []ExpectedIssue{{
		Type:    "gender_specific_contradiction",
		CPTCode: "76805",
	}}

	eval := EvaluateCase("case-1", detected, expected, 1200)
	assert.Equal(t, 1, eval.TP)
	assert.Equal(t, 0, eval.FP)
	assert.Equal(t, 0, eval.FN)
	assert.Equal(t, int64(1200), eval.LatencyMS)

	// The tally lands under the expected issue's category even though the
	// detection declared a different type.
	tally := eval.Categories["gender_specific_contradiction"]
	require.NotNil(t, tally)
	assert.Equal(t, 1, tally.TP)
	assert.Equal(t, 1, tally.Expected)
}

func TestEvaluateCaseMatchesByTypeKeywords(t *testing.T) {
	detected := []models.Issue{{
		Type:     models.IssueAnatomicalContradiction,
		Summary:  "anatomical contradiction: gallbladder procedure after cholecystectomy",
		Evidence: "history lists gallbladder removal",
	}}
	expected := []ExpectedIssue{{Type: "anatomical_contradiction"}}

	eval := EvaluateCase("case-2", detected, expected, 0)
	assert.Equal(t, 1, eval.TP)
	assert.Equal(t, 0, eval.FN)
}

func TestEvaluateCaseEachSideMatchesOnce(t *testing.T) {
	// One detection cannot satisfy two expectations.
	detected := []models.Issue{{
		Type:     models.IssueDuplicateCharge,
		Summary:  "duplicate visit",
		Evidence: "99213 billed twice",
	}}
	expected := []ExpectedIssue{
		{Type: "duplicate_charge", CPTCode: "99213"},
		{Type: "duplicate_charge", CPTCode: "99213"},
	}

	eval := EvaluateCase("case-3", detected, expected, 0)
	assert.Equal(t, 1, eval.TP)
	assert.Equal(t, 1, eval.FN)
	assert.Equal(t, 0, eval.FP)
}

func TestEvaluateCaseCPTPrecedenceConsumesDetection(t *testing.T) {
	// The CPT pass claims the only detection, so the keyword-only
	// expectation goes unmatched even though its keywords would hit.
	detected := []models.Issue{{
		Type:     models.IssueAnatomicalContradiction,
		Summary:  "anatomical contradiction",
		Evidence: "code 44950 on removed appendix",
	}}
	expected := []ExpectedIssue{
		{Type: "duplicate_charge", CPTCode: "44950"},
		{Type: "anatomical_contradiction"},
	}

	eval := EvaluateCase("case-4", detected, expected, 0)
	assert.Equal(t, 1, eval.TP)
	assert.Equal(t, 1, eval.FN)
	assert.True(t, eval.MatchedExpected[0])
	assert.False(t, eval.MatchedExpected[1])
}

func TestEvaluateCaseUnmatchedDetectionsAreFalsePositives(t *testing.T) {
	detected := []models.Issue{
		{Type: models.IssueOverbilling, Summary: "rate looks high", Evidence: "visit at $400"},
	}

	eval := EvaluateCase("case-5", detected, nil, 0)
	assert.Equal(t, 0, eval.TP)
	assert.Equal(t, 1, eval.FP)

	tally := eval.Categories["overbilling"]
	require.NotNil(t, tally)
	assert.Equal(t, 1, tally.FP)
	assert.Equal(t, 0, tally.Expected)
}

func TestEvaluateCaseDomainKnowledgeTallies(t *testing.T) {
	detected := []models.Issue{{
		Type:     models.IssueGenderContradiction,
		Summary:  "gender contradiction",
		Evidence: "code 55700 for female patient",
		Code:     strPtr("55700"),
	}}
	expected := []ExpectedIssue{
		{Type: "gender_specific_contradiction", CPTCode: "55700", RequiresDomainKnowledge: true},
		{Type: "temporal_violation", RequiresDomainKnowledge: true},
	}

	eval := EvaluateCase("case-6", detected, expected, 0)
	assert.Equal(t, 2, eval.DomainKnowledgeExpected)
	assert.Equal(t, 1, eval.DomainKnowledgeMatched)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, "duplicate_charge", CategoryOf("Duplicate_Charge"))
	assert.Equal(t, "other", CategoryOf(""))
	assert.Equal(t, "age_inappropriate_screening", CategoryOf("age_inappropriate_screening"))
}

func TestTypeKeywordsSkipConnectives(t *testing.T) {
	assert.Equal(t, []string{"gender", "contradiction"}, typeKeywords("gender_specific_contradiction"))
	assert.Equal(t, []string{"inconsistent", "health", "history"}, typeKeywords("inconsistent_with_health_history"))
}
