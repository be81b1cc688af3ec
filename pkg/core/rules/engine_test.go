package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billaudit/pkg/models"
)

func strPtr(s string) *string { return &s }

func decPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func medicalDupFacts() *models.FactMap {
	return &models.FactMap{
		MedicalLineItems: []models.MedicalLineItem{
			{DateOfService: "2024-03-01", Description: "Office visit", CPTCode: strPtr("99213"), PatientResponsibility: decPtr(50.00)},
			{DateOfService: "2024-03-01", Description: "Office visit", CPTCode: strPtr("99213"), PatientResponsibility: decPtr(50.00)},
			{DateOfService: "2024-03-01", Description: "Blood panel", CPTCode: strPtr("80053"), PatientResponsibility: decPtr(25.00)},
		},
	}
}

func TestDuplicateMedicalCharge(t *testing.T) {
	issues := Issues(medicalDupFacts())
	require.Len(t, issues, 1)

	iss := issues[0]
	assert.Equal(t, models.IssueDuplicateCharge, iss.Type)
	assert.Equal(t, models.SourceDeterministic, iss.Source)
	assert.Equal(t, 1.0, iss.Confidence)
	require.NotNil(t, iss.Code)
	assert.Equal(t, "99213", *iss.Code)
	require.NotNil(t, iss.MaxSavings)
	assert.True(t, iss.MaxSavings.Equal(decimal.NewFromFloat(50.00)), "savings %s", iss.MaxSavings)
}

func TestDuplicateThreeOccurrences(t *testing.T) {
	f := &models.FactMap{
		DentalLineItems: []models.DentalLineItem{
			{DateOfService: "2024-05-10", CDTCode: strPtr("D1110"), PatientResponsibility: decPtr(60.00)},
			{DateOfService: "2024-05-10", CDTCode: strPtr("D1110"), PatientResponsibility: decPtr(60.00)},
			{DateOfService: "2024-05-10", CDTCode: strPtr("D1110"), PatientResponsibility: decPtr(60.00)},
		},
	}
	issues := Issues(f)
	require.Len(t, issues, 1)
	// Savings cover every occurrence after the first.
	assert.True(t, issues[0].MaxSavings.Equal(decimal.NewFromFloat(120.00)))
}

func TestDifferentDatesAreNotDuplicates(t *testing.T) {
	f := &models.FactMap{
		MedicalLineItems: []models.MedicalLineItem{
			{DateOfService: "2024-03-01", CPTCode: strPtr("99213"), PatientResponsibility: decPtr(50.00)},
			{DateOfService: "2024-03-02", CPTCode: strPtr("99213"), PatientResponsibility: decPtr(50.00)},
		},
	}
	assert.Empty(t, Issues(f))
}

func TestDeniedFSAContributesToSavingsOnly(t *testing.T) {
	f := &models.FactMap{
		FSAClaimItems: []models.FSAClaimItem{
			{Description: "contact lenses", AmountSubmitted: decPtr(75.00), AmountReimbursed: decPtr(0.00)},
			{Description: "prescription", AmountSubmitted: decPtr(30.00), AmountReimbursed: decPtr(30.00)},
		},
	}
	assert.Empty(t, Issues(f), "denied FSA rows must not emit issues")
	assert.True(t, DeniedFSATotal(f).Equal(decimal.NewFromFloat(75.00)))
	assert.True(t, Savings(f).Equal(decimal.NewFromFloat(75.00)))
}

func TestSavingsCombinesDuplicatesAndFSA(t *testing.T) {
	f := medicalDupFacts()
	f.FSAClaimItems = []models.FSAClaimItem{
		{Description: "denied claim", AmountSubmitted: decPtr(75.00), AmountReimbursed: decPtr(0.00)},
	}
	assert.True(t, Savings(f).Equal(decimal.NewFromFloat(125.00)))
}

func TestRulesArePure(t *testing.T) {
	f := medicalDupFacts()
	first := Issues(f)
	second := Issues(f)
	assert.Equal(t, first, second)
	assert.Nil(t, Issues(nil))
	assert.True(t, Savings(nil).IsZero())
}

func TestGenderContradiction(t *testing.T) {
	profile := models.PatientProfile{PatientID: "p5", Name: "Sam", Age: 34, Sex: "M"}
	docs := []DocumentText{
		{ID: "doc-1", Text: "Radiology statement\n76805 OB ultrasound, 2nd trimester  $410.00"},
	}

	issues := CrossDocumentIssues(profile, docs)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueGenderContradiction, issues[0].Type)
	assert.Equal(t, models.SourceDeterministic, issues[0].Source)
	assert.Equal(t, 1.0, issues[0].Confidence)
	require.NotNil(t, issues[0].Code)
	assert.Equal(t, "76805", *issues[0].Code)
}

func TestAgeGatedScreening(t *testing.T) {
	profile := models.PatientProfile{PatientID: "p2", Age: 30, Sex: "F"}
	docs := []DocumentText{{ID: "doc-1", Text: "45378 screening colonoscopy $1200.00"}}

	issues := CrossDocumentIssues(profile, docs)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueAgeInappropriateScreen, issues[0].Type)
}

func TestHistoryContradiction(t *testing.T) {
	profile := models.PatientProfile{
		PatientID:            "p3",
		Age:                  50,
		Sex:                  "F",
		PriorSurgicalHistory: []string{"Appendectomy (2015)"},
	}
	docs := []DocumentText{{ID: "doc-2", Text: "Surgical bill: appendix removal consult"}}

	issues := CrossDocumentIssues(profile, docs)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueAnatomicalContradiction, issues[0].Type)
	assert.Equal(t, 0.9, issues[0].Confidence)
}

func TestNoFindingsForConsistentDocuments(t *testing.T) {
	profile := models.PatientProfile{PatientID: "p1", Age: 40, Sex: "F"}
	docs := []DocumentText{{ID: "doc-1", Text: "99213 office visit $125.00"}}
	assert.Empty(t, CrossDocumentIssues(profile, docs))
}
