package bench

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billaudit/pkg/models"
)

func caseEval(id string, latency int64, cats map[string]*Tally) CaseEval {
	e := CaseEval{CaseID: id, LatencyMS: latency, Categories: cats}
	for _, t := range cats {
		e.TP += t.TP
		e.FP += t.FP
		e.FN += t.FN
	}
	return e
}

func TestAggregateSumsTotalsAcrossCases(t *testing.T) {
	evals := []CaseEval{
		caseEval("c1", 1000, map[string]*Tally{
			"duplicate_charge": {TP: 2, FN: 0, Expected: 2},
		}),
		caseEval("c2", 3000, map[string]*Tally{
			"duplicate_charge": {TP: 0, FN: 2, Expected: 2},
		}),
	}

	m := Aggregate(evals, decimal.Zero, 0)
	assert.Equal(t, 2, m.Cases)
	// Recall from summed totals: 2/4, not the 0.5+0.0 average of rates
	// divided differently per case.
	assert.InDelta(t, 0.5, m.Overall.Recall, 1e-9)
	assert.Equal(t, 4, m.Overall.Expected)
	assert.Equal(t, int64(2000), m.AvgLatencyMS)
	assert.Equal(t, float64(0), m.ROI)
}

func TestAggregateDerivesParentAgeCategory(t *testing.T) {
	evals := []CaseEval{
		caseEval("c1", 0, map[string]*Tally{
			"age_inappropriate_procedure": {TP: 1, Expected: 1},
			"age_inappropriate_screening": {TP: 0, FN: 1, Expected: 1},
		}),
	}

	m := Aggregate(evals, decimal.Zero, 0)
	parent, ok := m.ByCategory[ParentAgeCategory]
	require.True(t, ok)
	assert.Equal(t, 1, parent.TP)
	assert.Equal(t, 2, parent.Expected)
	assert.InDelta(t, 0.5, parent.Recall, 1e-9)

	// Subcategories keep their own rows too.
	assert.Contains(t, m.ByCategory, "age_inappropriate_procedure")
	assert.Contains(t, m.ByCategory, "age_inappropriate_screening")
}

func TestRiskWeightedRecallSkipsAgeSubcategories(t *testing.T) {
	evals := []CaseEval{
		caseEval("c1", 0, map[string]*Tally{
			"anatomical_contradiction":    {TP: 1, Expected: 1},
			"duplicate_charge":            {FN: 1, Expected: 1},
			"age_inappropriate_procedure": {TP: 1, Expected: 1},
		}),
	}

	m := Aggregate(evals, decimal.Zero, 0)
	// anatomical weight 3 (1/1) + duplicate weight 1 (0/1) + parent age
	// weight 2 (1/1): (3+0+2)/(3+1+2).
	assert.InDelta(t, 5.0/6.0, m.RiskWeightedRecall, 1e-9)
}

func TestConservatismIndex(t *testing.T) {
	assert.Equal(t, 0.5, conservatism(0, 0))
	assert.Equal(t, 1.0, conservatism(3, 0))
	assert.Equal(t, 0.0, conservatism(0, 3))
	assert.InDelta(t, 0.75, conservatism(3, 1), 1e-9)
}

func TestP95NearestRank(t *testing.T) {
	var latencies []int64
	for i := int64(1); i <= 20; i++ {
		latencies = append(latencies, i)
	}
	assert.Equal(t, int64(19), P95(latencies))

	assert.Equal(t, int64(0), P95(nil))
	assert.Equal(t, int64(7), P95([]int64{7}))
	assert.Equal(t, int64(100), P95([]int64{100, 1, 50}))
}

func TestAggregateROI(t *testing.T) {
	evals := []CaseEval{
		caseEval("c1", 2000, map[string]*Tally{"duplicate_charge": {TP: 1, Expected: 1}}),
	}

	m := Aggregate(evals, decimal.NewFromInt(100), 0.01)
	// $100 recovered over 2 seconds at $0.01/s of compute.
	assert.InDelta(t, 5000.0, m.ROI, 1e-9)
}

func TestAggregateDomainKnowledgeRate(t *testing.T) {
	evals := []CaseEval{
		{CaseID: "c1", Categories: map[string]*Tally{}, DomainKnowledgeExpected: 4, DomainKnowledgeMatched: 3},
	}
	m := Aggregate(evals, decimal.Zero, 0)
	assert.InDelta(t, 0.75, m.DomainKnowledgeRate, 1e-9)
}

func TestCompareModels(t *testing.T) {
	shared := models.Issue{Type: models.IssueDuplicateCharge, Summary: "dup", Evidence: "99213 twice", Code: strPtr("99213")}
	onlyB := models.Issue{Type: models.IssueGenderContradiction, Summary: "gender contradiction", Evidence: "code 76805", Code: strPtr("76805")}

	expected := []ExpectedIssue{
		{Type: "duplicate_charge", CPTCode: "99213"},
		{Type: "gender_specific_contradiction", CPTCode: "76805"},
	}

	c := CompareModels([]models.Issue{shared}, []models.Issue{shared, onlyB}, expected)
	assert.Equal(t, 0, c.UniqueA)
	assert.Equal(t, 1, c.UniqueB)
	assert.Equal(t, 1, c.Overlap)
	assert.InDelta(t, 0.5, c.RecallA, 1e-9)
	assert.InDelta(t, 1.0, c.RecallCombined, 1e-9)
	assert.InDelta(t, 0.5, c.IncrementalRecall, 1e-9)
}
