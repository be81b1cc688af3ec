package bench

import (
	"sort"

	"github.com/shopspring/decimal"

	"billaudit/pkg/models"
)

// categoryRiskWeights ranks categories by patient-harm potential. Weights
// are 1 to 3; categories not listed weigh 1.
var categoryRiskWeights = map[string]int{
	"anatomical_contradiction":         3,
	"gender_specific_contradiction":    3,
	ParentAgeCategory:                  2,
	"temporal_violation":               2,
	"inconsistent_with_health_history": 2,
	"duplicate_charge":                 1,
	"other":                            1,
}

// CategoryMetrics is precision/recall/F1 with its underlying totals.
type CategoryMetrics struct {
	TP        int     `json:"tp"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	Expected  int     `json:"expected"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// SuiteMetrics is the full aggregate over a patient suite.
type SuiteMetrics struct {
	Cases   int             `json:"cases"`
	Overall CategoryMetrics `json:"overall"`

	// ByCategory includes the parent age category, computed from the
	// subcategory totals rather than averaged subcategory recalls.
	ByCategory map[string]CategoryMetrics `json:"by_category"`

	DomainKnowledgeRate float64 `json:"domain_knowledge_rate"`
	RiskWeightedRecall  float64 `json:"risk_weighted_recall"`
	ConservatismIndex   float64 `json:"conservatism_index"`

	AvgLatencyMS int64   `json:"avg_latency_ms"`
	P95LatencyMS int64   `json:"p95_latency_ms"`
	ROI          float64 `json:"roi"`
}

// Aggregate folds per-case evaluations into suite metrics. Recall and
// precision come from summed totals across cases, never from averaging
// per-case rates. totalSavings and costPerSecond feed the ROI ratio;
// a zero costPerSecond yields ROI 0.
func Aggregate(evals []CaseEval, totalSavings decimal.Decimal, costPerSecond float64) SuiteMetrics {
	m := SuiteMetrics{
		Cases:      len(evals),
		ByCategory: map[string]CategoryMetrics{},
	}

	totals := map[string]*Tally{}
	var dkExpected, dkMatched int
	var latencies []int64

	for _, e := range evals {
		m.Overall.TP += e.TP
		m.Overall.FP += e.FP
		m.Overall.FN += e.FN
		dkExpected += e.DomainKnowledgeExpected
		dkMatched += e.DomainKnowledgeMatched
		latencies = append(latencies, e.LatencyMS)
		for cat, t := range e.Categories {
			agg, ok := totals[cat]
			if !ok {
				agg = &Tally{}
				totals[cat] = agg
			}
			agg.TP += t.TP
			agg.FP += t.FP
			agg.FN += t.FN
			agg.Expected += t.Expected
		}
	}
	m.Overall.Expected = m.Overall.TP + m.Overall.FN
	fillRates(&m.Overall)

	// Derive the parent age category from its subcategory totals.
	parent := &Tally{}
	for cat, t := range totals {
		if ageSubcategories[cat] {
			parent.TP += t.TP
			parent.FP += t.FP
			parent.FN += t.FN
			parent.Expected += t.Expected
		}
	}
	if parent.Expected > 0 || parent.FP > 0 {
		totals[ParentAgeCategory] = parent
	}

	for cat, t := range totals {
		cm := CategoryMetrics{TP: t.TP, FP: t.FP, FN: t.FN, Expected: t.Expected}
		fillRates(&cm)
		m.ByCategory[cat] = cm
	}

	if dkExpected > 0 {
		m.DomainKnowledgeRate = float64(dkMatched) / float64(dkExpected)
	}
	m.RiskWeightedRecall = riskWeightedRecall(totals)
	m.ConservatismIndex = conservatism(m.Overall.FN, m.Overall.FP)

	m.AvgLatencyMS = avgInt64(latencies)
	m.P95LatencyMS = P95(latencies)
	if costPerSecond > 0 && m.AvgLatencyMS > 0 {
		avgSeconds := float64(m.AvgLatencyMS) / 1000.0
		savings, _ := totalSavings.Float64()
		m.ROI = savings / (avgSeconds * costPerSecond)
	}
	return m
}

func fillRates(c *CategoryMetrics) {
	if c.TP+c.FP > 0 {
		c.Precision = float64(c.TP) / float64(c.TP+c.FP)
	}
	if c.Expected > 0 {
		c.Recall = float64(c.TP) / float64(c.Expected)
	}
	if c.Precision+c.Recall > 0 {
		c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
	}
}

// riskWeightedRecall weights each category's contribution by its risk
// weight. Age subcategories contribute through the parent weight so they
// are not counted twice.
func riskWeightedRecall(totals map[string]*Tally) float64 {
	var num, den float64
	for cat, t := range totals {
		if ageSubcategories[cat] {
			continue
		}
		w, ok := categoryRiskWeights[cat]
		if !ok {
			w = 1
		}
		num += float64(w * t.TP)
		den += float64(w * t.Expected)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// conservatism is FN/(FN+FP): 1.0 means every error is a miss, 0.0 means
// every error is a false alarm, 0.5 when there are no errors at all.
func conservatism(fn, fp int) float64 {
	if fn+fp == 0 {
		return 0.5
	}
	return float64(fn) / float64(fn+fp)
}

// P95 is the 95th percentile latency (nearest-rank, inclusive).
func P95(latencies []int64) int64 {
	if len(latencies) == 0 {
		return 0
	}
	sorted := append([]int64(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := (95*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func avgInt64(vals []int64) int64 {
	if len(vals) == 0 {
		return 0
	}
	var sum int64
	for _, v := range vals {
		sum += v
	}
	return sum / int64(len(vals))
}

// Complementarity compares two models' detected-issue sets over the same
// expected catalog.
type Complementarity struct {
	UniqueA           int     `json:"unique_a"`
	UniqueB           int     `json:"unique_b"`
	Overlap           int     `json:"overlap"`
	RecallA           float64 `json:"recall_a"`
	RecallCombined    float64 `json:"recall_combined"`
	IncrementalRecall float64 `json:"incremental_recall"`
}

// CompareModels reports how two detection sets overlap and the recall
// gained by running both. Issues are identified by (type, code).
func CompareModels(detectedA, detectedB []models.Issue, expected []ExpectedIssue) Complementarity {
	keysA := issueKeySet(detectedA)
	keysB := issueKeySet(detectedB)

	var c Complementarity
	for k := range keysA {
		if keysB[k] {
			c.Overlap++
		} else {
			c.UniqueA++
		}
	}
	for k := range keysB {
		if !keysA[k] {
			c.UniqueB++
		}
	}

	evalA := EvaluateCase("a", detectedA, expected, 0)
	evalBoth := EvaluateCase("a+b", append(append([]models.Issue{}, detectedA...), detectedB...), expected, 0)
	if n := len(expected); n > 0 {
		c.RecallA = float64(evalA.TP) / float64(n)
		c.RecallCombined = float64(evalBoth.TP) / float64(n)
		c.IncrementalRecall = c.RecallCombined - c.RecallA
	}
	return c
}

func issueKeySet(issues []models.Issue) map[string]bool {
	set := map[string]bool{}
	for _, iss := range issues {
		k := string(iss.Type)
		if iss.Code != nil {
			k += "|" + *iss.Code
		}
		set[k] = true
	}
	return set
}
