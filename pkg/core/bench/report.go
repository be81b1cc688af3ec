package bench

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// RunReport is one model's aggregate, labeled for the report.
type RunReport struct {
	Model   string
	Metrics SuiteMetrics
}

// Markdown renders a comparison report for one or more model runs.
func Markdown(suiteName string, runs []RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Benchmark Report: %s\n\n", suiteName)

	b.WriteString("| Model | Cases | Precision | Recall | F1 | Risk-Weighted Recall | Domain Knowledge | Conservatism | Avg Latency | P95 Latency | ROI |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|---|\n")
	for _, r := range runs {
		m := r.Metrics
		fmt.Fprintf(&b, "| %s | %d | %.3f | %.3f | %.3f | %.3f | %.3f | %.2f | %dms | %dms | %.2f |\n",
			r.Model, m.Cases,
			m.Overall.Precision, m.Overall.Recall, m.Overall.F1,
			m.RiskWeightedRecall, m.DomainKnowledgeRate, m.ConservatismIndex,
			m.AvgLatencyMS, m.P95LatencyMS, m.ROI)
	}

	for _, r := range runs {
		fmt.Fprintf(&b, "\n## %s by category\n\n", r.Model)
		b.WriteString("| Category | Expected | TP | FP | FN | Precision | Recall | F1 |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|\n")
		for _, cat := range sortedCategories(r.Metrics.ByCategory) {
			cm := r.Metrics.ByCategory[cat]
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %.3f | %.3f | %.3f |\n",
				cat, cm.Expected, cm.TP, cm.FP, cm.FN, cm.Precision, cm.Recall, cm.F1)
		}
	}
	return b.String()
}

// HTML converts the markdown report for dashboard embedding.
func HTML(markdown string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

func sortedCategories(byCategory map[string]CategoryMetrics) []string {
	cats := make([]string, 0, len(byCategory))
	for c := range byCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}
