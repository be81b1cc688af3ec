package llm

import (
	"context"

	"billaudit/pkg/models"
)

// EnsembleProvider unions the findings of two member providers. Issues
// are deduplicated by (type, code); the kept copy takes the higher
// confidence and is re-sourced as ensemble. Useful for pairing a
// domain-tuned model (medgemma) with a generalist.
type EnsembleProvider struct {
	name    string
	primary Provider
	second  Provider
}

var _ Provider = (*EnsembleProvider)(nil)

// NewEnsembleProvider wraps two providers under one registry name.
func NewEnsembleProvider(name string, primary, second Provider) *EnsembleProvider {
	return &EnsembleProvider{name: name, primary: primary, second: second}
}

func (p *EnsembleProvider) Name() string { return p.name }

// HealthCheck requires both members: an ensemble with a dead member is
// just the other model with extra latency.
func (p *EnsembleProvider) HealthCheck(ctx context.Context) bool {
	return p.primary.HealthCheck(ctx) && p.second.HealthCheck(ctx)
}

// RunPrompt delegates to the primary member.
func (p *EnsembleProvider) RunPrompt(ctx context.Context, promptText string) (string, error) {
	return p.primary.RunPrompt(ctx, promptText)
}

func (p *EnsembleProvider) AnalyzeDocument(ctx context.Context, text string) (*models.AnalysisResult, error) {
	first, err := p.primary.AnalyzeDocument(ctx, text)
	if err != nil {
		return nil, err
	}
	second, err := p.second.AnalyzeDocument(ctx, text)
	if err != nil {
		// One member succeeded; its findings still stand.
		return first, nil
	}
	return p.merge(first, second), nil
}

type ensembleKey struct {
	typ  models.IssueType
	code string
}

func (p *EnsembleProvider) merge(a, b *models.AnalysisResult) *models.AnalysisResult {
	merged := make([]models.Issue, 0, len(a.Issues)+len(b.Issues))
	index := map[ensembleKey]int{}

	add := func(iss models.Issue) {
		k := ensembleKey{typ: iss.Type}
		if iss.Code != nil {
			k.code = *iss.Code
		}
		if i, ok := index[k]; ok {
			if iss.Confidence > merged[i].Confidence {
				merged[i].Confidence = iss.Confidence
			}
			return
		}
		iss.Source = models.SourceEnsemble
		index[k] = len(merged)
		merged = append(merged, iss)
	}

	for _, iss := range a.Issues {
		add(iss)
	}
	for _, iss := range b.Issues {
		add(iss)
	}

	return &models.AnalysisResult{
		Issues: merged,
		Meta:   models.AnalysisMeta{Provider: p.name, IssueCount: len(merged)},
	}
}
