// Package llm is the provider abstraction over heterogeneous language
// model backends: remote APIs (OpenAI-compatible, Gemini) and the local
// heuristic analyzer. The orchestrator consumes providers through the
// narrow interfaces here and never talks to a vendor SDK directly.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"billaudit/pkg/models"
)

// Provider is the uniform contract every backend implements.
type Provider interface {
	// Name is the registry key, e.g. "gpt-4o-mini" or "heuristic".
	Name() string
	// HealthCheck reports whether the backend is usable. Providers whose
	// check fails at registration are omitted from the registry.
	HealthCheck(ctx context.Context) bool
	// AnalyzeDocument produces a text-only analysis of one document.
	AnalyzeDocument(ctx context.Context, text string) (*models.AnalysisResult, error)
	// RunPrompt submits an opaque prompt and returns the raw response.
	// Used for phase-1/phase-2 direct JSON prompting.
	RunPrompt(ctx context.Context, prompt string) (string, error)
}

// FactAwareAnalyzer is implemented by providers that can reason over the
// extracted fact map in addition to the raw text. The orchestrator checks
// this capability instead of probing with a typed error.
type FactAwareAnalyzer interface {
	Provider
	AnalyzeDocumentWithFacts(ctx context.Context, text string, facts *models.FactMap) (*models.AnalysisResult, error)
}

// Registry maps provider names to live instances. It is written only
// during process initialization and read-only afterwards; concurrent
// reads from parallel orchestrator runs are safe.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger means no logging.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{providers: make(map[string]Provider), logger: logger}
}

// Register health-checks the provider and adds it when the check passes.
// A failed check is not an error: the provider is simply omitted, so one
// misconfigured backend never blocks the rest.
func (r *Registry) Register(ctx context.Context, p Provider) bool {
	if p == nil {
		return false
	}
	if !p.HealthCheck(ctx) {
		r.logger.Warn("provider failed health check, omitting", zap.String("provider", p.Name()))
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.logger.Info("provider registered", zap.String("provider", p.Name()))
	return true
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered: %w", name, models.ErrAnalyzerUnavailable)
	}
	return p, nil
}

// Has reports whether a provider is registered under the name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
