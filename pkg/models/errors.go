package models

import "errors"

// Error kinds for the pipeline. Callers discriminate with errors.Is; the
// concrete cause is carried by wrapping.
var (
	// ErrExtractionFailed: the extractor returned malformed output or
	// raised. Recoverable; the pipeline continues with an all-absent map.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrPhase2Failed: the phase-2 parser could not produce a list.
	// Recoverable; the pipeline continues without line items.
	ErrPhase2Failed = errors.New("phase-2 extraction failed")

	// ErrAnalyzerUnavailable: neither the requested analyzer nor the
	// configured fallback is registered. Fatal for the run.
	ErrAnalyzerUnavailable = errors.New("analyzer unavailable")

	// ErrAnalyzerFailed: the analyzer provider returned an error after the
	// facts-free retry was exhausted. Fatal for the run.
	ErrAnalyzerFailed = errors.New("analyzer failed")

	// ErrJSONParse: a provider response could not be parsed even after
	// repair. Surfaced as ErrExtractionFailed or ErrPhase2Failed depending
	// on the phase.
	ErrJSONParse = errors.New("json parse error")

	// ErrCancelled: cooperative cancellation observed at a phase boundary.
	ErrCancelled = errors.New("run cancelled")

	// ErrRateLimited: a provider hit a rate-limit-class failure. Handled
	// inside adapters via backoff; surfaces only when retries are exhausted.
	ErrRateLimited = errors.New("rate limited")
)
