// Command analyze runs the billing analysis pipeline over one document
// and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"billaudit/pkg/core/extract"
	"billaudit/pkg/core/ingest"
	"billaudit/pkg/core/llm"
	"billaudit/pkg/core/pipeline"
	"billaudit/pkg/models"
)

func main() {
	inputPath := flag.String("input", "", "document file to analyze (default: stdin)")
	extractorOverride := flag.String("extractor", "", "force a phase-1 extractor (openai, gemini, heuristic)")
	analyzerOverride := flag.String("analyzer", "", "force an analyzer by registry name")
	profilePath := flag.String("profile", "", "patient profile JSON to include as context")
	htmlInput := flag.Bool("html", false, "input is portal HTML; sanitize before analysis")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, assuming environment variables are set.")
	}

	logger := buildLogger(*verbose)
	defer logger.Sync()

	text, err := readInput(*inputPath)
	if err != nil {
		log.Fatalf("Error reading input: %v", err)
	}
	if *htmlInput {
		text, err = ingest.NewHTMLSanitizer().Sanitize(text)
		if err != nil {
			log.Fatalf("Error sanitizing HTML: %v", err)
		}
	}

	opts := pipeline.RunOptions{
		ExtractorOverride: *extractorOverride,
		AnalyzerOverride:  *analyzerOverride,
	}
	if *profilePath != "" {
		profile, err := loadProfile(*profilePath)
		if err != nil {
			log.Fatalf("Error loading profile: %v", err)
		}
		opts.Profile = profile
	}

	ctx := context.Background()
	registry, extractors, defaultAnalyzer := buildStack(ctx, logger)
	fallback := envOr("BILLAUDIT_FALLBACK_ANALYZER", "heuristic")
	orch := pipeline.New(registry, extractors, defaultAnalyzer, fallback, logger)

	result, err := orch.Run(ctx, text, opts)
	if err != nil {
		// The sealed log still prints so failures stay debuggable.
		printJSON(result)
		log.Fatalf("Analysis failed: %v", err)
	}
	printJSON(result)
}

// buildStack registers every provider whose credentials are present and
// wires the extractor set. The heuristic provider always registers, so
// the pipeline works with no API keys at all.
func buildStack(ctx context.Context, logger *zap.Logger) (*llm.Registry, map[string]extract.Extractor, string) {
	registry := llm.NewRegistry(logger)

	heuristic := llm.NewHeuristicProvider()
	registry.Register(ctx, heuristic)
	defaultAnalyzer := heuristic.Name()

	extractors := map[string]extract.Extractor{
		"heuristic": extract.NewHeuristicExtractor(),
	}

	openaiModel := envOr("OPENAI_MODEL", "gpt-4o-mini")
	var openaiProvider llm.Provider
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p := llm.NewOpenAIProvider(openaiModel, key, logger)
		if registry.Register(ctx, p) {
			openaiProvider = p
			defaultAnalyzer = p.Name()
		}
	}
	if openaiProvider != nil {
		extractors["openai"] = extract.NewLLMExtractor("openai", openaiProvider, logger)
	} else {
		extractors["openai"] = extractors["heuristic"]
	}

	geminiModel := envOr("GEMINI_MODEL", "gemini-2.0-flash")
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if p, err := llm.NewGeminiProvider(ctx, geminiModel, key, logger); err != nil {
			logger.Warn("gemini unavailable", zap.Error(err))
		} else if registry.Register(ctx, p) {
			extractors["gemini"] = extract.NewLLMExtractor("gemini", p, logger)
		}
	}
	if _, ok := extractors["gemini"]; !ok {
		extractors["gemini"] = extractors["openai"]
	}

	if baseURL := os.Getenv("MEDGEMMA_BASE_URL"); baseURL != "" {
		medgemma := llm.NewMedGemmaProvider(baseURL, logger)
		registry.Register(ctx, medgemma)
		if openaiProvider != nil {
			registry.Register(ctx, llm.NewEnsembleProvider("medgemma-ensemble", medgemma, openaiProvider))
		}
	}

	logger.Info("providers registered", zap.Strings("names", registry.Names()))
	return registry, extractors, defaultAnalyzer
}

func buildLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	return logger
}

func readInput(path string) (string, error) {
	if path == "" {
		raw, err := io.ReadAll(os.Stdin)
		return string(raw), err
	}
	raw, err := os.ReadFile(path)
	return string(raw), err
}

func loadProfile(path string) (*models.PatientProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var profile models.PatientProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &profile, nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("Error encoding output: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
