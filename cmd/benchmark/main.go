// Command benchmark evaluates one or more analyzer backends against an
// annotated patient suite and reports precision, recall and the domain
// metrics. Exit code 0 means every requested model ran; 1 means a model
// failed to initialize or produced no results.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"billaudit/pkg/core/bench"
	"billaudit/pkg/core/llm"
	"billaudit/pkg/core/patient"
	"billaudit/pkg/core/store"
)

var (
	flagModel         string
	flagSuite         string
	flagSubset        string
	flagPush          bool
	flagEnvironment   string
	flagCommitSHA     string
	flagBranchName    string
	flagTriggeredBy   string
	flagReportHTML    string
	flagCostPerSecond float64
)

func main() {
	root := &cobra.Command{
		Use:          "benchmark",
		Short:        "Evaluate analyzer backends against an annotated patient suite",
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().StringVar(&flagModel, "model", "baseline", "backend to evaluate: medgemma, openai, gemini, baseline or all")
	root.Flags().StringVar(&flagSuite, "suite", "testdata/patient_suite.yaml", "path to the ground-truth suite YAML")
	root.Flags().StringVar(&flagSubset, "subset", "", "restrict to a named subset (high_signal)")
	root.Flags().BoolVar(&flagPush, "push-to-supabase", false, "persist results to the configured database")
	root.Flags().StringVar(&flagEnvironment, "environment", "local", "environment label attached to results")
	root.Flags().StringVar(&flagCommitSHA, "commit-sha", "", "commit provenance label")
	root.Flags().StringVar(&flagBranchName, "branch-name", "", "branch provenance label")
	root.Flags().StringVar(&flagTriggeredBy, "triggered-by", "", "trigger provenance label")
	root.Flags().StringVar(&flagReportHTML, "report-html", "", "also write the report as HTML to this path")
	root.Flags().Float64Var(&flagCostPerSecond, "cost-per-second", 0.01, "compute cost per second for the ROI ratio")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, assuming environment variables are set.")
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	suite, err := bench.LoadSuite(flagSuite)
	if err != nil {
		return err
	}
	cases := suite.Cases
	if flagSubset == "high_signal" {
		cases = suite.HighSignalCases()
	} else if flagSubset != "" {
		return fmt.Errorf("unknown subset %q", flagSubset)
	}
	if len(cases) == 0 {
		return fmt.Errorf("no cases selected from suite %s", flagSuite)
	}

	ctx := context.Background()
	modelNames, err := resolveModels(flagModel)
	if err != nil {
		return err
	}

	var reports []bench.RunReport
	var runs []*store.BenchmarkRun
	for _, name := range modelNames {
		provider, err := buildProvider(ctx, name, logger)
		if err != nil {
			return fmt.Errorf("model %s failed to initialize: %w", name, err)
		}
		report, run, err := evaluateModel(ctx, name, provider, suite.Name, cases, logger)
		if err != nil {
			return err
		}
		reports = append(reports, report)
		runs = append(runs, run)
	}

	markdown := bench.Markdown(suite.Name, reports)
	fmt.Println(markdown)
	if flagReportHTML != "" {
		html, err := bench.HTML(markdown)
		if err != nil {
			return err
		}
		if err := os.WriteFile(flagReportHTML, []byte(html), 0o644); err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
	}

	if flagPush {
		if err := store.InitDB(ctx); err != nil {
			return fmt.Errorf("database init: %w", err)
		}
		defer store.Close()
		repo := store.NewResultsRepo()
		for _, run := range runs {
			if err := repo.Save(ctx, run); err != nil {
				return fmt.Errorf("push results for %s: %w", run.Model, err)
			}
			logger.Info("results pushed", zap.String("model", run.Model))
		}
	}
	return nil
}

func evaluateModel(ctx context.Context, name string, provider llm.Provider, suiteName string, cases []bench.SuiteCase, logger *zap.Logger) (bench.RunReport, *store.BenchmarkRun, error) {
	analyzer := patient.New(provider, logger)
	totalSavings := decimal.Zero
	var evals []bench.CaseEval
	produced := false

	for _, c := range cases {
		docs := make([]patient.Document, 0, len(c.Documents))
		for _, d := range c.Documents {
			docs = append(docs, patient.Document{ID: d.ID, Text: d.Text, IsHistory: d.IsHistory})
		}
		result := analyzer.AnalyzePatient(ctx, c.Profile, docs)
		if result.Err != nil {
			logger.Warn("case analysis degraded",
				zap.String("model", name),
				zap.String("case", c.ID),
				zap.Error(result.Err))
		}
		if len(result.DetectedIssues) > 0 {
			produced = true
		}
		for _, iss := range result.DetectedIssues {
			if iss.MaxSavings != nil {
				totalSavings = totalSavings.Add(*iss.MaxSavings)
			}
		}
		evals = append(evals, bench.EvaluateCase(c.ID, result.DetectedIssues, c.ExpectedIssues, result.LatencyMS))
	}

	if !produced {
		return bench.RunReport{}, nil, fmt.Errorf("model %s produced no results over %d cases", name, len(cases))
	}

	metrics := bench.Aggregate(evals, totalSavings, flagCostPerSecond)
	report := bench.RunReport{Model: name, Metrics: metrics}
	run := &store.BenchmarkRun{
		Model:       name,
		SuiteName:   suiteName,
		Environment: flagEnvironment,
		CommitSHA:   flagCommitSHA,
		BranchName:  flagBranchName,
		TriggeredBy: flagTriggeredBy,
		Metrics:     metrics,
		Cases:       evals,
	}
	return report, run, nil
}

func resolveModels(arg string) ([]string, error) {
	switch strings.ToLower(arg) {
	case "all":
		return []string{"medgemma", "openai", "gemini", "baseline"}, nil
	case "medgemma", "openai", "gemini", "baseline":
		return []string{strings.ToLower(arg)}, nil
	default:
		return nil, fmt.Errorf("unknown model %q", arg)
	}
}

func buildProvider(ctx context.Context, name string, logger *zap.Logger) (llm.Provider, error) {
	switch name {
	case "baseline":
		return llm.NewHeuristicProvider(), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return llm.NewOpenAIProvider(envOr("OPENAI_MODEL", "gpt-4o-mini"), key, logger), nil
	case "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return llm.NewGeminiProvider(ctx, envOr("GEMINI_MODEL", "gemini-2.0-flash"), key, logger)
	case "medgemma":
		baseURL := os.Getenv("MEDGEMMA_BASE_URL")
		if baseURL == "" {
			return nil, fmt.Errorf("MEDGEMMA_BASE_URL is not set")
		}
		return llm.NewMedGemmaProvider(baseURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown model %q", name)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
