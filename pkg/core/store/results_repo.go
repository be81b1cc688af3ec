package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"billaudit/pkg/core/bench"
)

// BenchmarkRun labels one evaluated model run with its CI provenance.
type BenchmarkRun struct {
	Model       string             `json:"model"`
	SuiteName   string             `json:"suite_name"`
	Environment string             `json:"environment"`
	CommitSHA   string             `json:"commit_sha"`
	BranchName  string             `json:"branch_name"`
	TriggeredBy string             `json:"triggered_by"`
	Metrics     bench.SuiteMetrics `json:"metrics"`
	Cases       []bench.CaseEval   `json:"cases"`
}

// ResultsRepo stores benchmark runs.
type ResultsRepo struct{}

func NewResultsRepo() *ResultsRepo {
	return &ResultsRepo{}
}

// Save appends one run. One row per (model, commit, run time); history is
// never overwritten so dashboards can chart recall over commits.
//
// Schema assumption:
//
//	CREATE TABLE IF NOT EXISTS benchmark_results (
//	  id BIGSERIAL PRIMARY KEY,
//	  model TEXT NOT NULL,
//	  suite_name TEXT NOT NULL,
//	  environment TEXT,
//	  commit_sha TEXT,
//	  branch_name TEXT,
//	  triggered_by TEXT,
//	  results_json JSONB NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL
//	);
func (r *ResultsRepo) Save(ctx context.Context, run *BenchmarkRun) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	jsonData, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal benchmark run: %w", err)
	}

	query := `
		INSERT INTO benchmark_results
			(model, suite_name, environment, commit_sha, branch_name, triggered_by, results_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err = pool.Exec(ctx, query,
		run.Model, run.SuiteName, run.Environment,
		run.CommitSHA, run.BranchName, run.TriggeredBy,
		jsonData, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save benchmark run: %w", err)
	}
	return nil
}

// LoadLatest retrieves the most recent run for a model on a suite.
func (r *ResultsRepo) LoadLatest(ctx context.Context, model, suiteName string) (*BenchmarkRun, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `
		SELECT results_json FROM benchmark_results
		WHERE model = $1 AND suite_name = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var jsonData []byte
	err := pool.QueryRow(ctx, query, model, suiteName).Scan(&jsonData)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("no benchmark results for model %s on suite %s", model, suiteName)
		}
		return nil, fmt.Errorf("failed to load benchmark run: %w", err)
	}

	var run BenchmarkRun
	if err := json.Unmarshal(jsonData, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal benchmark run: %w", err)
	}
	return &run, nil
}
