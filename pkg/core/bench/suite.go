package bench

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"

	"billaudit/pkg/models"
)

// SuiteDocument is one document in a benchmark case.
type SuiteDocument struct {
	ID        string `yaml:"id"`
	Text      string `yaml:"text"`
	IsHistory bool   `yaml:"is_history"`
}

// SuiteCase is one annotated patient.
type SuiteCase struct {
	ID             string                `yaml:"id"`
	HighSignal     bool                  `yaml:"high_signal"`
	Profile        models.PatientProfile `yaml:"profile"`
	Documents      []SuiteDocument       `yaml:"documents"`
	ExpectedIssues []ExpectedIssue       `yaml:"expected_issues"`
}

// Suite is the annotated ground-truth catalog.
type Suite struct {
	Name  string      `yaml:"name"`
	Cases []SuiteCase `yaml:"cases"`
}

// LoadSuite reads a YAML ground-truth catalog from disk.
func LoadSuite(path string) (*Suite, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite %s: %w", path, err)
	}
	var s Suite
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse suite %s: %w", path, err)
	}
	if len(s.Cases) == 0 {
		return nil, fmt.Errorf("suite %s contains no cases", path)
	}
	return &s, nil
}

// HighSignalCases returns the subset of cases flagged as exercising the
// strongest domain-knowledge signals.
func (s *Suite) HighSignalCases() []SuiteCase {
	var out []SuiteCase
	for _, c := range s.Cases {
		if c.HighSignal {
			out = append(out, c)
		}
	}
	return out
}
