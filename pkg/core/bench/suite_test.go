package bench

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const suiteYAML = `name: smoke
cases:
  - id: case-1
    high_signal: true
    profile:
      name: Robert Stone
      age: 52
      sex: M
    documents:
      - id: doc-1
        text: "Ultrasound OB 76805  $400.00"
      - id: hist-1
        text: "No significant history."
        is_history: true
    expected_issues:
      - type: gender_specific_contradiction
        severity: high
        cpt_code: "76805"
        requires_domain_knowledge: true
  - id: case-2
    profile:
      name: Ann Lee
      age: 30
      sex: F
    documents:
      - id: doc-1
        text: "Office visit 99213  $50.00"
    expected_issues: []
`

func writeSuite(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSuite(t *testing.T) {
	s, err := LoadSuite(writeSuite(t, suiteYAML))
	require.NoError(t, err)

	assert.Equal(t, "smoke", s.Name)
	require.Len(t, s.Cases, 2)

	c := s.Cases[0]
	assert.True(t, c.HighSignal)
	assert.Equal(t, "Robert Stone", c.Profile.Name)
	assert.Equal(t, 52, c.Profile.Age)
	require.Len(t, c.Documents, 2)
	assert.True(t, c.Documents[1].IsHistory)
	require.Len(t, c.ExpectedIssues, 1)
	assert.Equal(t, "76805", c.ExpectedIssues[0].CPTCode)
	assert.True(t, c.ExpectedIssues[0].RequiresDomainKnowledge)
}

func TestLoadSuiteRejectsEmpty(t *testing.T) {
	_, err := LoadSuite(writeSuite(t, "name: empty\ncases: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cases")
}

func TestLoadSuiteMissingFile(t *testing.T) {
	_, err := LoadSuite(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestHighSignalCases(t *testing.T) {
	s, err := LoadSuite(writeSuite(t, suiteYAML))
	require.NoError(t, err)

	hs := s.HighSignalCases()
	require.Len(t, hs, 1)
	assert.Equal(t, "case-1", hs[0].ID)
}
