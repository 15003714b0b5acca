// Package testutil provides shared test infrastructure for the simulation
// kernel. It holds the golden dataset types and helpers for locating and
// writing model files used across sim/ and cmd/ test packages.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is one model run with its expected outcome.
type GoldenTestCase struct {
	Name    string        `json:"name"`
	Model   string        `json:"model"` // file under testdata/models/
	Seed    int64         `json:"seed"`
	Workers int           `json:"workers"`
	Summary GoldenSummary `json:"summary"`
}

// GoldenSummary holds the expected aggregate counts of a run. Every field
// is independent of worker scheduling.
type GoldenSummary struct {
	ElementsCreated    int            `json:"elements_created"`
	ElementsFinished   int            `json:"elements_finished"`
	ActivitiesStarted  int            `json:"activities_started"`
	ActivitiesFinished int            `json:"activities_finished"`
	Interruptions      int            `json:"interruptions"`
	ExpiredResources   int            `json:"expired_resources"`
	LastClock          int64          `json:"last_clock"`
	StartsPerActivity  map[string]int `json:"starts_per_activity"`
}

// repoRoot resolves the repository root relative to this source file:
// sim/internal/testutil/ → ./
func repoRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..")
}

// TestdataPath returns the absolute path of a file under testdata/.
func TestdataPath(t *testing.T, elem ...string) string {
	t.Helper()
	return filepath.Join(append([]string{repoRoot(t), "testdata"}, elem...)...)
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()
	data, err := os.ReadFile(TestdataPath(t, "goldendataset.json"))
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	return &dataset
}

// WriteModelFile writes content to a model file in a per-test temporary
// directory and returns its path.
func WriteModelFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write model file: %v", err)
	}
	return path
}
