package sim

import (
	"testing"

	"github.com/parades/parades/sim/internal/testutil"
	"github.com/parades/parades/sim/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGolden_ModelSummaries runs every model of the golden dataset and
// compares the aggregate counts of the run.
func TestGolden_ModelSummaries(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	require.NotEmpty(t, dataset.Tests)

	for _, tc := range dataset.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			cfg, err := LoadModelConfig(testutil.TestdataPath(t, "models", tc.Model))
			require.NoError(t, err)
			m, err := cfg.Build()
			require.NoError(t, err)
			simCfg := cfg.SimConfig()
			simCfg.Seed = tc.Seed
			simCfg.Workers = tc.Workers

			_, rec := runModel(t, m, simCfg)
			got := trace.Summarize(rec.Records())

			want := tc.Summary
			assert.Equal(t, want.ElementsCreated, got.ElementsCreated, "elements created")
			assert.Equal(t, want.ElementsFinished, got.ElementsFinished, "elements finished")
			assert.Equal(t, want.ActivitiesStarted, got.ActivitiesStarted, "activities started")
			assert.Equal(t, want.ActivitiesFinished, got.ActivitiesFinished, "activities finished")
			assert.Equal(t, want.Interruptions, got.Interruptions, "interruptions")
			assert.Equal(t, want.ExpiredResources, got.ExpiredResources, "expired resources")
			assert.Equal(t, want.LastClock, got.LastClock, "last clock")
			assert.Equal(t, want.StartsPerActivity, got.StartsPerActivity, "starts per activity")
		})
	}
}
