package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/resilience"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

func testEntry(patient string, at time.Time) Entry {
	record := scoring.ClaimRecord{
		DescriptionMed: "Warfarin Sodium 5 MG Oral Tablet, film coated",
		EncounterClass: "ambulatory",
		Provider:       "prov-01",
		Organization:   "org-1",
		Gender:         "F",
		Ethnicity:      "nonhispanic",
		Marital:        "M",
		State:          "Massachusetts",
		Age:            45,
		Dispenses:      2,
		BaseCost:       12.5,
		TotalCost:      25,
		PatientMed:     patient,
	}
	result := scoring.PredictionResult{
		Fraud:          true,
		RiskScore:      87,
		MedicationRisk: scoring.RiskModerate,
		UsedModel:      scoring.ModelPatientHistory,
		ShapFeatures:   scoring.NewFeatureValues(scoring.DeltaFeatures, []float64{1.5, -2.25, 0}),
		ShapValues:     []float64{-0.01, -0.02, 0.003},
		ShapBaseValue:  0.04,
		RawScore:       -0.0270,
	}
	return NewEntry(record, result, at)
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	csvStore, err := Open(BackendCSV, filepath.Join(dir, "csv", "predictions.csv"))
	require.NoError(t, err)
	sqliteStore, err := Open(BackendSQLite, filepath.Join(dir, "db", "history.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		csvStore.Close()
		sqliteStore.Close()
	})
	return map[string]Store{BackendCSV: csvStore, BackendSQLite: sqliteStore}
}

func TestStoreAppendAndList(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			entries, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.NotNil(t, entries)

			first := testEntry("P001", at)
			second := testEntry("P002", at.Add(time.Minute))
			second.Fraud = false
			second.MedicationRisk = scoring.RiskHigh

			require.NoError(t, store.Append(ctx, first))
			require.NoError(t, store.Append(ctx, second))

			entries, err = store.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, first, entries[0])
			assert.Equal(t, second, entries[1])
		})
	}
}

func TestStoreConcurrentAppend(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, store.Append(ctx, testEntry(fmt.Sprintf("P%03d", i), at)))
				}(i)
			}
			wg.Wait()

			entries, err := store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, entries, 20)

			ids := make(map[string]bool)
			for _, e := range entries {
				ids[e.ID] = true
			}
			assert.Len(t, ids, 20)
		})
	}
}

func TestCSVStoreWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	store, err := NewCSVStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, testEntry("P001", at)))

	// a second store on the same file must not repeat the header
	again, err := NewCSVStore(path)
	require.NoError(t, err)
	require.NoError(t, again.Append(ctx, testEntry("P002", at)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "DESCRIPTION_med,ENCOUNTERCLASS"))
	assert.True(t, strings.HasPrefix(string(data), strings.Join(CSVColumns, ",")+"\n"))

	entries, err := again.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCSVStoreReadsLegacyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	legacy := strings.Join(CSVColumns[:20], ",") + "\n" +
		`Amoxicillin 250 MG Oral Capsule,outpatient,prov-9,org-9,M,hispanic,S,Texas,61,1.0,3.25,3.25,P777,True,12,Low Risk,general population,` +
		`"{""ENCOUNTERCLASS"": 1.0, ""DISPENSES"": 1.0, ""TOTALCOST"": 3.25, ""AGE"": 61.0, ""MEDICATION_RISK_CODE"": 0.0}",` +
		`"[0.01, -0.02, 0.0, 0.03, 0.0]",2024-05-01T10:11:12.123456` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	store, err := NewCSVStore(path)
	require.NoError(t, err)
	entries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "P777", e.PatientMed)
	assert.True(t, e.Fraud)
	assert.Equal(t, scoring.RiskLow, e.MedicationRisk)
	assert.Equal(t, scoring.PopulationFeatures, e.ShapFeatures.Names)
	assert.Len(t, e.ShapValues, 5)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 11, 12, 123456000, time.UTC), e.Timestamp)
	assert.Empty(t, e.ID)
}

func TestEntryJSONIsFlat(t *testing.T) {
	e := testEntry("P001", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(b, &flat))
	for _, key := range []string{"id", "timestamp", "PATIENT_med", "TOTALCOST", "fraud", "risk_score", "medication_risk", "shap_features"} {
		assert.Contains(t, flat, key)
	}
	assert.Equal(t, "Moderate Risk", flat["medication_risk"])
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}

type flakyStore struct {
	Store
	failures int
	calls    int
}

func (f *flakyStore) Append(ctx context.Context, e Entry) error {
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("database is locked")
	}
	return f.Store.Append(ctx, e)
}

func TestWithRetry(t *testing.T) {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond

	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantRows  int
		wantErr   bool
	}{
		{name: "first attempt", failures: 0, wantCalls: 1, wantRows: 1},
		{name: "transient lock", failures: 2, wantCalls: 3, wantRows: 1},
		{name: "persistent failure", failures: 10, wantCalls: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := Open(BackendCSV, filepath.Join(t.TempDir(), "predictions.csv"))
			require.NoError(t, err)
			flaky := &flakyStore{Store: base, failures: tt.failures}
			store := WithRetry(flaky, cfg)

			err = store.Append(context.Background(), testEntry("P001", time.Now()))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, flaky.calls)

			entries, err := store.List(context.Background())
			require.NoError(t, err)
			assert.Len(t, entries, tt.wantRows)
		})
	}
}
