package scoring

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
)

func TestNormalizeScore(t *testing.T) {
	tests := []struct {
		name     string
		raw      float64
		lo, hi   float64
		expected int
	}{
		{"at max is zero", 0.25, -0.25, 0.25, 0},
		{"at min is hundred", -0.25, -0.25, 0.25, 100},
		{"midpoint", 0, -0.25, 0.25, 50},
		{"above range clamps", 0.9, -0.25, 0.25, 0},
		{"below range clamps", -0.5, -0.25, 0.25, 100},
		{"truncates 1.5625", 0.2421875, -0.25, 0.25, 1},
		{"truncates 98.4375", -0.2421875, -0.25, 0.25, 98},
		{"degenerate range at max", 0.1, 0.1, 0.1, 0},
		{"degenerate range below max", 0.05, 0.1, 0.1, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeScore(tt.raw, tt.lo, tt.hi))
		})
	}
}

func TestNormalizeScoreIsMonotonic(t *testing.T) {
	prev := 101
	for raw := -0.3; raw <= 0.4; raw += 0.001 {
		n := normalizeScore(raw, -0.1, 0.2)
		assert.GreaterOrEqual(t, n, 0)
		assert.LessOrEqual(t, n, 100)
		assert.LessOrEqual(t, n, prev, "raw=%v", raw)
		prev = n
	}
}

func TestScoreRoutesUnknownPatientToPopulationModel(t *testing.T) {
	sc := newTestContext(t, nil)

	result, err := sc.Score(sampleClaim("P999"))
	require.NoError(t, err)

	assert.Equal(t, ModelGeneralPopulation, result.UsedModel)
	assert.Equal(t, PopulationFeatures, result.ShapFeatures.Names)
	assert.Len(t, result.ShapValues, len(PopulationFeatures))
	assert.Equal(t, RiskLow, result.MedicationRisk)

	age, ok := result.ShapFeatures.Get("AGE")
	require.True(t, ok)
	assert.Equal(t, 45.0, age)
}

func TestScoreRoutesKnownPatientToHistoryModel(t *testing.T) {
	sc := newTestContext(t, nil)
	profile, ok := sc.Profile("P003")
	require.True(t, ok)

	claim := sampleClaim("P003")
	result, err := sc.Score(claim)
	require.NoError(t, err)

	assert.Equal(t, ModelPatientHistory, result.UsedModel)
	assert.Equal(t, DeltaFeatures, result.ShapFeatures.Names)
	assert.Len(t, result.ShapValues, len(DeltaFeatures))

	base, _ := result.ShapFeatures.Get("delta_base")
	assert.InDelta(t, claim.BaseCost-profile.MeanBaseCost, base, 1e-12)
}

func TestScoreResultInvariants(t *testing.T) {
	sc := newTestContext(t, nil)

	claims := []ClaimRecord{sampleClaim("P001"), sampleClaim("P999")}
	extreme := sampleClaim("P002")
	extreme.BaseCost, extreme.TotalCost, extreme.Dispenses = 5000, 90000, 60
	claims = append(claims, extreme)
	for _, r := range testRecords()[:10] {
		claims = append(claims, r)
	}

	for _, claim := range claims {
		result, err := sc.Score(claim)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, result.RiskScore, 0)
		assert.LessOrEqual(t, result.RiskScore, 100)
		assert.Equal(t, result.RawScore < 0, result.Fraud)

		sum := 0.0
		for _, v := range result.ShapValues {
			sum += v
		}
		assert.InDelta(t, result.RawScore-result.ShapBaseValue, sum, 1e-9)
	}
}

func TestScoreFlagsExtremeDeviation(t *testing.T) {
	sc := newTestContext(t, nil)

	extreme := sampleClaim("P002")
	extreme.BaseCost, extreme.TotalCost, extreme.Dispenses = 5000, 90000, 60

	result, err := sc.Score(extreme)
	require.NoError(t, err)
	assert.True(t, result.Fraud)

	typical, err := sc.Score(sampleClaim("P002"))
	require.NoError(t, err)
	assert.Greater(t, result.RiskScore, typical.RiskScore)
}

func TestScoreIsIdempotent(t *testing.T) {
	sc := newTestContext(t, nil)

	for _, patient := range []string{"P004", "P999"} {
		claim := sampleClaim(patient)
		claim.State = "Vermont"

		first, err := sc.Score(claim)
		require.NoError(t, err)
		second, err := sc.Score(claim)
		require.NoError(t, err)

		assert.Equal(t, first, second, patient)
	}
}

func TestScoreExtendsVocabularyOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		added []string
	)
	sc := newTestContext(t, func(field, value string, code int) {
		mu.Lock()
		defer mu.Unlock()
		added = append(added, field+"="+value)
	})

	states := sc.Vocabulary(FieldState)
	before := states.Len()

	claim := sampleClaim("P999")
	claim.State = "Vermont"
	_, err := sc.Score(claim)
	require.NoError(t, err)
	assert.Equal(t, before+1, states.Len())

	code, ok := states.Lookup("Vermont")
	require.True(t, ok)
	assert.Equal(t, before, code)

	_, err = sc.Score(claim)
	require.NoError(t, err)
	assert.Equal(t, before+1, states.Len())
	assert.Equal(t, []string{"STATE=Vermont"}, added)
}

func TestScoreConcurrentUnseenValue(t *testing.T) {
	sc := newTestContext(t, nil)
	before := sc.Vocabulary(FieldOrganization).Len()

	claim := sampleClaim("P999")
	claim.Organization = "org-new"

	const workers = 16
	results := make([]PredictionResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := sc.Score(claim)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, before+1, sc.Vocabulary(FieldOrganization).Len())
	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

func TestScoreRejectsInvalidRecord(t *testing.T) {
	sc := newTestContext(t, nil)

	claim := sampleClaim("P001")
	claim.DescriptionMed = ""

	_, err := sc.Score(claim)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CategoryValidation))
}

func TestScoreUsesClassifierForMedicationRisk(t *testing.T) {
	sc := newTestContext(t, nil)

	claim := sampleClaim("P999")
	claim.DescriptionMed = "Fentanyl 100 MCG/HR Transdermal System"
	result, err := sc.Score(claim)
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, result.MedicationRisk)

	code, _ := result.ShapFeatures.Get("MEDICATION_RISK_CODE")
	assert.Equal(t, 2.0, code)
}

func TestNewScoringContextRequiresRecords(t *testing.T) {
	_, err := NewScoringContext(nil, DefaultOptions())
	assert.Error(t, err)
}

func TestPredictionResultJSON(t *testing.T) {
	sc := newTestContext(t, nil)
	result, err := sc.Score(sampleClaim("P999"))
	require.NoError(t, err)

	b, err := json.Marshal(result)
	require.NoError(t, err)
	body := string(b)

	assert.Contains(t, body, `"medication_risk":"Low Risk"`)
	assert.Contains(t, body, `"used_model":"general population"`)

	// shap_features keeps the model column order
	prev := -1
	for _, name := range PopulationFeatures {
		idx := strings.Index(body, `"`+name+`":`)
		require.Greater(t, idx, prev, name)
		prev = idx
	}

	var decoded PredictionResult
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, result.ShapFeatures, decoded.ShapFeatures)
	assert.Equal(t, result.MedicationRisk, decoded.MedicationRisk)
}

func TestSummary(t *testing.T) {
	sc := newTestContext(t, nil)
	s := sc.Summary()

	assert.Equal(t, 60, s.TrainingRows)
	assert.Equal(t, 12, s.Patients)
	assert.Equal(t, 3, s.Vocabulary[FieldState])
	assert.Equal(t, 4, s.Vocabulary[FieldEncounterClass])
	assert.LessOrEqual(t, s.General.Min, s.General.Max)
	assert.Equal(t, DeltaFeatures, s.Delta.Features)
	assert.Equal(t, 60, s.General.Background)

	path := t.TempDir() + "/summary/model.json"
	require.NoError(t, SaveSummary(path, s))
	loaded, err := LoadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, s.Patients, loaded.Patients)
	assert.Equal(t, s.General.Features, loaded.General.Features)
}
