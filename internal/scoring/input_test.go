package scoring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
)

const claimBody = `{"DESCRIPTION_med":"Acetaminophen 325 MG Oral Tablet","ENCOUNTERCLASS":"ambulatory",` +
	`"PROVIDER":"prov-01","ORGANIZATION":"org-1","GENDER":"F","ETHNICITY":"nonhispanic","MARITAL":"M",` +
	`"STATE":"Massachusetts","AGE":45,"DISPENSES":2,"BASE_COST":12.5,"TOTALCOST":25,"PATIENT_med":"P001"}`

func decodeInput(t *testing.T, body string, drop ...string) ClaimInput {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	for _, k := range drop {
		delete(raw, k)
	}
	b, err := json.Marshal(raw)
	require.NoError(t, err)

	var in ClaimInput
	require.NoError(t, json.Unmarshal(b, &in))
	return in
}

func TestClaimInputRecord(t *testing.T) {
	rec, err := decodeInput(t, claimBody).Record()
	require.NoError(t, err)
	assert.Equal(t, sampleClaim("P001"), rec)
}

func TestClaimInputRecordKeepsExplicitZero(t *testing.T) {
	in := decodeInput(t, claimBody)
	zero := 0.0
	in.Dispenses = &zero

	rec, err := in.Record()
	require.NoError(t, err)
	assert.Zero(t, rec.Dispenses)
}

func TestClaimInputRecordRejects(t *testing.T) {
	tests := []struct {
		name       string
		drop       []string
		wantFields []string
	}{
		{name: "missing age", drop: []string{"AGE"}, wantFields: []string{"AGE"}},
		{name: "missing numeric fields", drop: []string{"AGE", "DISPENSES", "BASE_COST", "TOTALCOST"},
			wantFields: []string{"AGE", "BASE_COST", "DISPENSES", "TOTALCOST"}},
		{name: "missing patient and cost", drop: []string{"PATIENT_med", "TOTALCOST"},
			wantFields: []string{"PATIENT_med", "TOTALCOST"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeInput(t, claimBody, tt.drop...).Record()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.CategoryValidation))

			appErr := errors.ToAppError(err)
			for _, f := range tt.wantFields {
				assert.Equal(t, "is required", appErr.Fields[f], f)
			}
			assert.Len(t, appErr.Fields, len(tt.wantFields))
		})
	}
}

func TestClaimInputRecordRejectsNegativeValue(t *testing.T) {
	in := decodeInput(t, claimBody)
	age := -3
	in.Age = &age

	_, err := in.Record()
	require.Error(t, err)
	assert.Equal(t, "must be >= 0", errors.ToAppError(err).Fields["AGE"])
}
