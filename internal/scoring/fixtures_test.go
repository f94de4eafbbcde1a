package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var testDescriptions = []string{
	"Fentanyl 100 MCG/HR Transdermal System",
	"Warfarin Sodium 5 MG Oral Tablet",
	"Acetaminophen 325 MG Oral Tablet",
	"Amoxicillin 250 MG Oral Capsule",
	"Oxycodone Hydrochloride 10 MG Oral Tablet",
}

// testRecords builds 12 patients with 5 claims each. Values are derived
// arithmetically so every run sees the same data.
func testRecords() []ClaimRecord {
	classes := []string{"ambulatory", "outpatient", "inpatient", "wellness"}
	states := []string{"Massachusetts", "Texas", "Ohio"}
	ethnicities := []string{"hispanic", "nonhispanic"}
	marital := []string{"M", "S"}
	genders := []string{"F", "M"}

	out := make([]ClaimRecord, 0, 60)
	for p := 0; p < 12; p++ {
		for k := 0; k < 5; k++ {
			i := p*5 + k
			base := 10 + float64((i*7)%23)
			disp := 1 + float64((i*3)%6)
			out = append(out, ClaimRecord{
				DescriptionMed: testDescriptions[(p+k)%len(testDescriptions)],
				EncounterClass: classes[i%len(classes)],
				Provider:       fmt.Sprintf("prov-%02d", p%4),
				Organization:   fmt.Sprintf("org-%d", p%3),
				Gender:         genders[p%2],
				Ethnicity:      ethnicities[p%2],
				Marital:        marital[(p/2)%2],
				State:          states[p%len(states)],
				Age:            30 + p*3,
				Dispenses:      disp,
				BaseCost:       base,
				TotalCost:      base * disp,
				PatientMed:     fmt.Sprintf("P%03d", p+1),
			})
		}
	}
	return out
}

func sampleClaim(patient string) ClaimRecord {
	return ClaimRecord{
		DescriptionMed: "Acetaminophen 325 MG Oral Tablet",
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
}

func newTestContext(t *testing.T, hook ExtendHook) *ScoringContext {
	t.Helper()
	opts := DefaultOptions()
	opts.OnExtend = hook
	sc, err := NewScoringContext(testRecords(), opts)
	require.NoError(t, err)
	return sc
}
