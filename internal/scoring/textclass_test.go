package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		expected []string
	}{
		{"lower-cases and splits", "Acetaminophen 325 MG Oral Tablet", []string{"acetaminophen", "325", "mg", "oral", "tablet"}},
		{"drops single characters", "Warfarin Sodium 5 MG", []string{"warfarin", "sodium", "mg"}},
		{"splits on punctuation", "Buprenorphine / Naloxone 2-0.5", []string{"buprenorphine", "naloxone"}},
		{"keeps underscores", "abc_def x", []string{"abc_def"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tokenize(tt.doc))
		})
	}
}

func TestTFIDFWeights(t *testing.T) {
	v := fitTFIDF([]string{"aa bb cc", "bb dd"})
	require.Len(t, v.idf, 4)

	// terms are indexed alphabetically
	assert.Equal(t, 0, v.vocabulary["aa"])
	assert.Equal(t, 3, v.vocabulary["dd"])

	assert.InDelta(t, 1.0, v.idf[v.vocabulary["bb"]], 1e-12)
	assert.InDelta(t, math.Log(1.5)+1, v.idf[v.vocabulary["aa"]], 1e-12)

	vec := v.transform("bb bb aa zz")
	norm := 0.0
	for _, e := range vec {
		norm += e.value * e.value
	}
	assert.InDelta(t, 1.0, norm, 1e-12)
	assert.Len(t, vec, 2, "unknown tokens are ignored")

	assert.Empty(t, v.transform("nothing known"))
}

func TestMedicationRiskClassifierLearnsLexiconLabels(t *testing.T) {
	var descriptions []string
	for _, r := range testRecords() {
		descriptions = append(descriptions, r.DescriptionMed)
	}
	lex := DefaultLexicon()

	clf, err := TrainMedicationRiskClassifier(descriptions, lex, DefaultClassifierConfig())
	require.NoError(t, err)

	for _, d := range testDescriptions {
		t.Run(d, func(t *testing.T) {
			assert.Equal(t, lex.Classify(d), clf.Predict(d))

			p := clf.Probabilities(d)
			assert.InDelta(t, 1.0, p[0]+p[1]+p[2], 1e-9)
		})
	}

	assert.Equal(t, RiskHigh, clf.Predict("FENTANYL 100 MCG/HR TRANSDERMAL SYSTEM"))
	assert.Greater(t, clf.VocabularySize(), 10)
}

func TestTrainMedicationRiskClassifierErrors(t *testing.T) {
	_, err := TrainMedicationRiskClassifier(nil, DefaultLexicon(), DefaultClassifierConfig())
	assert.Error(t, err)

	cfg := DefaultClassifierConfig()
	cfg.Epochs = 0
	_, err = TrainMedicationRiskClassifier([]string{"warfarin"}, DefaultLexicon(), cfg)
	assert.Error(t, err)
}
