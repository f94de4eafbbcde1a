package scoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ModelRange describes one trained anomaly model.
type ModelRange struct {
	Name       string   `json:"name"`
	Features   []string `json:"features"`
	Min        float64  `json:"min"`
	Max        float64  `json:"max"`
	Offset     float64  `json:"offset"`
	Background int      `json:"background_rows"`
}

// ModelSummary is a point-in-time description of a ScoringContext.
type ModelSummary struct {
	TrainingRows    int            `json:"training_rows"`
	Patients        int            `json:"patients"`
	Vocabulary      map[string]int `json:"vocabulary_sizes"`
	ClassifierTerms int            `json:"classifier_terms"`
	HighRiskTerms   int            `json:"high_risk_terms"`
	ModerateTerms   int            `json:"moderate_risk_terms"`
	General         ModelRange     `json:"general_model"`
	Delta           ModelRange     `json:"delta_model"`
}

func describeModel(m *AnomalyModel) ModelRange {
	lo, hi := m.Range()
	return ModelRange{
		Name:       m.Name(),
		Features:   m.Features(),
		Min:        lo,
		Max:        hi,
		Offset:     m.forest.Offset(),
		Background: m.BackgroundSize(),
	}
}

// Summary reports training sizes, current vocabulary sizes and the frozen
// score ranges.
func (sc *ScoringContext) Summary() ModelSummary {
	vocab := make(map[string]int, len(CategoricalFields))
	for _, field := range CategoricalFields {
		vocab[field] = sc.encoder.Vocabulary(field).Len()
	}
	high, moderate := sc.lexicon.Size()
	return ModelSummary{
		TrainingRows:    sc.rows,
		Patients:        len(sc.profiles),
		Vocabulary:      vocab,
		ClassifierTerms: sc.classifier.VocabularySize(),
		HighRiskTerms:   high,
		ModerateTerms:   moderate,
		General:         describeModel(sc.general),
		Delta:           describeModel(sc.delta),
	}
}

// SaveSummary writes the summary as indented JSON, creating parent
// directories as needed.
func SaveSummary(path string, s ModelSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode model summary: %w", err)
	}
	return nil
}

// LoadSummary reads a summary written by SaveSummary.
func LoadSummary(path string) (*ModelSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open summary file: %w", err)
	}
	defer file.Close()

	var s ModelSummary
	if err := json.NewDecoder(file).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode model summary: %w", err)
	}
	return &s, nil
}
