package scoring

import "fmt"

// AnomalyModel is an isolation forest together with the range of decision
// scores it produced on its training data. The range is frozen at training
// time and used to normalize every later score.
type AnomalyModel struct {
	name      string
	features  []string
	forest    *IsolationForest
	min       float64
	max       float64
	explainer *explainer
}

// TrainAnomalyModel fits a forest on rows and records the training score
// range and explanation background.
func TrainAnomalyModel(name string, features []string, rows [][]float64, cfg ForestConfig, backgroundSize int) (*AnomalyModel, error) {
	if len(rows) > 0 && len(rows[0]) != len(features) {
		return nil, fmt.Errorf("%s model: rows have %d columns, want %d", name, len(rows[0]), len(features))
	}
	forest, err := FitIsolationForest(rows, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s model: %w", name, err)
	}

	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = forest.Decision(row)
	}
	lo, hi := minMax(scores)

	return &AnomalyModel{
		name:      name,
		features:  append([]string(nil), features...),
		forest:    forest,
		min:       lo,
		max:       hi,
		explainer: newExplainer(forest.Decision, rows, backgroundSize, cfg.Seed),
	}, nil
}

// Name identifies the model in results and logs.
func (m *AnomalyModel) Name() string { return m.name }

// Features returns the input column names.
func (m *AnomalyModel) Features() []string { return append([]string(nil), m.features...) }

// Range returns the frozen [min, max] of training decision scores.
func (m *AnomalyModel) Range() (float64, float64) { return m.min, m.max }

// Score is the raw decision score; negative means anomalous.
func (m *AnomalyModel) Score(x []float64) float64 { return m.forest.Decision(x) }

// Normalize maps a raw score onto 0..100 where 100 is most anomalous,
// relative to the frozen training range.
func (m *AnomalyModel) Normalize(raw float64) int {
	return normalizeScore(raw, m.min, m.max)
}

func normalizeScore(raw, lo, hi float64) int {
	if hi <= lo {
		if raw >= hi {
			return 0
		}
		return 100
	}
	// truncated, not rounded
	return int(clip((hi-raw)/(hi-lo)*100, 0, 100))
}

// Explain attributes the decision score of x to its features.
func (m *AnomalyModel) Explain(x []float64) Explanation {
	values, base := m.explainer.explain(x)
	return Explanation{
		Features:  m.Features(),
		Inputs:    append([]float64(nil), x...),
		Values:    values,
		BaseValue: base,
		Output:    m.Score(x),
	}
}

// BackgroundSize is the number of rows the explainer averages over.
func (m *AnomalyModel) BackgroundSize() int { return len(m.explainer.background) }
