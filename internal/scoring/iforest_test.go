package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n        int
		expected float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 2*(math.Log(2)+eulerGamma) - 4.0/3.0},
		{256, 10.2448},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, averagePathLength(tt.n), 1e-4, "n=%d", tt.n)
	}
}

func TestPercentileInterpolates(t *testing.T) {
	xs := []float64{4, 1, 3, 2}
	assert.InDelta(t, 2.5, percentile(xs, 50), 1e-12)
	assert.InDelta(t, 1.15, percentile(xs, 5), 1e-12)
	assert.Equal(t, 1.0, percentile(xs, 0))
	assert.Equal(t, 4.0, percentile(xs, 100))
	assert.Equal(t, []float64{4, 1, 3, 2}, xs, "input is not reordered")
}

// gridRows is a dense 2-d cluster plus a few far-away points.
func gridRows() [][]float64 {
	var rows [][]float64
	for i := 0; i < 15; i++ {
		for j := 0; j < 13; j++ {
			rows = append(rows, []float64{float64(i) * 0.1, float64(j) * 0.1})
		}
	}
	rows = append(rows, []float64{25, 25}, []float64{-20, 30}, []float64{40, -10})
	return rows
}

func TestIsolationForestSeparatesOutliers(t *testing.T) {
	forest, err := FitIsolationForest(gridRows(), DefaultForestConfig())
	require.NoError(t, err)

	inlier := forest.Decision([]float64{0.7, 0.6})
	outlier := forest.Decision([]float64{25, 25})
	assert.Less(t, outlier, inlier)
	assert.Less(t, outlier, 0.0)
	assert.Greater(t, inlier, 0.0)

	s := forest.ScoreSamples([]float64{0.7, 0.6})
	assert.True(t, s < 0 && s >= -1, "score_samples lies in [-1, 0)")
	assert.InDelta(t, s-forest.Offset(), inlier, 1e-15)
}

func TestIsolationForestContaminationSetsOffset(t *testing.T) {
	rows := gridRows()
	forest, err := FitIsolationForest(rows, DefaultForestConfig())
	require.NoError(t, err)

	negative := 0
	for _, r := range rows {
		if forest.Decision(r) < 0 {
			negative++
		}
	}
	// 5% of 198 rows, allowing for tied scores at the threshold
	assert.GreaterOrEqual(t, negative, 3)
	assert.LessOrEqual(t, negative, 20)
}

func TestIsolationForestIsDeterministic(t *testing.T) {
	a, err := FitIsolationForest(gridRows(), DefaultForestConfig())
	require.NoError(t, err)
	b, err := FitIsolationForest(gridRows(), DefaultForestConfig())
	require.NoError(t, err)

	for _, x := range [][]float64{{0, 0}, {1.2, 0.3}, {25, 25}, {-3, 7}} {
		assert.Equal(t, a.Decision(x), b.Decision(x))
	}

	cfg := DefaultForestConfig()
	cfg.Seed = 7
	c, err := FitIsolationForest(gridRows(), cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Decision([]float64{1.2, 0.3}), c.Decision([]float64{1.2, 0.3}))
}

func TestIsolationForestHandlesConstantColumns(t *testing.T) {
	rows := make([][]float64, 40)
	for i := range rows {
		rows[i] = []float64{5, float64(i % 8)}
	}
	forest, err := FitIsolationForest(rows, DefaultForestConfig())
	require.NoError(t, err)

	score := forest.Decision([]float64{5, 3})
	assert.False(t, math.IsNaN(score))
}

func TestFitIsolationForestErrors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]float64
		cfg  func(c *ForestConfig)
	}{
		{name: "no rows", rows: nil},
		{name: "ragged rows", rows: [][]float64{{1, 2}, {3}}},
		{name: "empty rows", rows: [][]float64{{}, {}}},
		{name: "nan value", rows: [][]float64{{1, math.NaN()}}},
		{name: "zero trees", rows: [][]float64{{1}}, cfg: func(c *ForestConfig) { c.Trees = 0 }},
		{name: "contamination out of range", rows: [][]float64{{1}}, cfg: func(c *ForestConfig) { c.Contamination = 0.9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultForestConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			_, err := FitIsolationForest(tt.rows, cfg)
			assert.Error(t, err)
		})
	}
}
