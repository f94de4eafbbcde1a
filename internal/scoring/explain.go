package scoring

import "math/rand/v2"

// Explanation attributes a model output to its input features. Values are
// parallel to Features and Inputs, and sum to Output - BaseValue.
type Explanation struct {
	Features  []string
	Inputs    []float64
	Values    []float64
	BaseValue float64
	Output    float64
}

// explainer computes interventional Shapley values of a scalar function
// against a fixed background sample.
type explainer struct {
	fn         func([]float64) float64
	background [][]float64
	baseValue  float64
	weights    []float64
}

// newExplainer draws up to size background rows deterministically from rows.
func newExplainer(fn func([]float64) float64, rows [][]float64, size int, seed int64) *explainer {
	background := sampleRows(rows, size, seed)
	outputs := make([]float64, len(background))
	for i, z := range background {
		outputs[i] = fn(z)
	}

	d := 0
	if len(rows) > 0 {
		d = len(rows[0])
	}
	return &explainer{
		fn:         fn,
		background: background,
		baseValue:  mean(outputs),
		weights:    shapleyWeights(d),
	}
}

func sampleRows(rows [][]float64, size int, seed int64) [][]float64 {
	if size <= 0 || len(rows) <= size {
		return rows
	}
	s := uint64(seed)
	rng := rand.New(rand.NewPCG(s, s+1))
	idx := rng.Perm(len(rows))[:size]
	out := make([][]float64, size)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// shapleyWeights[s] = s!(d-s-1)!/d! for coalitions of size s.
func shapleyWeights(d int) []float64 {
	if d == 0 {
		return nil
	}
	fact := make([]float64, d+1)
	fact[0] = 1
	for i := 1; i <= d; i++ {
		fact[i] = fact[i-1] * float64(i)
	}
	w := make([]float64, d)
	for s := 0; s < d; s++ {
		w[s] = fact[s] * fact[d-s-1] / fact[d]
	}
	return w
}

// explain enumerates every coalition for each background row, so cost grows
// as 2^d. Feature counts here are 3 and 5.
func (e *explainer) explain(x []float64) ([]float64, float64) {
	d := len(x)
	phi := make([]float64, d)
	if len(e.background) == 0 {
		return phi, e.baseValue
	}

	masks := 1 << d
	values := make([]float64, masks)
	point := make([]float64, d)
	for _, z := range e.background {
		for m := 0; m < masks; m++ {
			for j := 0; j < d; j++ {
				if m&(1<<j) != 0 {
					point[j] = x[j]
				} else {
					point[j] = z[j]
				}
			}
			values[m] = e.fn(point)
		}
		for i := 0; i < d; i++ {
			bit := 1 << i
			for m := 0; m < masks; m++ {
				if m&bit != 0 {
					continue
				}
				phi[i] += e.weights[popcount(m)] * (values[m|bit] - values[m])
			}
		}
	}

	n := float64(len(e.background))
	for i := range phi {
		phi[i] /= n
	}
	return phi, e.baseValue
}

func popcount(m int) int {
	c := 0
	for m != 0 {
		m &= m - 1
		c++
	}
	return c
}
