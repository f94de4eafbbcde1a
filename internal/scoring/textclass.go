package scoring

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// ClassifierConfig controls training of the medication risk classifier.
type ClassifierConfig struct {
	Epochs       int     `koanf:"epochs"`
	LearningRate float64 `koanf:"learning_rate"`
	C            float64 `koanf:"c"`
}

// DefaultClassifierConfig returns the training settings used in production.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{Epochs: 500, LearningRate: 1.0, C: 1.0}
}

// tokens are runs of two or more word characters
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}\p{M}_]{2,}`)

func tokenize(doc string) []string {
	return tokenPattern.FindAllString(strings.ToLower(doc), -1)
}

type sparseEntry struct {
	index int
	value float64
}

type sparseVector []sparseEntry

// tfidfVectorizer weights raw term counts by smoothed inverse document
// frequency and L2-normalizes each row.
type tfidfVectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

func fitTFIDF(docs []string) *tfidfVectorizer {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v := &tfidfVectorizer{
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
	}
	for i, t := range terms {
		v.vocabulary[t] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
	return v
}

// transform ignores tokens outside the training vocabulary. A document with
// no known tokens maps to the zero vector.
func (v *tfidfVectorizer) transform(doc string) sparseVector {
	counts := make(map[int]float64)
	for _, tok := range tokenize(doc) {
		if idx, ok := v.vocabulary[tok]; ok {
			counts[idx]++
		}
	}

	vec := make(sparseVector, 0, len(counts))
	norm := 0.0
	for idx, tf := range counts {
		w := tf * v.idf[idx]
		vec = append(vec, sparseEntry{index: idx, value: w})
		norm += w * w
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].index < vec[j].index })
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i].value /= norm
		}
	}
	return vec
}

const numTiers = 3

// MedicationRiskClassifier predicts a RiskTier from free-text medication
// descriptions using TF-IDF features and multinomial logistic regression.
type MedicationRiskClassifier struct {
	vectorizer *tfidfVectorizer
	weights    [numTiers][]float64
	bias       [numTiers]float64
}

// TrainMedicationRiskClassifier fits the classifier on descriptions labelled
// by the lexicon. Duplicate descriptions are collapsed into weighted samples.
func TrainMedicationRiskClassifier(descriptions []string, lexicon *Lexicon, cfg ClassifierConfig) (*MedicationRiskClassifier, error) {
	if len(descriptions) == 0 {
		return nil, fmt.Errorf("medication classifier: no training descriptions")
	}
	if cfg.Epochs <= 0 || cfg.LearningRate <= 0 || cfg.C <= 0 {
		return nil, fmt.Errorf("medication classifier: epochs, learning_rate and C must be positive")
	}

	docs := make([]string, len(descriptions))
	for i, d := range descriptions {
		docs[i] = strings.ToLower(d)
	}
	vectorizer := fitTFIDF(docs)

	type sample struct {
		x      sparseVector
		label  RiskTier
		weight float64
	}
	byDoc := make(map[string]int)
	var samples []sample
	for _, doc := range docs {
		if i, ok := byDoc[doc]; ok {
			samples[i].weight++
			continue
		}
		byDoc[doc] = len(samples)
		samples = append(samples, sample{x: vectorizer.transform(doc), label: lexicon.Classify(doc), weight: 1})
	}

	nFeatures := len(vectorizer.idf)
	c := &MedicationRiskClassifier{vectorizer: vectorizer}
	for k := range c.weights {
		c.weights[k] = make([]float64, nFeatures)
	}

	total := float64(len(docs))
	lambda := 1 / (cfg.C * total)
	var gradW [numTiers][]float64
	for k := range gradW {
		gradW[k] = make([]float64, nFeatures)
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		var gradB [numTiers]float64
		for k := range gradW {
			for j := range gradW[k] {
				gradW[k][j] = lambda * c.weights[k][j]
			}
		}
		for _, s := range samples {
			p := c.probabilities(s.x)
			for k := 0; k < numTiers; k++ {
				diff := p[k]
				if RiskTier(k) == s.label {
					diff -= 1
				}
				diff *= s.weight / total
				gradB[k] += diff
				for _, e := range s.x {
					gradW[k][e.index] += diff * e.value
				}
			}
		}
		for k := 0; k < numTiers; k++ {
			c.bias[k] -= cfg.LearningRate * gradB[k]
			for j := range c.weights[k] {
				c.weights[k][j] -= cfg.LearningRate * gradW[k][j]
			}
		}
	}
	return c, nil
}

func (c *MedicationRiskClassifier) probabilities(x sparseVector) [numTiers]float64 {
	var logits [numTiers]float64
	maxLogit := math.Inf(-1)
	for k := 0; k < numTiers; k++ {
		z := c.bias[k]
		for _, e := range x {
			z += c.weights[k][e.index] * e.value
		}
		logits[k] = z
		maxLogit = math.Max(maxLogit, z)
	}
	sum := 0.0
	for k := range logits {
		logits[k] = math.Exp(logits[k] - maxLogit)
		sum += logits[k]
	}
	for k := range logits {
		logits[k] /= sum
	}
	return logits
}

// Predict returns the most probable tier. Ties go to the lower tier.
func (c *MedicationRiskClassifier) Predict(description string) RiskTier {
	p := c.Probabilities(description)
	best := RiskLow
	for k := 1; k < numTiers; k++ {
		if p[k] > p[best] {
			best = RiskTier(k)
		}
	}
	return best
}

// Probabilities returns the class probabilities indexed by RiskTier.
func (c *MedicationRiskClassifier) Probabilities(description string) [numTiers]float64 {
	return c.probabilities(c.vectorizer.transform(strings.ToLower(description)))
}

// VocabularySize is the number of distinct tokens seen in training.
func (c *MedicationRiskClassifier) VocabularySize() int {
	return len(c.vectorizer.idf)
}
