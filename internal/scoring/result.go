package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Model labels reported in PredictionResult.UsedModel.
const (
	ModelPatientHistory    = "patient history"
	ModelGeneralPopulation = "general population"
)

// PredictionResult is the outcome of scoring one claim.
type PredictionResult struct {
	Fraud          bool          `json:"fraud"`
	RiskScore      int           `json:"risk_score"`
	MedicationRisk RiskTier      `json:"medication_risk"`
	UsedModel      string        `json:"used_model"`
	ShapFeatures   FeatureValues `json:"shap_features"`
	ShapValues     []float64     `json:"shap_values"`
	ShapBaseValue  float64       `json:"shap_base_value"`
	RawScore       float64       `json:"raw_score"`
}

// FeatureValues is an ordered feature-name to value mapping. It encodes as a
// JSON object whose key order matches Names.
type FeatureValues struct {
	Names  []string
	Values []float64
}

// NewFeatureValues pairs names with values; both must have the same length.
func NewFeatureValues(names []string, values []float64) FeatureValues {
	return FeatureValues{
		Names:  append([]string(nil), names...),
		Values: append([]float64(nil), values...),
	}
}

// Get returns the value for name.
func (fv FeatureValues) Get(name string) (float64, bool) {
	for i, n := range fv.Names {
		if n == name {
			return fv.Values[i], true
		}
	}
	return 0, false
}

func (fv FeatureValues) MarshalJSON() ([]byte, error) {
	if len(fv.Names) != len(fv.Values) {
		return nil, fmt.Errorf("feature values: %d names for %d values", len(fv.Names), len(fv.Values))
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range fv.Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(fv.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (fv *FeatureValues) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*fv = FeatureValues{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("feature values: expected object, got %v", tok)
	}

	var out FeatureValues
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("feature values: expected key, got %v", keyTok)
		}
		var v float64
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("feature values: %s: %w", key, err)
		}
		out.Names = append(out.Names, key)
		out.Values = append(out.Values, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*fv = out
	return nil
}
