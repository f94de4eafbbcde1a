package scoring

// Categorical column names, in the order they are label-encoded.
const (
	FieldDescription    = "DESCRIPTION_med"
	FieldEncounterClass = "ENCOUNTERCLASS"
	FieldProvider       = "PROVIDER"
	FieldOrganization   = "ORGANIZATION"
	FieldGender         = "GENDER"
	FieldEthnicity      = "ETHNICITY"
	FieldMarital        = "MARITAL"
	FieldState          = "STATE"
)

// CategoricalFields lists every label-encoded column.
var CategoricalFields = []string{
	FieldDescription, FieldEncounterClass, FieldProvider, FieldOrganization,
	FieldGender, FieldEthnicity, FieldMarital, FieldState,
}

// PopulationFeatures names the population model inputs in column order.
var PopulationFeatures = []string{"ENCOUNTERCLASS", "DISPENSES", "TOTALCOST", "AGE", "MEDICATION_RISK_CODE"}

// DeltaFeatures names the patient-deviation model inputs in column order.
var DeltaFeatures = []string{"delta_base", "delta_cost", "delta_disp"}

// EncodedFeatureVector is a claim after label encoding.
type EncodedFeatureVector struct {
	Codes          map[string]int
	Age            int
	Dispenses      float64
	BaseCost       float64
	TotalCost      float64
	MedicationRisk RiskTier
}

// PopulationInputs projects the vector onto PopulationFeatures.
func (v EncodedFeatureVector) PopulationInputs() []float64 {
	return []float64{
		float64(v.Codes[FieldEncounterClass]),
		v.Dispenses,
		v.TotalCost,
		float64(v.Age),
		float64(v.MedicationRisk.Code()),
	}
}

// DeltaFeatureVector is a claim's deviation from its patient's averages.
type DeltaFeatureVector struct {
	Base      float64
	Cost      float64
	Dispenses float64
}

// Inputs returns the vector in DeltaFeatures order.
func (d DeltaFeatureVector) Inputs() []float64 {
	return []float64{d.Base, d.Cost, d.Dispenses}
}

// ExtendHook is called once for every value appended to a vocabulary.
type ExtendHook func(field, value string, code int)

// FeatureEncoder turns claim records into model inputs. The vocabulary map
// is fixed at construction; only the vocabularies themselves grow.
type FeatureEncoder struct {
	vocabularies map[string]*CategoryVocabulary
	onExtend     ExtendHook
}

// NewFeatureEncoder builds one vocabulary per categorical field from the
// training records.
func NewFeatureEncoder(records []ClaimRecord, onExtend ExtendHook) *FeatureEncoder {
	vocabs := make(map[string]*CategoryVocabulary, len(CategoricalFields))
	for _, field := range CategoricalFields {
		values := make([]string, len(records))
		for i, r := range records {
			values[i] = r.categorical(field)
		}
		vocabs[field] = NewCategoryVocabulary(field, values)
	}
	return &FeatureEncoder{vocabularies: vocabs, onExtend: onExtend}
}

// Vocabulary returns the vocabulary of a categorical field, or nil.
func (e *FeatureEncoder) Vocabulary(field string) *CategoryVocabulary {
	return e.vocabularies[field]
}

// Encode validates the record and label-encodes it with the given medication
// risk tier. Unseen categorical values extend their vocabulary.
func (e *FeatureEncoder) Encode(r ClaimRecord, tier RiskTier) (EncodedFeatureVector, error) {
	if err := r.Validate(); err != nil {
		return EncodedFeatureVector{}, err
	}
	return e.encode(r, tier), nil
}

func (e *FeatureEncoder) encode(r ClaimRecord, tier RiskTier) EncodedFeatureVector {
	codes := make(map[string]int, len(CategoricalFields))
	for _, field := range CategoricalFields {
		value := r.categorical(field)
		code, added := e.vocabularies[field].Encode(value)
		if added && e.onExtend != nil {
			e.onExtend(field, value, code)
		}
		codes[field] = code
	}
	return EncodedFeatureVector{
		Codes:          codes,
		Age:            r.Age,
		Dispenses:      r.Dispenses,
		BaseCost:       r.BaseCost,
		TotalCost:      r.TotalCost,
		MedicationRisk: tier,
	}
}

// EncodeDelta computes the record's deviation from the patient's means.
func EncodeDelta(r ClaimRecord, p PatientHistoryProfile) DeltaFeatureVector {
	return DeltaFeatureVector{
		Base:      r.BaseCost - p.MeanBaseCost,
		Cost:      r.TotalCost - p.MeanTotalCost,
		Dispenses: r.Dispenses - p.MeanDispenses,
	}
}
