package scoring

import "fmt"

// Options configures training of a ScoringContext.
type Options struct {
	Lexicon        *Lexicon
	Forest         ForestConfig
	Classifier     ClassifierConfig
	BackgroundSize int
	// OnExtend observes vocabulary growth at inference time.
	OnExtend ExtendHook
}

// DefaultOptions uses the built-in lexicon and production model settings.
func DefaultOptions() Options {
	return Options{
		Lexicon:        DefaultLexicon(),
		Forest:         DefaultForestConfig(),
		Classifier:     DefaultClassifierConfig(),
		BackgroundSize: 100,
	}
}

// ScoringContext owns every trained artifact. It is built once and is safe
// for concurrent Score calls; only the categorical vocabularies mutate
// afterwards.
type ScoringContext struct {
	lexicon    *Lexicon
	classifier *MedicationRiskClassifier
	encoder    *FeatureEncoder
	profiles   map[string]PatientHistoryProfile
	general    *AnomalyModel
	delta      *AnomalyModel
	rows       int
}

// NewScoringContext trains the classifier and both anomaly models from the
// training records.
func NewScoringContext(records []ClaimRecord, opts Options) (*ScoringContext, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("scoring context: no training records")
	}
	if opts.Lexicon == nil {
		opts.Lexicon = DefaultLexicon()
	}

	descriptions := make([]string, len(records))
	for i, r := range records {
		descriptions[i] = r.DescriptionMed
	}
	classifier, err := TrainMedicationRiskClassifier(descriptions, opts.Lexicon, opts.Classifier)
	if err != nil {
		return nil, err
	}

	encoder := NewFeatureEncoder(records, opts.OnExtend)
	profiles := BuildPatientProfiles(records)

	// training rows use the lexicon label; inference uses the classifier
	generalRows := make([][]float64, len(records))
	deltaRows := make([][]float64, len(records))
	for i, r := range records {
		generalRows[i] = encoder.encode(r, opts.Lexicon.Classify(r.DescriptionMed)).PopulationInputs()
		deltaRows[i] = EncodeDelta(r, profiles[r.PatientMed]).Inputs()
	}

	general, err := TrainAnomalyModel(ModelGeneralPopulation, PopulationFeatures, generalRows, opts.Forest, opts.BackgroundSize)
	if err != nil {
		return nil, err
	}
	delta, err := TrainAnomalyModel(ModelPatientHistory, DeltaFeatures, deltaRows, opts.Forest, opts.BackgroundSize)
	if err != nil {
		return nil, err
	}

	return &ScoringContext{
		lexicon:    opts.Lexicon,
		classifier: classifier,
		encoder:    encoder,
		profiles:   profiles,
		general:    general,
		delta:      delta,
		rows:       len(records),
	}, nil
}

// scoringRoute selects the model and inputs for one claim.
type scoringRoute interface {
	model(sc *ScoringContext) *AnomalyModel
	inputs() []float64
}

type patientHistoryRoute struct {
	delta DeltaFeatureVector
}

func (r patientHistoryRoute) model(sc *ScoringContext) *AnomalyModel { return sc.delta }
func (r patientHistoryRoute) inputs() []float64                      { return r.delta.Inputs() }

type generalRoute struct {
	vector EncodedFeatureVector
}

func (r generalRoute) model(sc *ScoringContext) *AnomalyModel { return sc.general }
func (r generalRoute) inputs() []float64                      { return r.vector.PopulationInputs() }

func (sc *ScoringContext) route(r ClaimRecord, vec EncodedFeatureVector) scoringRoute {
	if profile, ok := sc.profiles[r.PatientMed]; ok {
		return patientHistoryRoute{delta: EncodeDelta(r, profile)}
	}
	return generalRoute{vector: vec}
}

// Score runs the full pipeline for one claim. Patients present in the
// training data are scored on their deviation from their own history;
// everyone else against the population.
func (sc *ScoringContext) Score(r ClaimRecord) (PredictionResult, error) {
	if err := r.Validate(); err != nil {
		return PredictionResult{}, err
	}

	tier := sc.classifier.Predict(r.DescriptionMed)
	vec := sc.encoder.encode(r, tier)

	rt := sc.route(r, vec)
	model := rt.model(sc)
	inputs := rt.inputs()
	explanation := model.Explain(inputs)
	raw := explanation.Output

	return PredictionResult{
		Fraud:          raw < 0,
		RiskScore:      model.Normalize(raw),
		MedicationRisk: tier,
		UsedModel:      model.Name(),
		ShapFeatures:   NewFeatureValues(explanation.Features, explanation.Inputs),
		ShapValues:     explanation.Values,
		ShapBaseValue:  explanation.BaseValue,
		RawScore:       raw,
	}, nil
}

// ClassifyMedication exposes the classifier used at inference time.
func (sc *ScoringContext) ClassifyMedication(description string) RiskTier {
	return sc.classifier.Predict(description)
}

// Profile looks up a patient's training profile.
func (sc *ScoringContext) Profile(patientID string) (PatientHistoryProfile, bool) {
	p, ok := sc.profiles[patientID]
	return p, ok
}

// Vocabulary returns the live vocabulary of a categorical field, or nil.
func (sc *ScoringContext) Vocabulary(field string) *CategoryVocabulary {
	return sc.encoder.Vocabulary(field)
}

// GeneralModel is the population anomaly model.
func (sc *ScoringContext) GeneralModel() *AnomalyModel { return sc.general }

// DeltaModel is the patient-deviation anomaly model.
func (sc *ScoringContext) DeltaModel() *AnomalyModel { return sc.delta }
