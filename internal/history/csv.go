package history

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

// CSVColumns is the header written when a history file is created. The
// leading columns match older prediction logs; readers map by header name,
// so files without the trailing columns still load.
var CSVColumns = []string{
	"DESCRIPTION_med", "ENCOUNTERCLASS", "PROVIDER", "ORGANIZATION",
	"GENDER", "ETHNICITY", "MARITAL", "STATE",
	"AGE", "DISPENSES", "BASE_COST", "TOTALCOST", "PATIENT_med",
	"fraud", "risk_score", "medication_risk", "used_model",
	"shap_features", "shap_values", "timestamp",
	"shap_base_value", "raw_score", "id",
}

// legacy logs wrote naive UTC timestamps
var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"}

// CSVStore appends entries to a CSV file. Writes are serialized so rows
// never interleave.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore prepares a store at path. The file is created on first
// Append, with the header.
func NewCSVStore(path string) (*CSVStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	return &CSVStore{path: path}, nil
}

func (s *CSVStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := encodeRow(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(s.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(CSVColumns); err != nil {
			return fmt.Errorf("write history header: %w", err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write history row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush history row: %w", err)
	}
	return f.Close()
}

// List reads every entry. A missing file is an empty history.
func (s *CSVStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[h] = i
	}

	entries := []Entry{}
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("history line %d: %w", line, err)
		}
		e, err := decodeRow(row, colIdx)
		if err != nil {
			return nil, fmt.Errorf("history line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *CSVStore) Close() error { return nil }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func encodeRow(e Entry) ([]string, error) {
	features, err := json.Marshal(e.ShapFeatures)
	if err != nil {
		return nil, fmt.Errorf("encode shap_features: %w", err)
	}
	values, err := json.Marshal(e.ShapValues)
	if err != nil {
		return nil, fmt.Errorf("encode shap_values: %w", err)
	}

	r := e.ClaimRecord
	return []string{
		r.DescriptionMed, r.EncounterClass, r.Provider, r.Organization,
		r.Gender, r.Ethnicity, r.Marital, r.State,
		strconv.Itoa(r.Age), formatFloat(r.Dispenses), formatFloat(r.BaseCost), formatFloat(r.TotalCost), r.PatientMed,
		strconv.FormatBool(e.Fraud), strconv.Itoa(e.RiskScore), e.MedicationRisk.String(), e.UsedModel,
		string(features), string(values), e.Timestamp.UTC().Format(time.RFC3339Nano),
		formatFloat(e.ShapBaseValue), formatFloat(e.RawScore), e.ID,
	}, nil
}

func decodeRow(row []string, colIdx map[string]int) (Entry, error) {
	get := func(col string) string {
		i, ok := colIdx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	var firstErr error
	num := func(col string) float64 {
		s := get(col)
		if s == "" {
			return 0
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", col, err)
		}
		return v
	}

	var e Entry
	e.ID = get("id")
	e.ClaimRecord = scoring.ClaimRecord{
		DescriptionMed: get("DESCRIPTION_med"),
		EncounterClass: get("ENCOUNTERCLASS"),
		Provider:       get("PROVIDER"),
		Organization:   get("ORGANIZATION"),
		Gender:         get("GENDER"),
		Ethnicity:      get("ETHNICITY"),
		Marital:        get("MARITAL"),
		State:          get("STATE"),
		Age:            int(num("AGE")),
		Dispenses:      num("DISPENSES"),
		BaseCost:       num("BASE_COST"),
		TotalCost:      num("TOTALCOST"),
		PatientMed:     get("PATIENT_med"),
	}
	e.RiskScore = int(num("risk_score"))
	e.ShapBaseValue = num("shap_base_value")
	e.RawScore = num("raw_score")
	e.UsedModel = get("used_model")
	if firstErr != nil {
		return Entry{}, firstErr
	}

	if s := get("fraud"); s != "" {
		fraud, err := strconv.ParseBool(s)
		if err != nil {
			return Entry{}, fmt.Errorf("fraud: %w", err)
		}
		e.Fraud = fraud
	}
	if s := get("medication_risk"); s != "" {
		tier, err := scoring.ParseRiskTier(s)
		if err != nil {
			return Entry{}, fmt.Errorf("medication_risk: %w", err)
		}
		e.MedicationRisk = tier
	}
	if s := get("shap_features"); s != "" {
		if err := json.Unmarshal([]byte(s), &e.ShapFeatures); err != nil {
			return Entry{}, fmt.Errorf("shap_features: %w", err)
		}
	}
	if s := get("shap_values"); s != "" {
		if err := json.Unmarshal([]byte(s), &e.ShapValues); err != nil {
			return Entry{}, fmt.Errorf("shap_values: %w", err)
		}
	}
	if s := get("timestamp"); s != "" {
		ts, err := parseTimestamp(s)
		if err != nil {
			return Entry{}, err
		}
		e.Timestamp = ts
	}
	return e, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: cannot parse %q", s)
}
