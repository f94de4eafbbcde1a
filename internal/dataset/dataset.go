// Package dataset reads the training claims table from CSV or Parquet.
package dataset

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

// Columns are the fields every training row must carry. Other columns in
// the source file are ignored.
var Columns = []string{
	"DESCRIPTION_med", "ENCOUNTERCLASS", "PROVIDER", "ORGANIZATION",
	"GENDER", "ETHNICITY", "MARITAL", "STATE",
	"AGE", "DISPENSES", "BASE_COST", "TOTALCOST", "PATIENT_med",
}

// Format is a supported on-disk layout.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unsupported dataset extension %q", filepath.Ext(path))
}

// Load reads every training record from path. Any failure is returned as a
// dataset error; the service cannot start without its training data.
func Load(path string) ([]scoring.ClaimRecord, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, errors.NewDatasetLoadError(path, err)
	}

	var records []scoring.ClaimRecord
	switch format {
	case FormatCSV:
		records, err = ReadCSV(path)
	case FormatParquet:
		records, err = ReadParquet(path)
	}
	if err != nil {
		return nil, errors.NewDatasetLoadError(path, err)
	}
	if len(records) == 0 {
		return nil, errors.NewDatasetLoadError(path, fmt.Errorf("no rows"))
	}
	return records, nil
}

func checkFinite(row int, r scoring.ClaimRecord) error {
	for name, v := range map[string]float64{
		"DISPENSES": r.Dispenses,
		"BASE_COST": r.BaseCost,
		"TOTALCOST": r.TotalCost,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("row %d: %s is not finite", row, name)
		}
	}
	return nil
}
