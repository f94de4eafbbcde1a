package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

// ReadCSV reads a headered claims CSV. Columns are matched by name, so
// order and extra columns do not matter.
func ReadCSV(path string) ([]scoring.ClaimRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	return decodeCSV(file)
}

func decodeCSV(r io.Reader) ([]scoring.ClaimRecord, error) {
	buf := bufio.NewReaderSize(r, 64*1024)

	// skip UTF-8 BOM
	if bom, err := buf.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		buf.Discard(3)
	}

	reader := csv.NewReader(buf)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, c := range Columns {
		if _, ok := colIdx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	var records []scoring.ClaimRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseRow(row, colIdx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := checkFinite(line, rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, colIdx map[string]int) (scoring.ClaimRecord, error) {
	get := func(col string) string {
		i := colIdx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	num := func(col string) (float64, error) {
		v, err := strconv.ParseFloat(get(col), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", col, err)
		}
		return v, nil
	}

	age, err := num("AGE")
	if err != nil {
		return scoring.ClaimRecord{}, err
	}
	dispenses, err := num("DISPENSES")
	if err != nil {
		return scoring.ClaimRecord{}, err
	}
	base, err := num("BASE_COST")
	if err != nil {
		return scoring.ClaimRecord{}, err
	}
	total, err := num("TOTALCOST")
	if err != nil {
		return scoring.ClaimRecord{}, err
	}

	return scoring.ClaimRecord{
		DescriptionMed: get("DESCRIPTION_med"),
		EncounterClass: get("ENCOUNTERCLASS"),
		Provider:       get("PROVIDER"),
		Organization:   get("ORGANIZATION"),
		Gender:         get("GENDER"),
		Ethnicity:      get("ETHNICITY"),
		Marital:        get("MARITAL"),
		State:          get("STATE"),
		Age:            int(math.Round(age)),
		Dispenses:      dispenses,
		BaseCost:       base,
		TotalCost:      total,
		PatientMed:     get("PATIENT_med"),
	}, nil
}
