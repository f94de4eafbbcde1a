package dataset

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

// claimRow is the Parquet schema of a training row.
type claimRow struct {
	DescriptionMed string  `parquet:"DESCRIPTION_med"`
	EncounterClass string  `parquet:"ENCOUNTERCLASS"`
	Provider       string  `parquet:"PROVIDER"`
	Organization   string  `parquet:"ORGANIZATION"`
	Gender         string  `parquet:"GENDER"`
	Ethnicity      string  `parquet:"ETHNICITY"`
	Marital        string  `parquet:"MARITAL"`
	State          string  `parquet:"STATE"`
	Age            int64   `parquet:"AGE"`
	Dispenses      float64 `parquet:"DISPENSES"`
	BaseCost       float64 `parquet:"BASE_COST"`
	TotalCost      float64 `parquet:"TOTALCOST"`
	PatientMed     string  `parquet:"PATIENT_med"`
}

func (r claimRow) record() scoring.ClaimRecord {
	return scoring.ClaimRecord{
		DescriptionMed: r.DescriptionMed,
		EncounterClass: r.EncounterClass,
		Provider:       r.Provider,
		Organization:   r.Organization,
		Gender:         r.Gender,
		Ethnicity:      r.Ethnicity,
		Marital:        r.Marital,
		State:          r.State,
		Age:            int(r.Age),
		Dispenses:      r.Dispenses,
		BaseCost:       r.BaseCost,
		TotalCost:      r.TotalCost,
		PatientMed:     r.PatientMed,
	}
}

func fromRecord(r scoring.ClaimRecord) claimRow {
	return claimRow{
		DescriptionMed: r.DescriptionMed,
		EncounterClass: r.EncounterClass,
		Provider:       r.Provider,
		Organization:   r.Organization,
		Gender:         r.Gender,
		Ethnicity:      r.Ethnicity,
		Marital:        r.Marital,
		State:          r.State,
		Age:            int64(r.Age),
		Dispenses:      r.Dispenses,
		BaseCost:       r.BaseCost,
		TotalCost:      r.TotalCost,
		PatientMed:     r.PatientMed,
	}
}

const parquetBatch = 1024

// ReadParquet streams every row of a Parquet claims file.
func ReadParquet(path string) ([]scoring.ClaimRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[claimRow](pf)
	defer reader.Close()

	records := make([]scoring.ClaimRecord, 0, reader.NumRows())
	rows := make([]claimRow, parquetBatch)
	for {
		n, err := reader.Read(rows)
		for i := 0; i < n; i++ {
			rec := rows[i].record()
			if cerr := checkFinite(len(records)+1, rec); cerr != nil {
				return nil, cerr
			}
			records = append(records, rec)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
	return records, nil
}

// WriteParquet writes records as a Parquet file readable by ReadParquet.
func WriteParquet(path string, records []scoring.ClaimRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer f.Close()

	writer := parquet.NewGenericWriter[claimRow](f)
	rows := make([]claimRow, len(records))
	for i, r := range records {
		rows[i] = fromRecord(r)
	}
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return f.Close()
}
