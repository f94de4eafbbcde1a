package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/dataset"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/exitcode"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

// writeDataset writes 12 patients with 5 claims each as a training CSV
func writeDataset(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "claims.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	descriptions := []string{
		"Fentanyl 100 MCG/HR Transdermal System",
		"Warfarin Sodium 5 MG Oral Tablet",
		"Acetaminophen 325 MG Oral Tablet",
		"Amoxicillin 250 MG Oral Capsule",
		"Oxycodone Hydrochloride 10 MG Oral Tablet",
	}
	classes := []string{"ambulatory", "outpatient", "inpatient", "wellness"}
	states := []string{"Massachusetts", "Texas", "Ohio"}

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(dataset.Columns))
	for p := 0; p < 12; p++ {
		for k := 0; k < 5; k++ {
			i := p*5 + k
			base := 10 + float64((i*7)%23)
			disp := 1 + float64((i*3)%6)
			require.NoError(t, w.Write([]string{
				descriptions[(p+k)%len(descriptions)],
				classes[i%len(classes)],
				fmt.Sprintf("prov-%02d", p%4),
				fmt.Sprintf("org-%d", p%3),
				[]string{"F", "M"}[p%2],
				[]string{"hispanic", "nonhispanic"}[p%2],
				[]string{"M", "S"}[(p/2)%2],
				states[p%len(states)],
				strconv.Itoa(30 + p*3),
				strconv.FormatFloat(disp, 'f', -1, 64),
				strconv.FormatFloat(base, 'f', -1, 64),
				strconv.FormatFloat(base*disp, 'f', -1, 64),
				fmt.Sprintf("P%03d", p+1),
			}))
		}
	}
	w.Flush()
	require.NoError(t, w.Error())
	return path
}

const claimJSON = `{"DESCRIPTION_med":"Acetaminophen 325 MG Oral Tablet","ENCOUNTERCLASS":"ambulatory",` +
	`"PROVIDER":"prov-01","ORGANIZATION":"org-1","GENDER":"F","ETHNICITY":"nonhispanic","MARITAL":"M",` +
	`"STATE":"Massachusetts","AGE":45,"DISPENSES":2,"BASE_COST":12.5,"TOTALCOST":25,"PATIENT_med":"%s"}`

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreCommand(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, dir)
	historyPath := filepath.Join(dir, "predictions.csv")

	input := "[" + fmt.Sprintf(claimJSON, "P003") + "," + fmt.Sprintf(claimJSON, "P999") + "]"
	out, err := runCLI(t, input, "score", "--data", data, "--history-path", historyPath, "--record")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, scoring.ModelPatientHistory, first["used_model"])
	assert.Equal(t, scoring.ModelGeneralPopulation, second["used_model"])

	out, err = runCLI(t, "", "history", "--history-path", historyPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	out, err = runCLI(t, "", "history", "--history-path", historyPath, "--patient", "P999")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
	assert.Contains(t, out, `"PATIENT_med":"P999"`)
}

func TestScoreCommandSingleObjectFromFile(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, dir)
	claimFile := filepath.Join(dir, "claim.json")
	require.NoError(t, os.WriteFile(claimFile, []byte(fmt.Sprintf(claimJSON, "P001")), 0644))

	out, err := runCLI(t, "", "score", "--data", data, "-f", claimFile)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &result))
	assert.Equal(t, scoring.ModelPatientHistory, result["used_model"])

	// without --record nothing is logged
	_, statErr := os.Stat(filepath.Join(dir, "predictions.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestScoreCommandErrors(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, dir)

	tests := []struct {
		name     string
		stdin    string
		args     []string
		wantCode int
	}{
		{name: "empty input", stdin: "", args: []string{"score", "--data", data}, wantCode: exitcode.ValidationError},
		{name: "malformed json", stdin: "{", args: []string{"score", "--data", data}, wantCode: exitcode.ValidationError},
		{name: "missing patient", stdin: fmt.Sprintf(claimJSON, ""), args: []string{"score", "--data", data}, wantCode: exitcode.ValidationError},
		{name: "missing age", stdin: strings.Replace(fmt.Sprintf(claimJSON, "P001"), `"AGE":45,`, "", 1), args: []string{"score", "--data", data}, wantCode: exitcode.ValidationError},
		{name: "missing dataset", stdin: fmt.Sprintf(claimJSON, "P001"), args: []string{"score", "--data", filepath.Join(dir, "nope.csv")}, wantCode: exitcode.DatasetError},
		{name: "unknown flag", args: []string{"score", "--bogus"}, wantCode: exitcode.UsageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.stdin, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, exitcode.FromError(err))
		})
	}
}

func TestSummaryCommand(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, dir)
	summaryPath := filepath.Join(dir, "summary.json")

	out, err := runCLI(t, "", "summary", "--data", data, "--out", summaryPath)
	require.NoError(t, err)

	var summary scoring.ModelSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 60, summary.TrainingRows)
	assert.Equal(t, 12, summary.Patients)
	assert.Equal(t, 3, summary.Vocabulary[scoring.FieldState])

	saved, err := scoring.LoadSummary(summaryPath)
	require.NoError(t, err)
	assert.Equal(t, summary, *saved)
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, dir)
	parquetPath := filepath.Join(dir, "claims.parquet")

	out, err := runCLI(t, "", "convert", "--in", data, "--out", parquetPath)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("wrote 60 rows to %s\n", parquetPath), out)

	fromCSV, err := dataset.Load(data)
	require.NoError(t, err)
	fromParquet, err := dataset.Load(parquetPath)
	require.NoError(t, err)
	assert.Equal(t, fromCSV, fromParquet)

	_, err = runCLI(t, "", "convert", "--in", data, "--out", filepath.Join(dir, "claims.json"))
	require.Error(t, err)
	assert.Equal(t, exitcode.ValidationError, exitcode.FromError(err))
}

func TestFilterEntries(t *testing.T) {
	assert.Empty(t, filterEntries(nil, "P001", false))
}
