package scoring

import "github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"

// ClaimInput is a claim as sent by a caller. The numeric fields are pointers
// so that an absent key is rejected instead of read as zero.
type ClaimInput struct {
	DescriptionMed string   `json:"DESCRIPTION_med"`
	EncounterClass string   `json:"ENCOUNTERCLASS"`
	Provider       string   `json:"PROVIDER"`
	Organization   string   `json:"ORGANIZATION"`
	Gender         string   `json:"GENDER"`
	Ethnicity      string   `json:"ETHNICITY"`
	Marital        string   `json:"MARITAL"`
	State          string   `json:"STATE"`
	Age            *int     `json:"AGE" validate:"required"`
	Dispenses      *float64 `json:"DISPENSES" validate:"required"`
	BaseCost       *float64 `json:"BASE_COST" validate:"required"`
	TotalCost      *float64 `json:"TOTALCOST" validate:"required"`
	PatientMed     string   `json:"PATIENT_med"`
}

// Record validates the input and returns the claim it describes. Every
// missing or invalid field is reported in one ValidationError.
func (in ClaimInput) Record() (ClaimRecord, error) {
	r := ClaimRecord{
		DescriptionMed: in.DescriptionMed,
		EncounterClass: in.EncounterClass,
		Provider:       in.Provider,
		Organization:   in.Organization,
		Gender:         in.Gender,
		Ethnicity:      in.Ethnicity,
		Marital:        in.Marital,
		State:          in.State,
		PatientMed:     in.PatientMed,
	}
	if in.Age != nil {
		r.Age = *in.Age
	}
	if in.Dispenses != nil {
		r.Dispenses = *in.Dispenses
	}
	if in.BaseCost != nil {
		r.BaseCost = *in.BaseCost
	}
	if in.TotalCost != nil {
		r.TotalCost = *in.TotalCost
	}

	problems := r.problems()
	collectFieldErrors(validate.Struct(in), problems)
	if len(problems) > 0 {
		return ClaimRecord{}, errors.NewValidationErrorWithMap(problems)
	}
	return r, nil
}
