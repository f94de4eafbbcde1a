package scoring

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
)

// ClaimRecord is one medication claim as received from a caller or read
// from the training dataset.
type ClaimRecord struct {
	DescriptionMed string  `json:"DESCRIPTION_med" validate:"required"`
	EncounterClass string  `json:"ENCOUNTERCLASS" validate:"required"`
	Provider       string  `json:"PROVIDER" validate:"required"`
	Organization   string  `json:"ORGANIZATION" validate:"required"`
	Gender         string  `json:"GENDER" validate:"required"`
	Ethnicity      string  `json:"ETHNICITY" validate:"required"`
	Marital        string  `json:"MARITAL" validate:"required"`
	State          string  `json:"STATE" validate:"required"`
	Age            int     `json:"AGE" validate:"gte=0,lte=150"`
	Dispenses      float64 `json:"DISPENSES" validate:"gte=0"`
	BaseCost       float64 `json:"BASE_COST" validate:"gte=0"`
	TotalCost      float64 `json:"TOTALCOST" validate:"gte=0"`
	PatientMed     string  `json:"PATIENT_med" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON column names rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that every required field is present and every numeric
// field is finite and within range.
func (r ClaimRecord) Validate() error {
	problems := r.problems()
	if len(problems) > 0 {
		return errors.NewValidationErrorWithMap(problems)
	}
	return nil
}

// problems maps each offending JSON field name to a short description
func (r ClaimRecord) problems() map[string]string {
	problems := make(map[string]string)
	collectFieldErrors(validate.Struct(r), problems)

	for name, v := range map[string]float64{
		"DISPENSES": r.Dispenses,
		"BASE_COST": r.BaseCost,
		"TOTALCOST": r.TotalCost,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			problems[name] = "must be a finite number"
		}
	}

	return problems
}

func collectFieldErrors(err error, problems map[string]string) {
	if err == nil {
		return
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		problems["record"] = err.Error()
		return
	}
	for _, fe := range fieldErrs {
		problems[fe.Field()] = describeFieldError(fe)
	}
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// categorical returns the raw value of a label-encoded field.
func (r ClaimRecord) categorical(field string) string {
	switch field {
	case FieldDescription:
		return r.DescriptionMed
	case FieldEncounterClass:
		return r.EncounterClass
	case FieldProvider:
		return r.Provider
	case FieldOrganization:
		return r.Organization
	case FieldGender:
		return r.Gender
	case FieldEthnicity:
		return r.Ethnicity
	case FieldMarital:
		return r.Marital
	case FieldState:
		return r.State
	}
	return ""
}

// RiskTier is the medication risk category. The numeric value is the code
// fed to the population model.
type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskModerate
	RiskHigh
)

var riskTierLabels = [...]string{"Low Risk", "Moderate Risk", "High Risk"}

func (t RiskTier) String() string {
	if t < RiskLow || t > RiskHigh {
		return fmt.Sprintf("RiskTier(%d)", int(t))
	}
	return riskTierLabels[t]
}

// Code is the integer encoding used as MEDICATION_RISK_CODE.
func (t RiskTier) Code() int { return int(t) }

// ParseRiskTier maps a label such as "High Risk" back to its tier.
func ParseRiskTier(label string) (RiskTier, error) {
	for i, l := range riskTierLabels {
		if l == label {
			return RiskTier(i), nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk tier %q", label)
}

func (t RiskTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *RiskTier) UnmarshalText(b []byte) error {
	parsed, err := ParseRiskTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
