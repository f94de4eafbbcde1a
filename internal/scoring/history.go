package scoring

// PatientHistoryProfile holds a patient's averages over the training data.
type PatientHistoryProfile struct {
	PatientID     string  `json:"patient_id"`
	MeanBaseCost  float64 `json:"mean_base_cost"`
	MeanTotalCost float64 `json:"mean_total_cost"`
	MeanDispenses float64 `json:"mean_dispenses"`
	Age           int     `json:"age"`
	Claims        int     `json:"claims"`
}

// BuildPatientProfiles groups records by PATIENT_med. Age is taken from the
// patient's first record.
func BuildPatientProfiles(records []ClaimRecord) map[string]PatientHistoryProfile {
	type acc struct {
		base, cost, disp float64
		n                int
		age              int
	}
	sums := make(map[string]*acc)
	for _, r := range records {
		a, ok := sums[r.PatientMed]
		if !ok {
			a = &acc{age: r.Age}
			sums[r.PatientMed] = a
		}
		a.base += r.BaseCost
		a.cost += r.TotalCost
		a.disp += r.Dispenses
		a.n++
	}

	profiles := make(map[string]PatientHistoryProfile, len(sums))
	for id, a := range sums {
		n := float64(a.n)
		profiles[id] = PatientHistoryProfile{
			PatientID:     id,
			MeanBaseCost:  a.base / n,
			MeanTotalCost: a.cost / n,
			MeanDispenses: a.disp / n,
			Age:           a.age,
			Claims:        a.n,
		}
	}
	return profiles
}
