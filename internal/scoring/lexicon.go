package scoring

import "strings"

// DefaultHighRiskTerms lists medication-name fragments that mark a claim as
// high risk: controlled opioids, sedatives and a few specialty drugs.
var DefaultHighRiskTerms = []string{
	"pregabalin", "gabapentin", "tapentadol", "carfentanil", "nitrazepam", "zopiclone", "zolpidem",
	"lorazepam", "temazepam", "hydromorphone", "fentanyl", "methadone", "oxycodone", "morphine",
	"alfentanil", "hydrocodone bitartrate", "medroxyPROGESTERone acetate", "leuprolide acetate",
	"enoxaparin sodium", "docetaxel", "epinephrine", "fluorouracil", "oxaliplatin", "furosemide",
	"doxorubicin hydrochloride", "fulvestrant", "sufentanil", "abuse-deterrent oxycodone hydrochloride",
	"amiodarone hydrochloride", "vancomycin", "tramadol", "Morphine Sulfate",
	"Oxycodone Hydrochloride", "Codeine Phosphate", "Methadone Hydrochloride",
	"Tramadol Hydrochloride", "Meperidine Hydrochloride", "Buprenorphine / Naloxone",
	"Lorazepam", "Diazepam", "Midazolam", "Clonazepam", "Remifentanil",
	"Nicotine Transdermal Patch", "Propofol",
}

// DefaultModerateRiskTerms lists fragments checked only when no high-risk
// fragment matched.
var DefaultModerateRiskTerms = []string{
	"rivaroxaban", "dabigatran", "azathioprine", "baricitinib", "moxifloxacin", "clarithromycin",
	"erythromycin", "ondansetron", "donepezil hydrochloride", "memantine hydrochloride",
	"metformin hydrochloride", "nicotine transdermal patch", "ethinyl estradiol", "norelgestromin",
	"fluticasone propionate", "liraglutide", "norepinephrine", "alendronic acid", "amoxicillin clavulanate",
	"alprazolam", "salmeterol fluticasone", "piperacillin tazobactam",
	"fentanyl transdermal system", "warfarin", "acetaminophen hydrocodone", "cimetidine",
	"DOCEtaxel", "Epirubicin Hydrochloride", "Cyclophosphamide", "Cisplatin", "Methotrexate",
	"PACLitaxel", "Carboplatin", "Leuprolide Acetate", "Letrozole", "Anastrozole", "Exemestane",
	"Tamoxifen", "Palbociclib", "Ribociclib", "Neratinib", "Lapatinib",
	"Ethinyl Estradiol / Norelgestromin", "Mirena", "Kyleena", "Liletta", "NuvaRing", "Yaz",
	"Levora", "Natazia", "Trinessa", "Camila", "Jolivette", "Errin", "Remdesivir",
	"Heparin sodium porcine", "Alteplase", "Atropine Sulfate", "Desflurane", "Isoflurane",
	"Sevoflurane", "Rocuronium bromide", "Epoetin Alfa", "Glycopyrrolate", "Aviptadil",
	"Leronlimab", "Lenzilumab",
}

// Lexicon classifies medication descriptions by case-insensitive substring
// match. High-risk terms always win over moderate-risk ones.
type Lexicon struct {
	high     []string
	moderate []string
}

// NewLexicon lower-cases and de-duplicates the term lists. Empty terms are
// dropped since they would match every description.
func NewLexicon(high, moderate []string) *Lexicon {
	return &Lexicon{
		high:     normalizeTerms(high),
		moderate: normalizeTerms(moderate),
	}
}

// DefaultLexicon builds a lexicon from the built-in term lists.
func DefaultLexicon() *Lexicon {
	return NewLexicon(DefaultHighRiskTerms, DefaultModerateRiskTerms)
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Classify returns the risk tier of a description.
func (l *Lexicon) Classify(description string) RiskTier {
	name := strings.ToLower(description)
	if containsAny(name, l.high) {
		return RiskHigh
	}
	if containsAny(name, l.moderate) {
		return RiskModerate
	}
	return RiskLow
}

// Size returns the number of distinct high and moderate terms.
func (l *Lexicon) Size() (high, moderate int) {
	return len(l.high), len(l.moderate)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
