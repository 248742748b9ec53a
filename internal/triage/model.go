package triage

// Level is the urgency classification of a clinical case.
type Level string

const (
	// LevelCritical means immediate escalation is warranted
	LevelCritical Level = "critical"

	// LevelUrgent means prompt but not immediate care
	LevelUrgent Level = "urgent"

	// LevelRoutine means no acute findings
	LevelRoutine Level = "routine"

	// LevelUnknown means the model output did not resolve to a level
	LevelUnknown Level = "unknown"
)

// ParseLevel resolves a free-text triage level to a recognized Level.
// Matching is case-insensitive and whitespace-tolerant.
func ParseLevel(s string) (Level, bool) {
	switch Level(normalize(s)) {
	case LevelCritical:
		return LevelCritical, true
	case LevelUrgent:
		return LevelUrgent, true
	case LevelRoutine:
		return LevelRoutine, true
	case LevelUnknown:
		return LevelUnknown, true
	}
	return LevelUnknown, false
}

// Specialty is the medical domain classification used to match cases to
// capable facilities.
type Specialty string

const (
	SpecialtyRespiratory  Specialty = "respiratory"
	SpecialtyCardiac      Specialty = "cardiac"
	SpecialtyNeurological Specialty = "neurological"
	SpecialtyTrauma       Specialty = "trauma"
	SpecialtyOncology     Specialty = "oncology"
	SpecialtyDermatology  Specialty = "dermatology"
	SpecialtyGeneral      Specialty = "general"
	SpecialtyUnknown      Specialty = "unknown"
)

// specialtySynonyms maps discipline names the model sometimes emits to
// the canonical category vocabulary.
var specialtySynonyms = map[string]Specialty{
	"cardiology":  SpecialtyCardiac,
	"neurology":   SpecialtyNeurological,
	"pulmonology": SpecialtyRespiratory,
	"pulmonary":   SpecialtyRespiratory,
	"orthopedic":  SpecialtyTrauma,
	"orthopedics": SpecialtyTrauma,
}

// ParseSpecialty resolves a free-text specialty to a recognized Specialty.
func ParseSpecialty(s string) (Specialty, bool) {
	n := normalize(s)
	if syn, ok := specialtySynonyms[n]; ok {
		return syn, true
	}
	switch Specialty(n) {
	case SpecialtyRespiratory:
		return SpecialtyRespiratory, true
	case SpecialtyCardiac:
		return SpecialtyCardiac, true
	case SpecialtyNeurological:
		return SpecialtyNeurological, true
	case SpecialtyTrauma:
		return SpecialtyTrauma, true
	case SpecialtyOncology:
		return SpecialtyOncology, true
	case SpecialtyDermatology:
		return SpecialtyDermatology, true
	case SpecialtyGeneral:
		return SpecialtyGeneral, true
	case SpecialtyUnknown:
		return SpecialtyUnknown, true
	}
	return SpecialtyGeneral, false
}

// Confidence is the model's self-reported confidence in its assessment.
type Confidence string

const (
	ConfidenceLow     Confidence = "low"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceHigh    Confidence = "high"
	ConfidenceUnknown Confidence = "unknown"
)

// ParseConfidence resolves a free-text confidence to a recognized Confidence.
func ParseConfidence(s string) (Confidence, bool) {
	switch Confidence(normalize(s)) {
	case ConfidenceLow:
		return ConfidenceLow, true
	case ConfidenceMedium:
		return ConfidenceMedium, true
	case ConfidenceHigh:
		return ConfidenceHigh, true
	case ConfidenceUnknown:
		return ConfidenceUnknown, true
	}
	return ConfidenceUnknown, false
}

// Diagnostic records a single coercion the validator applied while
// resolving raw model output to a Record. Diagnostics are advisory and
// never block display.
type Diagnostic struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Record is the validated clinical output of a single analysis. Every
// field is populated: the validator substitutes documented defaults for
// anything absent or unrecognized, so no consumer ever sees a nil or
// missing required field.
type Record struct {
	Level             Level        `json:"triage_level"`
	SuspectedFindings []string     `json:"suspected_findings"`
	RedFlags          []string     `json:"red_flags"`
	NextSteps         []string     `json:"recommended_next_steps"`
	Specialty         Specialty    `json:"specialty_category"`
	PatientSummary    string       `json:"patient_summary"`
	Confidence        Confidence   `json:"confidence_level"`
	Disclaimer        string       `json:"disclaimer"`
	Degraded          bool         `json:"degraded,omitempty"`
	Diagnostics       []Diagnostic `json:"diagnostics,omitempty"`
}
