package suggestion

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies a suggestion.
type Category string

const (
	CategoryInvestigation Category = "INVESTIGATION"
	CategoryImaging       Category = "IMAGING"
	CategoryConsultation  Category = "CONSULTATION"
	CategoryDifferential  Category = "DIFFERENTIAL"
)

var validCategories = map[Category]bool{
	CategoryInvestigation: true,
	CategoryImaging:       true,
	CategoryConsultation:  true,
	CategoryDifferential:  true,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return validCategories[c] }

// Status tracks whether a clinician has acted on a suggestion.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAddressed Status = "ADDRESSED"
)

// Flag names one of the six clinician-asserted risk flags on a note.
type Flag string

const (
	FlagHemodynamicInstability Flag = "hemodynamic_instability"
	FlagRespiratoryConcern     Flag = "respiratory_concern"
	FlagNeurologicChange       Flag = "neurologic_change"
	FlagSepsisConcern          Flag = "sepsis_concern"
	FlagLowUrineOutput         Flag = "low_urine_output"
	FlagUncontrolledPain       Flag = "uncontrolled_pain"
)

// Flags are independent clinician assertions. Keyword detection can add to
// them but never clears one.
type Flags struct {
	HemodynamicInstability bool `json:"flag_hemodynamic_instability" db:"flag_hemodynamic_instability"`
	RespiratoryConcern     bool `json:"flag_respiratory_concern" db:"flag_respiratory_concern"`
	NeurologicChange       bool `json:"flag_neurologic_change" db:"flag_neurologic_change"`
	SepsisConcern          bool `json:"flag_sepsis_concern" db:"flag_sepsis_concern"`
	LowUrineOutput         bool `json:"flag_low_urine_output" db:"flag_low_urine_output"`
	UncontrolledPain       bool `json:"flag_uncontrolled_pain" db:"flag_uncontrolled_pain"`
}

// IsSet reports whether the named flag is asserted. Unknown names are false.
func (f Flags) IsSet(name Flag) bool {
	switch name {
	case FlagHemodynamicInstability:
		return f.HemodynamicInstability
	case FlagRespiratoryConcern:
		return f.RespiratoryConcern
	case FlagNeurologicChange:
		return f.NeurologicChange
	case FlagSepsisConcern:
		return f.SepsisConcern
	case FlagLowUrineOutput:
		return f.LowUrineOutput
	case FlagUncontrolledPain:
		return f.UncontrolledPain
	}
	return false
}

// Set asserts the named flag. It reports false for unknown names.
func (f *Flags) Set(name Flag) bool {
	switch name {
	case FlagHemodynamicInstability:
		f.HemodynamicInstability = true
	case FlagRespiratoryConcern:
		f.RespiratoryConcern = true
	case FlagNeurologicChange:
		f.NeurologicChange = true
	case FlagSepsisConcern:
		f.SepsisConcern = true
	case FlagLowUrineOutput:
		f.LowUrineOutput = true
	case FlagUncontrolledPain:
		f.UncontrolledPain = true
	default:
		return false
	}
	return true
}

func knownFlag(name Flag) bool {
	switch name {
	case FlagHemodynamicInstability, FlagRespiratoryConcern, FlagNeurologicChange,
		FlagSepsisConcern, FlagLowUrineOutput, FlagUncontrolledPain:
		return true
	}
	return false
}

// Input is the part of a clinical note the engine reads.
type Input struct {
	Identification string
	Situation      string
	Background     string
	Assessment     string
	Recommendation string
	LabsSummary    string
	ImagingSummary string
	Flags          Flags
}

// Draft is an unpersisted engine output.
type Draft struct {
	Category  Category `json:"category" yaml:"category"`
	Content   string   `json:"content" yaml:"content"`
	Rationale string   `json:"rationale" yaml:"rationale"`
}

// Suggestion is a persisted draft tied to the note that produced it.
type Suggestion struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID string    `db:"patient_id" json:"patient_id"`
	IsbarID   uuid.UUID `db:"isbar_id" json:"isbar_id"`
	CareDay   int       `db:"care_day" json:"care_day"`
	Ordinal   int       `db:"ordinal" json:"ordinal"`
	Category  Category  `db:"category" json:"category"`
	Content   string    `db:"content" json:"content"`
	Rationale string    `db:"rationale" json:"rationale"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
