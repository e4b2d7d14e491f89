package icucase

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/icu/isbar/internal/domain/suggestion"
)

// Unit is the ICU a case belongs to.
type Unit string

const (
	UnitBhubaneswar Unit = "BHUBANESWAR"
	UnitBerhampur   Unit = "BERHAMPUR"
)

// Units lists every unit in display order.
var Units = []Unit{UnitBhubaneswar, UnitBerhampur}

func (u Unit) Valid() bool {
	return slices.Contains(Units, u)
}

// Status is the clinical acuity label. It can change at any time.
type Status string

const (
	StatusStable   Status = "STABLE"
	StatusWatch    Status = "WATCH"
	StatusCritical Status = "CRITICAL"
)

func (s Status) Valid() bool {
	return s == StatusStable || s == StatusWatch || s == StatusCritical
}

// Disposition is the administrative outcome. Only ACTIVE cases accept notes.
type Disposition string

const (
	DispositionActive     Disposition = "ACTIVE"
	DispositionDischarged Disposition = "DISCHARGED"
	DispositionShiftOut   Disposition = "SHIFT_OUT"
	DispositionDAMA       Disposition = "DAMA"
	DispositionDeath      Disposition = "DEATH"
)

var allDispositions = []Disposition{
	DispositionActive,
	DispositionDischarged,
	DispositionShiftOut,
	DispositionDAMA,
	DispositionDeath,
}

func (d Disposition) Valid() bool {
	for _, v := range allDispositions {
		if d == v {
			return true
		}
	}
	return false
}

// dispositionTransitions lists the allowed targets for each disposition.
// Every pair is currently allowed, including reopening a closed case.
var dispositionTransitions = func() map[Disposition]map[Disposition]bool {
	t := make(map[Disposition]map[Disposition]bool, len(allDispositions))
	for _, from := range allDispositions {
		t[from] = make(map[Disposition]bool, len(allDispositions))
		for _, to := range allDispositions {
			t[from][to] = true
		}
	}
	return t
}()

// CanTransition reports whether a case may move from one disposition to another.
func CanTransition(from, to Disposition) bool {
	return dispositionTransitions[from][to]
}

// View selects cases by disposition group in listings.
type View string

const (
	ViewActive View = "ACTIVE"
	ViewClosed View = "CLOSED"
	ViewAll    View = "ALL"
)

func (v View) Valid() bool {
	return v == ViewActive || v == ViewClosed || v == ViewAll
}

// Case is the patient aggregate. Its id is random and carries no real-world
// identifier.
type Case struct {
	ID                      string      `db:"id" json:"id"`
	Unit                    Unit        `db:"unit" json:"unit"`
	Status                  Status      `db:"status" json:"status"`
	Disposition             Disposition `db:"disposition" json:"disposition"`
	LatestCareDay           int         `db:"latest_care_day" json:"latest_care_day"`
	DischargeSummaryText    *string     `db:"discharge_summary_text" json:"discharge_summary_text,omitempty"`
	DischargeSummaryVersion int         `db:"discharge_summary_version" json:"discharge_summary_version"`
	CreatedAt               time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time   `db:"updated_at" json:"updated_at"`
}

func (c *Case) Active() bool {
	return c.Disposition == DispositionActive
}

// NoteInput is a submitted ISBAR note.
type NoteInput struct {
	Identification string `json:"identification"`
	Situation      string `json:"situation"`
	Background     string `json:"background"`
	Assessment     string `json:"assessment"`
	Recommendation string `json:"recommendation"`
	LabsSummary    string `json:"labs_summary"`
	ImagingSummary string `json:"imaging_summary"`
	suggestion.Flags
}

// Note is a committed ISBAR entry. Notes are never edited.
type Note struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      string    `db:"patient_id" json:"patient_id"`
	CareDay        int       `db:"care_day" json:"care_day"`
	Identification string    `db:"identification" json:"identification"`
	Situation      string    `db:"situation" json:"situation"`
	Background     string    `db:"background" json:"background"`
	Assessment     string    `db:"assessment" json:"assessment"`
	Recommendation string    `db:"recommendation" json:"recommendation"`
	LabsSummary    string    `db:"labs_summary" json:"labs_summary"`
	ImagingSummary string    `db:"imaging_summary" json:"imaging_summary"`
	suggestion.Flags
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NoteResult is what AddClinicalNote commits.
type NoteResult struct {
	Note        *Note                    `json:"note"`
	Suggestions []*suggestion.Suggestion `json:"suggestions"`
}

// ProgressInput is a submitted daily progress note.
type ProgressInput struct {
	ProgressSummary string `json:"progress_summary"`
	KeyEvents       string `json:"key_events"`
	CurrentSupports string `json:"current_supports"`
	PendingIssues   string `json:"pending_issues"`
	NextPlan        string `json:"next_plan"`
}

// DailyProgress is keyed by (patient_id, care_day) and may be overwritten.
type DailyProgress struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PatientID       string    `db:"patient_id" json:"patient_id"`
	CareDay         int       `db:"care_day" json:"care_day"`
	ProgressSummary string    `db:"progress_summary" json:"progress_summary"`
	KeyEvents       string    `db:"key_events" json:"key_events"`
	CurrentSupports string    `db:"current_supports" json:"current_supports"`
	PendingIssues   string    `db:"pending_issues" json:"pending_issues"`
	NextPlan        string    `db:"next_plan" json:"next_plan"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CaseDetail is a case with its history, newest care day first.
type CaseDetail struct {
	Case        *Case                    `json:"case"`
	Notes       []*Note                  `json:"notes"`
	Suggestions []*suggestion.Suggestion `json:"suggestions"`
	Progress    []*DailyProgress         `json:"progress"`
}

// Timeline is a case with its history, oldest care day first.
type Timeline struct {
	Case     *Case            `json:"case"`
	Notes    []*Note          `json:"notes"`
	Progress []*DailyProgress `json:"progress"`
}

// CaseFilter narrows ListCases. Zero values mean all units and the ACTIVE view.
type CaseFilter struct {
	Unit   Unit
	View   View
	Limit  int
	Offset int
}

// CaseSummary is one row of the case list.
type CaseSummary struct {
	Case
	LatestNoteCareDay    *int    `db:"latest_note_care_day" json:"latest_note_care_day,omitempty"`
	LatestRecommendation *string `db:"latest_recommendation" json:"latest_recommendation,omitempty"`
	PendingSuggestions   int     `db:"pending_suggestions" json:"pending_suggestions"`
}

// RoundingEntry is one ACTIVE case on the rounding sheet.
type RoundingEntry struct {
	PatientID            string                   `json:"patient_id"`
	Unit                 Unit                     `json:"unit"`
	Status               Status                   `json:"status"`
	LatestCareDay        int                      `json:"latest_care_day"`
	LatestRecommendation *string                  `json:"latest_recommendation,omitempty"`
	PendingSuggestions   []*suggestion.Suggestion `json:"pending_suggestions"`
}
