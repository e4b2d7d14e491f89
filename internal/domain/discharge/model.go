package discharge

import (
	"time"

	"github.com/icu/isbar/internal/domain/icucase"
)

// Summary is the outcome of one successful summary request.
type Summary struct {
	PatientID   string    `json:"patient_id"`
	Text        string    `json:"discharge_summary_text"`
	Version     int       `json:"discharge_summary_version"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Payload is the structured, de-identified timeline handed to the generator.
type Payload struct {
	PatientID             string              `json:"patient_id"`
	Unit                  icucase.Unit        `json:"unit"`
	FinalOutcome          icucase.Disposition `json:"final_outcome"`
	FinalStatus           icucase.Status      `json:"final_status"`
	LatestCareDay         int                 `json:"latest_care_day"`
	IsbarTimeline         []IsbarSnapshot     `json:"isbar_timeline"`
	DailyProgressTimeline []ProgressSnapshot  `json:"daily_progress_timeline"`
}

type IsbarSnapshot struct {
	CareDay        int    `json:"care_day"`
	Identification string `json:"identification"`
	Situation      string `json:"situation"`
	Background     string `json:"background"`
	Assessment     string `json:"assessment"`
	Recommendation string `json:"recommendation"`
	LabsSummary    string `json:"labs_summary"`
	ImagingSummary string `json:"imaging_summary"`
}

type ProgressSnapshot struct {
	CareDay         int    `json:"care_day"`
	ProgressSummary string `json:"progress_summary"`
	KeyEvents       string `json:"key_events"`
	CurrentSupports string `json:"current_supports"`
	PendingIssues   string `json:"pending_issues"`
	NextPlan        string `json:"next_plan"`
}

// BuildPayload flattens a timeline into the generator payload. Notes and
// progress keep the ascending care-day order of the timeline.
func BuildPayload(tl *icucase.Timeline) Payload {
	p := Payload{
		PatientID:             tl.Case.ID,
		Unit:                  tl.Case.Unit,
		FinalOutcome:          tl.Case.Disposition,
		FinalStatus:           tl.Case.Status,
		LatestCareDay:         tl.Case.LatestCareDay,
		IsbarTimeline:         make([]IsbarSnapshot, 0, len(tl.Notes)),
		DailyProgressTimeline: make([]ProgressSnapshot, 0, len(tl.Progress)),
	}
	for _, n := range tl.Notes {
		p.IsbarTimeline = append(p.IsbarTimeline, IsbarSnapshot{
			CareDay:        n.CareDay,
			Identification: n.Identification,
			Situation:      n.Situation,
			Background:     n.Background,
			Assessment:     n.Assessment,
			Recommendation: n.Recommendation,
			LabsSummary:    n.LabsSummary,
			ImagingSummary: n.ImagingSummary,
		})
	}
	for _, d := range tl.Progress {
		p.DailyProgressTimeline = append(p.DailyProgressTimeline, ProgressSnapshot{
			CareDay:         d.CareDay,
			ProgressSummary: d.ProgressSummary,
			KeyEvents:       d.KeyEvents,
			CurrentSupports: d.CurrentSupports,
			PendingIssues:   d.PendingIssues,
			NextPlan:        d.NextPlan,
		})
	}
	return p
}
