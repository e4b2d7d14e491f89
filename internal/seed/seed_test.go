package seed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icu/isbar/internal/domain/deid"
	"github.com/icu/isbar/internal/domain/icucase"
	"github.com/icu/isbar/internal/domain/suggestion"
)

type progressCall struct {
	id      string
	careDay int
	in      icucase.ProgressInput
}

type fakeWriter struct {
	cases    []*icucase.Case
	notes    map[string][]icucase.NoteInput
	progress []progressCall
	failNote bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{notes: make(map[string][]icucase.NoteInput)}
}

func (f *fakeWriter) CreateCase(_ context.Context, unit icucase.Unit, status icucase.Status) (*icucase.Case, error) {
	c := &icucase.Case{
		ID:          fmt.Sprintf("PT-%08X", len(f.cases)+1),
		Unit:        unit,
		Status:      status,
		Disposition: icucase.DispositionActive,
	}
	f.cases = append(f.cases, c)
	return c, nil
}

func (f *fakeWriter) AddClinicalNote(_ context.Context, id string, in icucase.NoteInput) (*icucase.NoteResult, error) {
	if f.failNote {
		return nil, errors.New("storage unavailable")
	}
	f.notes[id] = append(f.notes[id], in)
	return &icucase.NoteResult{
		Note:        &icucase.Note{PatientID: id, CareDay: len(f.notes[id])},
		Suggestions: []*suggestion.Suggestion{{PatientID: id}},
	}, nil
}

func (f *fakeWriter) UpsertDailyProgress(_ context.Context, id string, careDay int, in icucase.ProgressInput) (*icucase.DailyProgress, error) {
	f.progress = append(f.progress, progressCall{id: id, careDay: careDay, in: in})
	return &icucase.DailyProgress{PatientID: id, CareDay: careDay}, nil
}

func TestDemo_Parses(t *testing.T) {
	ds, err := Demo()
	require.NoError(t, err)
	require.Len(t, ds.Cases, 6)

	units := map[icucase.Unit]int{}
	for _, c := range ds.Cases {
		units[c.Unit]++
	}
	assert.Equal(t, 3, units[icucase.UnitBhubaneswar])
	assert.Equal(t, 3, units[icucase.UnitBerhampur])
}

func TestDemo_PassesDeidentificationGuard(t *testing.T) {
	ds, err := Demo()
	require.NoError(t, err)
	guard := deid.New()

	for i, c := range ds.Cases {
		for j, d := range c.Days {
			res := guard.Scan(d.Identification, d.Situation, d.Background, d.Assessment,
				d.Recommendation, d.LabsSummary, d.ImagingSummary)
			assert.False(t, res.Blocked, "case %d day %d blocked: %v", i, j+1, res.Reasons)
		}
	}
}

func TestDemo_FlagsDriveEngine(t *testing.T) {
	ds, err := Demo()
	require.NoError(t, err)
	engine, err := suggestion.NewDefaultEngine()
	require.NoError(t, err)

	in := ds.Cases[1].Days[0].NoteInput()
	assert.True(t, in.Flags.HemodynamicInstability)
	assert.True(t, in.Flags.SepsisConcern)
	assert.True(t, in.Flags.LowUrineOutput)

	drafts := engine.Propose(suggestion.Input{
		Identification: in.Identification,
		Situation:      in.Situation,
		Background:     in.Background,
		Assessment:     in.Assessment,
		Recommendation: in.Recommendation,
		LabsSummary:    in.LabsSummary,
		ImagingSummary: in.ImagingSummary,
		Flags:          in.Flags,
	})
	assert.Greater(t, len(drafts), 3)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad unit", "cases:\n  - {unit: PURI, status: WATCH, days: [{situation: s}]}\n", "unknown unit"},
		{"bad status", "cases:\n  - {unit: BERHAMPUR, status: GRAVE, days: [{situation: s}]}\n", "unknown status"},
		{"no days", "cases:\n  - {unit: BERHAMPUR, status: WATCH}\n", "no care days"},
		{"bad flag", "cases:\n  - {unit: BERHAMPUR, status: WATCH, days: [{flags: [fainting]}]}\n", "unknown flag"},
		{"malformed", "cases: [", "parse seed data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDay_ProgressInput(t *testing.T) {
	d := Day{
		Situation:      "situation",
		Assessment:     "assessment",
		Recommendation: "recommendation",
		LabsSummary:    "labs",
	}
	assert.Equal(t, icucase.ProgressInput{
		ProgressSummary: "assessment",
		KeyEvents:       "situation",
		CurrentSupports: "recommendation",
		PendingIssues:   "labs",
		NextPlan:        "recommendation",
	}, d.ProgressInput())
}

func TestLoad_WritesEveryCareDay(t *testing.T) {
	ds, err := Demo()
	require.NoError(t, err)
	w := newFakeWriter()

	res, err := Load(context.Background(), w, ds, zerolog.Nop())
	require.NoError(t, err)

	totalDays := 0
	for _, c := range ds.Cases {
		totalDays += len(c.Days)
	}
	assert.Len(t, res.PatientIDs, len(ds.Cases))
	assert.Equal(t, totalDays, res.Notes)
	assert.Equal(t, totalDays, res.Suggestions)
	require.Len(t, w.progress, totalDays)

	// The first case has two care days; progress follows each note's day.
	assert.Equal(t, "PT-00000001", w.progress[0].id)
	assert.Equal(t, 1, w.progress[0].careDay)
	assert.Equal(t, 2, w.progress[1].careDay)
	assert.Equal(t, ds.Cases[0].Days[1].Assessment, w.progress[1].in.ProgressSummary)
}

func TestLoad_StopsOnFailure(t *testing.T) {
	ds, err := Demo()
	require.NoError(t, err)
	w := newFakeWriter()
	w.failNote = true

	res, err := Load(context.Background(), w, ds, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage unavailable")
	assert.Len(t, res.PatientIDs, 1)
	assert.Empty(t, w.progress)
}
