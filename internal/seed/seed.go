// Package seed loads the de-identified demo cases through the case service,
// so every note passes the same guard and rule engine as live traffic.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/icu/isbar/internal/domain/icucase"
	"github.com/icu/isbar/internal/domain/suggestion"
)

//go:embed demo.yaml
var demoData []byte

// Day is one care day of a demo case: the ISBAR note plus its risk flags.
type Day struct {
	Identification string            `yaml:"identification"`
	Situation      string            `yaml:"situation"`
	Background     string            `yaml:"background"`
	Assessment     string            `yaml:"assessment"`
	Recommendation string            `yaml:"recommendation"`
	LabsSummary    string            `yaml:"labs_summary"`
	ImagingSummary string            `yaml:"imaging_summary"`
	Flags          []suggestion.Flag `yaml:"flags"`
}

type Case struct {
	Unit   icucase.Unit   `yaml:"unit"`
	Status icucase.Status `yaml:"status"`
	Days   []Day          `yaml:"days"`
}

type Dataset struct {
	Cases []Case `yaml:"cases"`
}

// CaseWriter is the subset of icucase.Service the loader drives.
type CaseWriter interface {
	CreateCase(ctx context.Context, unit icucase.Unit, status icucase.Status) (*icucase.Case, error)
	AddClinicalNote(ctx context.Context, id string, in icucase.NoteInput) (*icucase.NoteResult, error)
	UpsertDailyProgress(ctx context.Context, id string, careDay int, in icucase.ProgressInput) (*icucase.DailyProgress, error)
}

// Demo returns the embedded demo dataset.
func Demo() (*Dataset, error) {
	return Parse(demoData)
}

func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse seed data: %w", err)
	}
	for i, c := range ds.Cases {
		if !c.Unit.Valid() {
			return nil, fmt.Errorf("seed case %d: unknown unit %q", i, c.Unit)
		}
		if !c.Status.Valid() {
			return nil, fmt.Errorf("seed case %d: unknown status %q", i, c.Status)
		}
		if len(c.Days) == 0 {
			return nil, fmt.Errorf("seed case %d: no care days", i)
		}
		for j, d := range c.Days {
			var f suggestion.Flags
			for _, name := range d.Flags {
				if !f.Set(name) {
					return nil, fmt.Errorf("seed case %d day %d: unknown flag %q", i, j+1, name)
				}
			}
		}
	}
	return &ds, nil
}

// NoteInput converts d into a note submission.
func (d Day) NoteInput() icucase.NoteInput {
	in := icucase.NoteInput{
		Identification: d.Identification,
		Situation:      d.Situation,
		Background:     d.Background,
		Assessment:     d.Assessment,
		Recommendation: d.Recommendation,
		LabsSummary:    d.LabsSummary,
		ImagingSummary: d.ImagingSummary,
	}
	for _, name := range d.Flags {
		in.Flags.Set(name)
	}
	return in
}

// ProgressInput derives the daily progress note from the same care day.
func (d Day) ProgressInput() icucase.ProgressInput {
	return icucase.ProgressInput{
		ProgressSummary: d.Assessment,
		KeyEvents:       d.Situation,
		CurrentSupports: d.Recommendation,
		PendingIssues:   d.LabsSummary,
		NextPlan:        d.Recommendation,
	}
}

// Result summarises one Load run.
type Result struct {
	PatientIDs  []string
	Notes       int
	Suggestions int
}

// Load creates every case in ds, then writes its notes and progress day by
// day. It stops at the first failure; cases created before it remain.
func Load(ctx context.Context, w CaseWriter, ds *Dataset, logger zerolog.Logger) (*Result, error) {
	log := logger.With().Str("component", "seed").Logger()
	res := &Result{}

	for i, sc := range ds.Cases {
		c, err := w.CreateCase(ctx, sc.Unit, sc.Status)
		if err != nil {
			return res, fmt.Errorf("seed case %d: %w", i, err)
		}
		res.PatientIDs = append(res.PatientIDs, c.ID)

		for _, day := range sc.Days {
			nr, err := w.AddClinicalNote(ctx, c.ID, day.NoteInput())
			if err != nil {
				return res, fmt.Errorf("seed case %s note: %w", c.ID, err)
			}
			if _, err := w.UpsertDailyProgress(ctx, c.ID, nr.Note.CareDay, day.ProgressInput()); err != nil {
				return res, fmt.Errorf("seed case %s progress day %d: %w", c.ID, nr.Note.CareDay, err)
			}
			res.Notes++
			res.Suggestions += len(nr.Suggestions)
		}

		log.Info().
			Str("patient_id", c.ID).
			Str("unit", string(sc.Unit)).
			Int("care_days", len(sc.Days)).
			Msg("seeded case")
	}
	return res, nil
}
