// Package icucase owns the ICU patient case: its status and disposition, the
// append-only ISBAR notes with their suggestions, daily progress notes and
// the stored discharge summary.
package icucase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/icu/isbar/internal/domain/deid"
	"github.com/icu/isbar/internal/domain/suggestion"
)

const (
	idAttempts       = 8
	defaultListLimit = 20
	maxListLimit     = 100
	sheetKeyAllUnits = "all"
)

type Service struct {
	repo   Repository
	tx     TxRunner
	guard  *deid.Guard
	engine *suggestion.Engine
	cache  SheetCache
	logger zerolog.Logger
	newID  func() (string, error)
}

func NewService(repo Repository, tx TxRunner, guard *deid.Guard, engine *suggestion.Engine, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		guard:  guard,
		engine: engine,
		logger: logger.With().Str("component", "icucase").Logger(),
		newID:  NewPatientID,
	}
}

// SetSheetCache attaches an optional rounding sheet cache.
func (s *Service) SetSheetCache(c SheetCache) {
	s.cache = c
}

// NewPatientID returns "PT-" followed by 8 upper-case hex characters.
func NewPatientID() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return "PT-" + strings.ToUpper(hex.EncodeToString(b[:])), nil
}

func (s *Service) CreateCase(ctx context.Context, unit Unit, status Status) (*Case, error) {
	var invalid []string
	if !unit.Valid() {
		invalid = append(invalid, "unit")
	}
	if !status.Valid() {
		invalid = append(invalid, "status")
	}
	if len(invalid) > 0 {
		return nil, &ValidationError{Fields: invalid, Reason: "invalid value"}
	}

	for attempt := 0; attempt < idAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, err
		}
		c := &Case{
			ID:          id,
			Unit:        unit,
			Status:      status,
			Disposition: DispositionActive,
		}
		err = s.repo.CreateCase(ctx, c)
		if errors.Is(err, errCaseIDTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.invalidate(ctx)
		s.logger.Info().Str("patient_id", c.ID).Str("unit", string(unit)).Msg("case created")
		return c, nil
	}
	return nil, ErrIdentifierExhausted
}

func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return &ValidationError{Fields: []string{"status"}, Reason: "invalid value"}
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) SetDisposition(ctx context.Context, id string, d Disposition) error {
	if !d.Valid() {
		return &ValidationError{Fields: []string{"disposition"}, Reason: "invalid value"}
	}
	c, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(c.Disposition, d) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.Disposition, d)
	}
	if err := s.repo.UpdateDisposition(ctx, id, d); err != nil {
		return err
	}

	s.invalidate(ctx)
	s.logger.Info().Str("patient_id", id).
		Str("from", string(c.Disposition)).Str("to", string(d)).
		Msg("disposition changed")
	return nil
}

// AddClinicalNote validates and screens a note, derives its suggestions and
// commits note, suggestions and the care day counter together.
func (s *Service) AddClinicalNote(ctx context.Context, id string, in NoteInput) (*NoteResult, error) {
	c, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Active() {
		return nil, ErrInactiveCase
	}

	if verr := trimRequired(
		requiredField{"identification", &in.Identification},
		requiredField{"situation", &in.Situation},
		requiredField{"background", &in.Background},
		requiredField{"assessment", &in.Assessment},
		requiredField{"recommendation", &in.Recommendation},
		requiredField{"labs_summary", &in.LabsSummary},
		requiredField{"imaging_summary", &in.ImagingSummary},
	); verr != nil {
		return nil, verr
	}

	if res := s.guard.Scan(
		in.Identification, in.Situation, in.Background, in.Assessment,
		in.Recommendation, in.LabsSummary, in.ImagingSummary,
	); res.Blocked {
		s.logger.Info().Str("patient_id", id).Strs("reasons", res.Reasons).Msg("note blocked by de-identification guard")
		return nil, &DeidBlockedError{Reasons: res.Reasons}
	}

	drafts := s.engine.Propose(suggestion.Input{
		Identification: in.Identification,
		Situation:      in.Situation,
		Background:     in.Background,
		Assessment:     in.Assessment,
		Recommendation: in.Recommendation,
		LabsSummary:    in.LabsSummary,
		ImagingSummary: in.ImagingSummary,
		Flags:          in.Flags,
	})

	var result *NoteResult
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.repo.GetCaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !locked.Active() {
			return ErrInactiveCase
		}

		careDay := locked.LatestCareDay + 1
		note := &Note{
			ID:             uuid.New(),
			PatientID:      id,
			CareDay:        careDay,
			Identification: in.Identification,
			Situation:      in.Situation,
			Background:     in.Background,
			Assessment:     in.Assessment,
			Recommendation: in.Recommendation,
			LabsSummary:    in.LabsSummary,
			ImagingSummary: in.ImagingSummary,
			Flags:          in.Flags,
		}
		if err := s.repo.InsertNote(ctx, note); err != nil {
			return err
		}

		items := make([]*suggestion.Suggestion, 0, len(drafts))
		for i, d := range drafts {
			items = append(items, &suggestion.Suggestion{
				ID:        uuid.New(),
				PatientID: id,
				IsbarID:   note.ID,
				CareDay:   careDay,
				Ordinal:   i,
				Category:  d.Category,
				Content:   d.Content,
				Rationale: d.Rationale,
				Status:    suggestion.StatusPending,
			})
		}
		if err := s.repo.InsertSuggestions(ctx, items); err != nil {
			return err
		}
		if err := s.repo.AdvanceCareDay(ctx, id, careDay); err != nil {
			return err
		}

		result = &NoteResult{Note: note, Suggestions: items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info().Str("patient_id", id).
		Int("care_day", result.Note.CareDay).
		Int("suggestions", len(result.Suggestions)).
		Msg("clinical note committed")
	return result, nil
}

// UpsertDailyProgress writes the progress note for careDay, which must lie in
// [1, max(1, latest care day)].
func (s *Service) UpsertDailyProgress(ctx context.Context, id string, careDay int, in ProgressInput) (*DailyProgress, error) {
	c, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Active() {
		return nil, ErrInactiveCase
	}
	if verr := checkCareDay(careDay, c.LatestCareDay); verr != nil {
		return nil, verr
	}

	if verr := trimRequired(
		requiredField{"progress_summary", &in.ProgressSummary},
		requiredField{"key_events", &in.KeyEvents},
		requiredField{"current_supports", &in.CurrentSupports},
		requiredField{"pending_issues", &in.PendingIssues},
		requiredField{"next_plan", &in.NextPlan},
	); verr != nil {
		return nil, verr
	}

	if res := s.guard.Scan(
		in.ProgressSummary, in.KeyEvents, in.CurrentSupports, in.PendingIssues, in.NextPlan,
	); res.Blocked {
		s.logger.Info().Str("patient_id", id).Strs("reasons", res.Reasons).Msg("progress blocked by de-identification guard")
		return nil, &DeidBlockedError{Reasons: res.Reasons}
	}

	p := &DailyProgress{
		ID:              uuid.New(),
		PatientID:       id,
		CareDay:         careDay,
		ProgressSummary: in.ProgressSummary,
		KeyEvents:       in.KeyEvents,
		CurrentSupports: in.CurrentSupports,
		PendingIssues:   in.PendingIssues,
		NextPlan:        in.NextPlan,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.repo.GetCaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !locked.Active() {
			return ErrInactiveCase
		}
		if verr := checkCareDay(careDay, locked.LatestCareDay); verr != nil {
			return verr
		}
		return s.repo.UpsertProgress(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info().Str("patient_id", id).Int("care_day", careDay).Msg("daily progress saved")
	return p, nil
}

func checkCareDay(careDay, latest int) *ValidationError {
	upper := max(1, latest)
	if careDay < 1 || careDay > upper {
		return &ValidationError{
			Fields: []string{"care_day"},
			Reason: fmt.Sprintf("must be between 1 and %d", upper),
		}
	}
	return nil
}

// MarkSuggestionAddressed flips a PENDING suggestion of the case to
// ADDRESSED. It reports false, without error, when nothing matched.
func (s *Service) MarkSuggestionAddressed(ctx context.Context, id string, suggestionID uuid.UUID) (bool, error) {
	if _, err := s.repo.GetCase(ctx, id); err != nil {
		return false, err
	}
	changed, err := s.repo.MarkAddressed(ctx, id, suggestionID)
	if err != nil {
		return false, err
	}
	if changed {
		s.invalidate(ctx)
	}
	return changed, nil
}

// RecordDischargeSummary stores generated, redacted summary text and returns
// the new summary version.
func (s *Service) RecordDischargeSummary(ctx context.Context, id string, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, &ValidationError{Fields: []string{"discharge_summary_text"}, Reason: "required"}
	}
	version, err := s.repo.RecordSummary(ctx, id, text)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("patient_id", id).Int("version", version).Msg("discharge summary stored")
	return version, nil
}

func (s *Service) GetCase(ctx context.Context, id string) (*Case, error) {
	return s.repo.GetCase(ctx, id)
}

// GetCaseDetail returns the case with its history, newest care day first.
func (s *Service) GetCaseDetail(ctx context.Context, id string) (*CaseDetail, error) {
	c, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	notes, err := s.repo.ListNotes(ctx, id)
	if err != nil {
		return nil, err
	}
	suggestions, err := s.repo.ListSuggestions(ctx, id)
	if err != nil {
		return nil, err
	}
	progress, err := s.repo.ListProgress(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CaseDetail{
		Case:        c,
		Notes:       reversed(notes),
		Suggestions: newestDayFirst(suggestions),
		Progress:    reversed(progress),
	}, nil
}

// Timeline returns the case with its history, oldest care day first.
func (s *Service) Timeline(ctx context.Context, id string) (*Timeline, error) {
	c, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	notes, err := s.repo.ListNotes(ctx, id)
	if err != nil {
		return nil, err
	}
	progress, err := s.repo.ListProgress(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Timeline{Case: c, Notes: notes, Progress: progress}, nil
}

func (s *Service) ListCases(ctx context.Context, f CaseFilter) ([]*CaseSummary, int, error) {
	if f.Unit != "" && !f.Unit.Valid() {
		return nil, 0, &ValidationError{Fields: []string{"unit"}, Reason: "invalid value"}
	}
	if f.View == "" {
		f.View = ViewActive
	}
	if !f.View.Valid() {
		return nil, 0, &ValidationError{Fields: []string{"view"}, Reason: "invalid value"}
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListCases(ctx, f)
}

// RoundingSheet lists ACTIVE cases with the latest recommendation and the
// pending suggestions of the latest care day. An empty unit means all units.
func (s *Service) RoundingSheet(ctx context.Context, unit Unit) ([]*RoundingEntry, error) {
	if unit != "" && !unit.Valid() {
		return nil, &ValidationError{Fields: []string{"unit"}, Reason: "invalid value"}
	}

	key := sheetKeyAllUnits
	if unit != "" {
		key = string(unit)
	}

	cache, gen := s.sheetGeneration(ctx)
	if cache != nil {
		var cached []*RoundingEntry
		hit, err := cache.Get(ctx, gen, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("rounding cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	entries, err := s.repo.RoundingSheet(ctx, unit)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if err := cache.Put(ctx, gen, key, entries); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("rounding cache write failed")
		}
	}
	return entries, nil
}

// sheetGeneration returns the cache and its current generation, or a nil
// cache when the generation cannot be read.
func (s *Service) sheetGeneration(ctx context.Context) (SheetCache, uint64) {
	if s.cache == nil {
		return nil, 0
	}
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rounding cache generation read failed")
		return nil, 0
	}
	return s.cache, gen
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Flush(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("rounding cache flush failed")
	}
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

// newestDayFirst orders suggestions by care day descending while keeping
// each note's batch in its original order.
func newestDayFirst(in []*suggestion.Suggestion) []*suggestion.Suggestion {
	out := make([]*suggestion.Suggestion, 0, len(in))
	for end := len(in); end > 0; {
		start := end - 1
		for start > 0 && in[start-1].CareDay == in[end-1].CareDay {
			start--
		}
		out = append(out, in[start:end]...)
		end = start
	}
	return out
}
