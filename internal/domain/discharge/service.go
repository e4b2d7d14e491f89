// Package discharge assembles a closed case's timeline and requests a
// discharge or transfer summary from the text generator.
package discharge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/icu/isbar/internal/domain/deid"
	"github.com/icu/isbar/internal/domain/icucase"
	"github.com/icu/isbar/internal/platform/textgen"
)

var (
	ErrSummaryRequiresOutcome  = errors.New("discharge summary requires a final outcome")
	ErrSummaryNoData           = errors.New("no notes or progress recorded for this case")
	ErrGenerationNotConfigured = errors.New("summary generation is not configured")
	ErrGenerationFailed        = errors.New("summary generation failed")
)

// Generator produces text for a prompt. *textgen.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, p textgen.Prompt) (string, error)
}

// CaseStore is the part of the case lifecycle the assembler depends on.
type CaseStore interface {
	Timeline(ctx context.Context, id string) (*icucase.Timeline, error)
	RecordDischargeSummary(ctx context.Context, id string, text string) (int, error)
}

type Service struct {
	cases  CaseStore
	gen    Generator
	guard  *deid.Guard
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(cases CaseStore, gen Generator, guard *deid.Guard, logger zerolog.Logger) *Service {
	return &Service{
		cases:  cases,
		gen:    gen,
		guard:  guard,
		logger: logger.With().Str("component", "discharge").Logger(),
		now:    time.Now,
	}
}

// RequestSummary generates, redacts and stores a summary for a case that has
// left ACTIVE. The stored version advances only when every step succeeds.
func (s *Service) RequestSummary(ctx context.Context, id string) (*Summary, error) {
	tl, err := s.cases.Timeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if tl.Case.Active() {
		return nil, ErrSummaryRequiresOutcome
	}
	if len(tl.Notes) == 0 && len(tl.Progress) == 0 {
		return nil, ErrSummaryNoData
	}

	raw, err := s.gen.Generate(ctx, buildPrompt(BuildPayload(tl)))
	if err != nil {
		if errors.Is(err, textgen.ErrNotConfigured) {
			s.logger.Warn().Err(err).Str("patient_id", id).Msg("summary generation not configured")
			return nil, fmt.Errorf("%w: %w", ErrGenerationNotConfigured, err)
		}
		s.logger.Error().Err(err).Str("patient_id", id).Msg("summary generation failed")
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	text := s.guard.Redact(raw)
	if strings.TrimSpace(text) == "" {
		s.logger.Error().Str("patient_id", id).Msg("summary empty after redaction")
		return nil, fmt.Errorf("%w: empty output", ErrGenerationFailed)
	}

	version, err := s.cases.RecordDischargeSummary(ctx, id, text)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient_id", id).
		Int("version", version).
		Int("notes", len(tl.Notes)).
		Int("progress", len(tl.Progress)).
		Msg("discharge summary generated")

	return &Summary{
		PatientID:   id,
		Text:        text,
		Version:     version,
		GeneratedAt: s.now().UTC(),
	}, nil
}
