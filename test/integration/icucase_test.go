//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icu/isbar/internal/domain/deid"
	"github.com/icu/isbar/internal/domain/discharge"
	"github.com/icu/isbar/internal/domain/icucase"
	"github.com/icu/isbar/internal/domain/suggestion"
	"github.com/icu/isbar/internal/platform/cache"
	"github.com/icu/isbar/internal/platform/db"
	"github.com/icu/isbar/internal/platform/textgen"
	"github.com/icu/isbar/internal/seed"
)

func TestMigrations_Idempotent(t *testing.T) {
	pool, schema := newSchema(t)
	ctx := context.Background()
	m := db.NewMigrator(pool, os.DirFS(migrationsDir()))

	applied, err := m.Up(ctx, schema)
	require.NoError(t, err)
	assert.Zero(t, applied)

	statuses, err := m.Status(ctx, schema)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %d not applied", s.Version)
	}
}

func TestCaseLifecycle(t *testing.T) {
	svc, _ := newCaseService(t)
	ctx := context.Background()

	c, err := svc.CreateCase(ctx, icucase.UnitBerhampur, icucase.StatusWatch)
	require.NoError(t, err)
	assert.Regexp(t, `^PT-[0-9A-F]{8}$`, c.ID)
	assert.Equal(t, icucase.DispositionActive, c.Disposition)
	assert.Zero(t, c.LatestCareDay)

	t.Run("notes advance the care day", func(t *testing.T) {
		first, err := svc.AddClinicalNote(ctx, c.ID, note("Settled overnight", suggestion.Flags{}))
		require.NoError(t, err)
		assert.Equal(t, 1, first.Note.CareDay)
		require.Len(t, first.Suggestions, 1, "neutral note yields the fallback draft")

		second, err := svc.AddClinicalNote(ctx, c.ID, note("New spike overnight", suggestion.Flags{SepsisConcern: true}))
		require.NoError(t, err)
		assert.Equal(t, 2, second.Note.CareDay)
		require.Len(t, second.Suggestions, 3)
		for i, s := range second.Suggestions {
			assert.Equal(t, i, s.Ordinal)
			assert.Equal(t, suggestion.StatusPending, s.Status)
		}

		got, err := svc.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.LatestCareDay)
	})

	t.Run("progress upserts per care day", func(t *testing.T) {
		_, err := svc.UpsertDailyProgress(ctx, c.ID, 2, progress("first draft"))
		require.NoError(t, err)
		_, err = svc.UpsertDailyProgress(ctx, c.ID, 2, progress("second draft"))
		require.NoError(t, err)

		_, err = svc.UpsertDailyProgress(ctx, c.ID, 3, progress("future"))
		assert.ErrorIs(t, err, icucase.ErrValidation)

		tl, err := svc.Timeline(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, tl.Progress, 1)
		assert.Equal(t, "second draft", tl.Progress[0].ProgressSummary)
		require.Len(t, tl.Notes, 2)
		assert.Equal(t, 1, tl.Notes[0].CareDay)
	})

	t.Run("addressing is idempotent", func(t *testing.T) {
		detail, err := svc.GetCaseDetail(ctx, c.ID)
		require.NoError(t, err)
		require.NotEmpty(t, detail.Suggestions)
		assert.Equal(t, 2, detail.Notes[0].CareDay)
		assert.Equal(t, 2, detail.Suggestions[0].CareDay)

		target := detail.Suggestions[0].ID
		changed, err := svc.MarkSuggestionAddressed(ctx, c.ID, target)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = svc.MarkSuggestionAddressed(ctx, c.ID, target)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("rounding sheet shows the latest day", func(t *testing.T) {
		sheet, err := svc.RoundingSheet(ctx, icucase.UnitBerhampur)
		require.NoError(t, err)
		require.Len(t, sheet, 1)
		assert.Equal(t, c.ID, sheet[0].PatientID)
		assert.Equal(t, 2, sheet[0].LatestCareDay)
		assert.Len(t, sheet[0].PendingSuggestions, 2)
		for _, s := range sheet[0].PendingSuggestions {
			assert.Equal(t, 2, s.CareDay)
		}

		other, err := svc.RoundingSheet(ctx, icucase.UnitBhubaneswar)
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("closed cases reject writes", func(t *testing.T) {
		require.NoError(t, svc.SetDisposition(ctx, c.ID, icucase.DispositionShiftOut))

		_, err := svc.AddClinicalNote(ctx, c.ID, note("Late entry", suggestion.Flags{}))
		assert.ErrorIs(t, err, icucase.ErrInactiveCase)
		_, err = svc.UpsertDailyProgress(ctx, c.ID, 1, progress("late"))
		assert.ErrorIs(t, err, icucase.ErrInactiveCase)

		// Status remains editable after closure.
		require.NoError(t, svc.SetStatus(ctx, c.ID, icucase.StatusStable))

		active, total, err := svc.ListCases(ctx, icucase.CaseFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, active)

		closed, total, err := svc.ListCases(ctx, icucase.CaseFilter{View: icucase.ViewClosed})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, closed, 1)
		assert.Equal(t, icucase.StatusStable, closed[0].Status)
	})

	t.Run("summary versions increase", func(t *testing.T) {
		v1, err := svc.RecordDischargeSummary(ctx, c.ID, "First summary")
		require.NoError(t, err)
		v2, err := svc.RecordDischargeSummary(ctx, c.ID, "Second summary")
		require.NoError(t, err)
		assert.Equal(t, v1+1, v2)

		got, err := svc.GetCase(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got.DischargeSummaryText)
		assert.Equal(t, "Second summary", *got.DischargeSummaryText)
		assert.Equal(t, v2, got.DischargeSummaryVersion)
	})
}

func TestUnknownCase(t *testing.T) {
	svc, _ := newCaseService(t)
	ctx := context.Background()

	_, err := svc.GetCase(ctx, "PT-00000000")
	assert.ErrorIs(t, err, icucase.ErrNotFound)
	_, err = svc.AddClinicalNote(ctx, "PT-00000000", note("Settled", suggestion.Flags{}))
	assert.ErrorIs(t, err, icucase.ErrNotFound)
}

func TestConcurrentNotesGetDistinctCareDays(t *testing.T) {
	svc, _ := newCaseService(t)
	ctx := context.Background()

	c, err := svc.CreateCase(ctx, icucase.UnitBhubaneswar, icucase.StatusCritical)
	require.NoError(t, err)

	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddClinicalNote(ctx, c.ID, note("Parallel entry", suggestion.Flags{}))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	committed := 0
	for err := range errs {
		if err == nil {
			committed++
			continue
		}
		assert.ErrorIs(t, err, icucase.ErrCareDayConflict)
	}

	tl, err := svc.Timeline(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, tl.Notes, committed)
	for i, n := range tl.Notes {
		assert.Equal(t, i+1, n.CareDay)
	}
	assert.Equal(t, committed, tl.Case.LatestCareDay)
}

func TestRoundingSheetCacheInvalidation(t *testing.T) {
	svc, _ := newCaseService(t)
	svc.SetSheetCache(cache.NewMemory(cache.DefaultTTL))
	ctx := context.Background()

	c, err := svc.CreateCase(ctx, icucase.UnitBerhampur, icucase.StatusWatch)
	require.NoError(t, err)

	sheet, err := svc.RoundingSheet(ctx, "")
	require.NoError(t, err)
	require.Len(t, sheet, 1)
	assert.Zero(t, sheet[0].LatestCareDay)

	_, err = svc.AddClinicalNote(ctx, c.ID, note("Settled", suggestion.Flags{}))
	require.NoError(t, err)

	sheet, err = svc.RoundingSheet(ctx, "")
	require.NoError(t, err)
	require.Len(t, sheet, 1)
	assert.Equal(t, 1, sheet[0].LatestCareDay)
}

type stubGenerator struct {
	text string
	err  error
}

func (g stubGenerator) Generate(context.Context, textgen.Prompt) (string, error) {
	return g.text, g.err
}

func TestDischargeSummary(t *testing.T) {
	svc, _ := newCaseService(t)
	ctx := context.Background()

	c, err := svc.CreateCase(ctx, icucase.UnitBhubaneswar, icucase.StatusWatch)
	require.NoError(t, err)
	_, err = svc.AddClinicalNote(ctx, c.ID, note("Settled", suggestion.Flags{}))
	require.NoError(t, err)

	gen := stubGenerator{text: "Course uneventful. Reviewed by Dr Rao, MRN noted on chart."}
	summaries := discharge.NewService(svc, gen, deid.New(), zerolog.Nop())

	_, err = summaries.RequestSummary(ctx, c.ID)
	assert.ErrorIs(t, err, discharge.ErrSummaryRequiresOutcome)

	require.NoError(t, svc.SetDisposition(ctx, c.ID, icucase.DispositionDischarged))

	sum, err := summaries.RequestSummary(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Version)
	assert.NotContains(t, sum.Text, "MRN")
	assert.Contains(t, sum.Text, deid.RedactionMarker)

	failing := discharge.NewService(svc, stubGenerator{err: errors.New("upstream down")}, deid.New(), zerolog.Nop())
	_, err = failing.RequestSummary(ctx, c.ID)
	assert.ErrorIs(t, err, discharge.ErrGenerationFailed)

	got, err := svc.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DischargeSummaryVersion, "failed generation must not advance the version")
}

func TestSeedDemoData(t *testing.T) {
	svc, _ := newCaseService(t)
	ctx := context.Background()

	ds, err := seed.Demo()
	require.NoError(t, err)
	res, err := seed.Load(ctx, svc, ds, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, res.PatientIDs, len(ds.Cases))

	cases, total, err := svc.ListCases(ctx, icucase.CaseFilter{View: icucase.ViewAll, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, len(ds.Cases), total)
	assert.Len(t, cases, len(ds.Cases))

	sheet, err := svc.RoundingSheet(ctx, "")
	require.NoError(t, err)
	assert.Len(t, sheet, len(ds.Cases))
}
