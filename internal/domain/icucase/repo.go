package icucase

import (
	"context"

	"github.com/google/uuid"

	"github.com/icu/isbar/internal/domain/suggestion"
)

// Repository persists cases and their history. Missing cases are reported as
// ErrNotFound. Methods run inside the caller's transaction when one is
// carried on the context.
type Repository interface {
	// CreateCase returns errCaseIDTaken when the id is already in use.
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id string) (*Case, error)
	// GetCaseForUpdate locks the case row until the transaction ends.
	GetCaseForUpdate(ctx context.Context, id string) (*Case, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateDisposition(ctx context.Context, id string, d Disposition) error
	// AdvanceCareDay moves latest_care_day from careDay-1 to careDay, or
	// returns ErrCareDayConflict.
	AdvanceCareDay(ctx context.Context, id string, careDay int) error
	// RecordSummary stores text and returns the incremented version.
	RecordSummary(ctx context.Context, id string, text string) (int, error)

	// InsertNote returns ErrCareDayConflict when the care day already exists.
	InsertNote(ctx context.Context, n *Note) error
	ListNotes(ctx context.Context, patientID string) ([]*Note, error)

	InsertSuggestions(ctx context.Context, s []*suggestion.Suggestion) error
	ListSuggestions(ctx context.Context, patientID string) ([]*suggestion.Suggestion, error)
	// MarkAddressed flips a PENDING suggestion of the case to ADDRESSED and
	// reports whether a row changed.
	MarkAddressed(ctx context.Context, patientID string, suggestionID uuid.UUID) (bool, error)

	UpsertProgress(ctx context.Context, p *DailyProgress) error
	ListProgress(ctx context.Context, patientID string) ([]*DailyProgress, error)

	ListCases(ctx context.Context, f CaseFilter) ([]*CaseSummary, int, error)
	// RoundingSheet returns ACTIVE cases of unit, or of every unit when unit
	// is empty, ordered by unit then id.
	RoundingSheet(ctx context.Context, unit Unit) ([]*RoundingEntry, error)
}

// TxRunner runs fn in a transaction carried on the context.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SheetCache stores rounding sheet snapshots. Errors are advisory: the
// service falls back to the repository and logs them.
//
// Snapshots belong to a generation. Flush advances it, after which reads
// and writes made under an older generation miss or are dropped, so a
// sheet read before a mutation commits is never served after it.
type SheetCache interface {
	Generation(ctx context.Context) (uint64, error)
	Get(ctx context.Context, gen uint64, key string, dst any) (bool, error)
	Put(ctx context.Context, gen uint64, key string, v any) error
	Flush(ctx context.Context) error
}
