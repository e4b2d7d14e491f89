package icucase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icu/isbar/internal/domain/suggestion"
	"github.com/icu/isbar/internal/platform/db"
)

const pgUniqueViolation = "23505"

// errCaseIDTaken signals an id collision so CreateCase callers can retry.
var errCaseIDTaken = errors.New("patient id already in use")

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// -- Cases --

const caseCols = `id, unit, status, disposition, latest_care_day,
	discharge_summary_text, discharge_summary_version, created_at, updated_at`

func (r *repoPG) CreateCase(ctx context.Context, c *Case) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_case (id, unit, status, disposition, latest_care_day, discharge_summary_version)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING created_at, updated_at`,
		c.ID, c.Unit, c.Status, c.Disposition, c.LatestCareDay,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return errCaseIDTaken
	}
	return err
}

func (r *repoPG) GetCase(ctx context.Context, id string) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM patient_case WHERE id = $1`, id))
}

func (r *repoPG) GetCaseForUpdate(ctx context.Context, id string) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM patient_case WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient_case SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateDisposition(ctx context.Context, id string, d Disposition) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient_case SET disposition = $2, updated_at = NOW() WHERE id = $1`, id, d)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AdvanceCareDay(ctx context.Context, id string, careDay int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_case SET latest_care_day = $2, updated_at = NOW()
		WHERE id = $1 AND latest_care_day = $2 - 1`, id, careDay)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCareDayConflict
	}
	return nil
}

func (r *repoPG) RecordSummary(ctx context.Context, id string, text string) (int, error) {
	var version int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient_case
		SET discharge_summary_text = $2,
		    discharge_summary_version = discharge_summary_version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING discharge_summary_version`, id, text).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return version, err
}

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(
		&c.ID, &c.Unit, &c.Status, &c.Disposition, &c.LatestCareDay,
		&c.DischargeSummaryText, &c.DischargeSummaryVersion, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// -- Notes --

const noteCols = `id, patient_id, care_day, identification, situation, background,
	assessment, recommendation, labs_summary, imaging_summary,
	flag_hemodynamic_instability, flag_respiratory_concern, flag_neurologic_change,
	flag_sepsis_concern, flag_low_urine_output, flag_uncontrolled_pain, created_at`

func (r *repoPG) InsertNote(ctx context.Context, n *Note) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO isbar_note (
			id, patient_id, care_day, identification, situation, background,
			assessment, recommendation, labs_summary, imaging_summary,
			flag_hemodynamic_instability, flag_respiratory_concern, flag_neurologic_change,
			flag_sepsis_concern, flag_low_urine_output, flag_uncontrolled_pain
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at`,
		n.ID, n.PatientID, n.CareDay, n.Identification, n.Situation, n.Background,
		n.Assessment, n.Recommendation, n.LabsSummary, n.ImagingSummary,
		n.HemodynamicInstability, n.RespiratoryConcern, n.NeurologicChange,
		n.SepsisConcern, n.LowUrineOutput, n.UncontrolledPain,
	).Scan(&n.CreatedAt)
	if isUniqueViolation(err) {
		return ErrCareDayConflict
	}
	return err
}

func (r *repoPG) ListNotes(ctx context.Context, patientID string) ([]*Note, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+noteCols+` FROM isbar_note WHERE patient_id = $1 ORDER BY care_day ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(
			&n.ID, &n.PatientID, &n.CareDay, &n.Identification, &n.Situation, &n.Background,
			&n.Assessment, &n.Recommendation, &n.LabsSummary, &n.ImagingSummary,
			&n.HemodynamicInstability, &n.RespiratoryConcern, &n.NeurologicChange,
			&n.SepsisConcern, &n.LowUrineOutput, &n.UncontrolledPain, &n.CreatedAt,
		); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

// -- Suggestions --

const suggestionCols = `id, patient_id, isbar_id, care_day, ordinal, category, content, rationale,
	status, created_at, updated_at`

func (r *repoPG) InsertSuggestions(ctx context.Context, items []*suggestion.Suggestion) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range items {
		batch.Queue(`
			INSERT INTO suggestion (id, patient_id, isbar_id, care_day, ordinal, category, content, rationale, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING created_at, updated_at`,
			s.ID, s.PatientID, s.IsbarID, s.CareDay, s.Ordinal, s.Category, s.Content, s.Rationale, s.Status,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&s.CreatedAt, &s.UpdatedAt)
		})
	}

	if err := r.conn(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert suggestions: %w", err)
	}
	return nil
}

func (r *repoPG) ListSuggestions(ctx context.Context, patientID string) ([]*suggestion.Suggestion, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+suggestionCols+` FROM suggestion
		WHERE patient_id = $1 ORDER BY care_day ASC, ordinal ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSuggestions(rows)
}

func (r *repoPG) MarkAddressed(ctx context.Context, patientID string, suggestionID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE suggestion SET status = $3, updated_at = NOW()
		WHERE id = $1 AND patient_id = $2 AND status = $4`,
		suggestionID, patientID, suggestion.StatusAddressed, suggestion.StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func collectSuggestions(rows pgx.Rows) ([]*suggestion.Suggestion, error) {
	var out []*suggestion.Suggestion
	for rows.Next() {
		var s suggestion.Suggestion
		if err := rows.Scan(
			&s.ID, &s.PatientID, &s.IsbarID, &s.CareDay, &s.Ordinal, &s.Category, &s.Content, &s.Rationale,
			&s.Status, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// -- Daily progress --

const progressCols = `id, patient_id, care_day, progress_summary, key_events,
	current_supports, pending_issues, next_plan, created_at, updated_at`

func (r *repoPG) UpsertProgress(ctx context.Context, p *DailyProgress) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO daily_progress (
			id, patient_id, care_day, progress_summary, key_events,
			current_supports, pending_issues, next_plan
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (patient_id, care_day) DO UPDATE SET
			progress_summary = EXCLUDED.progress_summary,
			key_events = EXCLUDED.key_events,
			current_supports = EXCLUDED.current_supports,
			pending_issues = EXCLUDED.pending_issues,
			next_plan = EXCLUDED.next_plan,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		p.ID, p.PatientID, p.CareDay, p.ProgressSummary, p.KeyEvents,
		p.CurrentSupports, p.PendingIssues, p.NextPlan,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) ListProgress(ctx context.Context, patientID string) ([]*DailyProgress, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+progressCols+` FROM daily_progress WHERE patient_id = $1 ORDER BY care_day ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DailyProgress
	for rows.Next() {
		var p DailyProgress
		if err := rows.Scan(
			&p.ID, &p.PatientID, &p.CareDay, &p.ProgressSummary, &p.KeyEvents,
			&p.CurrentSupports, &p.PendingIssues, &p.NextPlan, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// -- Listings --

func caseFilterWhere(f CaseFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.Unit != "" {
		args = append(args, f.Unit)
		clauses = append(clauses, fmt.Sprintf("c.unit = $%d", len(args)))
	}
	switch f.View {
	case ViewAll:
	case ViewClosed:
		args = append(args, DispositionActive)
		clauses = append(clauses, fmt.Sprintf("c.disposition <> $%d", len(args)))
	default:
		args = append(args, DispositionActive)
		clauses = append(clauses, fmt.Sprintf("c.disposition = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *repoPG) ListCases(ctx context.Context, f CaseFilter) ([]*CaseSummary, int, error) {
	where, args := caseFilterWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_case c`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`
		SELECT c.id, c.unit, c.status, c.disposition, c.latest_care_day,
			c.discharge_summary_text, c.discharge_summary_version, c.created_at, c.updated_at,
			ln.care_day, ln.recommendation, COALESCE(ps.pending, 0)
		FROM patient_case c
		LEFT JOIN LATERAL (
			SELECT n.care_day, n.recommendation FROM isbar_note n
			WHERE n.patient_id = c.id ORDER BY n.care_day DESC LIMIT 1
		) ln ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS pending FROM suggestion s
			WHERE s.patient_id = c.id AND s.status = 'PENDING'
		) ps ON TRUE
		%s
		ORDER BY c.unit ASC, c.id ASC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*CaseSummary
	for rows.Next() {
		var s CaseSummary
		if err := rows.Scan(
			&s.ID, &s.Unit, &s.Status, &s.Disposition, &s.LatestCareDay,
			&s.DischargeSummaryText, &s.DischargeSummaryVersion, &s.CreatedAt, &s.UpdatedAt,
			&s.LatestNoteCareDay, &s.LatestRecommendation, &s.PendingSuggestions,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, &s)
	}
	return out, total, rows.Err()
}

func (r *repoPG) RoundingSheet(ctx context.Context, unit Unit) ([]*RoundingEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.unit, c.status, c.latest_care_day, n.recommendation
		FROM patient_case c
		LEFT JOIN isbar_note n ON n.patient_id = c.id AND n.care_day = c.latest_care_day
		WHERE c.disposition = 'ACTIVE' AND ($1::text = '' OR c.unit = $1::text)
		ORDER BY c.unit ASC, c.id ASC`, string(unit))
	if err != nil {
		return nil, err
	}

	var entries []*RoundingEntry
	byID := make(map[string]*RoundingEntry)
	for rows.Next() {
		e := &RoundingEntry{PendingSuggestions: []*suggestion.Suggestion{}}
		if err := rows.Scan(&e.PatientID, &e.Unit, &e.Status, &e.LatestCareDay, &e.LatestRecommendation); err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
		byID[e.PatientID] = e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	srows, err := r.conn(ctx).Query(ctx, `
		SELECT s.id, s.patient_id, s.isbar_id, s.care_day, s.ordinal, s.category, s.content, s.rationale,
			s.status, s.created_at, s.updated_at
		FROM suggestion s
		JOIN patient_case c ON c.id = s.patient_id AND s.care_day = c.latest_care_day
		WHERE c.disposition = 'ACTIVE' AND s.status = 'PENDING'
			AND ($1::text = '' OR c.unit = $1::text)
		ORDER BY s.patient_id ASC, s.ordinal ASC`, string(unit))
	if err != nil {
		return nil, err
	}
	defer srows.Close()

	pending, err := collectSuggestions(srows)
	if err != nil {
		return nil, err
	}
	for _, s := range pending {
		if e, ok := byID[s.PatientID]; ok {
			e.PendingSuggestions = append(e.PendingSuggestions, s)
		}
	}
	return entries, nil
}
