package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/attendance"
)

// identityTarget is the conflict target of the composite identity; it must
// match the attendance_record_identity_key index expression.
const identityTarget = "(center_id, student_id, date, COALESCE(subject_id, ''), COALESCE(faculty_id, ''))"

// newest first, ties broken by insertion recency
var defaultOrdering = core.OrderingClause(
	core.DBOrdering{Field: "date"},
	core.DBOrdering{Field: "created_at"},
)

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Store = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sql.DB) *attendanceRepository {
	return &attendanceRepository{db: sqlx.NewDb(db, "postgres")}
}

type attendanceRow struct {
	ID        string      `db:"id"`
	CenterID  string      `db:"center_id"`
	StudentID string      `db:"student_id"`
	Date      time.Time   `db:"date"`
	Status    string      `db:"status"`
	Notes     string      `db:"notes"`
	SubjectID null.String `db:"subject_id"`
	FacultyID null.String `db:"faculty_id"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (repo attendanceRepository) toRow(rec attendance.Record) attendanceRow {
	return attendanceRow{
		ID:        rec.ID,
		CenterID:  rec.CenterID,
		StudentID: rec.StudentID,
		Date:      attendance.DateOf(rec.Date),
		Status:    string(rec.Status),
		Notes:     rec.Notes,
		SubjectID: rec.SubjectID,
		FacultyID: rec.FacultyID,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
}

func (repo attendanceRepository) toRecord(row attendanceRow) attendance.Record {
	return attendance.Record{
		ID:        row.ID,
		CenterID:  row.CenterID,
		StudentID: row.StudentID,
		Date:      attendance.DateOf(row.Date),
		Status:    attendance.Status(row.Status),
		Notes:     row.Notes,
		SubjectID: row.SubjectID,
		FacultyID: row.FacultyID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func (repo attendanceRepository) toRecords(rows []attendanceRow) []attendance.Record {
	recs := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, repo.toRecord(row))
	}
	return recs
}

// trapNoRowsErr maps psql "no rows" err to attendance.ErrNotFound
func (repo attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return attendance.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapConflictErr maps psql unique violations to attendance.ErrConflict
func (repo attendanceRepository) trapConflictErr(err error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == "23505" {
		return attendance.ErrConflict
	}
	return errors.Wrap(err, msg)
}

func (repo attendanceRepository) FindByKey(ctx context.Context, centerID string, key attendance.Key) (attendance.Record, error) {
	// IS NOT DISTINCT FROM gives the null-vs-value semantics of Key.Matches:
	// NULL only matches NULL, never a value.
	const q = `
		SELECT * FROM attendance_record
		WHERE center_id = $1
		  AND student_id = $2
		  AND date = $3
		  AND subject_id IS NOT DISTINCT FROM $4
		  AND faculty_id IS NOT DISTINCT FROM $5`

	var row attendanceRow
	err := repo.db.GetContext(ctx, &row, q,
		centerID, key.StudentID, attendance.DateOf(key.Date), key.SubjectID, key.FacultyID)
	if err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "finding attendance record")
	}
	return repo.toRecord(row), nil
}

func (repo attendanceRepository) Insert(ctx context.Context, centerID string, rec attendance.Record) (attendance.Record, error) {
	const q = `
		INSERT INTO attendance_record
			(id, center_id, student_id, date, status, notes, subject_id, faculty_id, created_at, updated_at)
		VALUES (:id, :center_id, :student_id, :date, :status, :notes, :subject_id, :faculty_id, :created_at, :updated_at)`

	rec.CenterID = centerID
	if _, err := repo.db.NamedExecContext(ctx, q, repo.toRow(rec)); err != nil {
		return attendance.Record{}, repo.trapConflictErr(err, "inserting attendance record")
	}
	return rec, nil
}

func (repo attendanceRepository) Update(ctx context.Context, centerID string, rec attendance.Record) (attendance.Record, error) {
	const q = `
		UPDATE attendance_record
		SET status = $1, notes = $2, updated_at = $3
		WHERE id = $4 AND center_id = $5`

	res, err := repo.db.ExecContext(ctx, q, string(rec.Status), rec.Notes, rec.UpdatedAt.UTC(), rec.ID, centerID)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating attendance record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rec, nil
}

// dedupeByKey collapses batch entries sharing a composite identity down to
// their last occurrence, preserving first-seen positions. Postgres rejects a
// multi-row upsert that hits the same conflict target twice ("cannot affect
// row a second time"); last write wins, matching the cache's upsert.
func dedupeByKey(recs []attendance.Record) []attendance.Record {
	seen := make(map[attendance.Key]int, len(recs))
	out := make([]attendance.Record, 0, len(recs))
	for _, rec := range recs {
		if i, ok := seen[rec.Key()]; ok {
			out[i] = rec
			continue
		}
		seen[rec.Key()] = len(out)
		out = append(out, rec)
	}
	return out
}

func (repo attendanceRepository) BulkUpsert(ctx context.Context, centerID string, recs []attendance.Record) error {
	if len(recs) == 0 {
		return nil
	}
	recs = dedupeByKey(recs)

	placeholders := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*10)
	for i, rec := range recs {
		rec.CenterID = centerID
		row := repo.toRow(rec)
		n := i * 10
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9, n+10))
		args = append(args,
			row.ID, row.CenterID, row.StudentID, row.Date, row.Status,
			row.Notes, row.SubjectID, row.FacultyID, row.CreatedAt, row.UpdatedAt)
	}

	q := fmt.Sprintf(`
		INSERT INTO attendance_record
			(id, center_id, student_id, date, status, notes, subject_id, faculty_id, created_at, updated_at)
		VALUES %s
		ON CONFLICT %s DO UPDATE
		SET status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`,
		strings.Join(placeholders, ", "), identityTarget)

	if _, err := repo.db.ExecContext(ctx, q, args...); err != nil {
		return repo.trapConflictErr(err, "bulk upserting attendance records")
	}
	return nil
}

func (repo attendanceRepository) QueryFiltered(ctx context.Context, centerID string, filter attendance.QueryFilter) ([]attendance.Record, error) {
	where := []string{"center_id = $1"}
	args := []interface{}{centerID}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.Date.IsZero() {
		where = append(where, "date = "+arg(attendance.DateOf(filter.Date)))
	} else {
		if !filter.StartDate.IsZero() {
			where = append(where, "date >= "+arg(attendance.DateOf(filter.StartDate)))
		}
		if !filter.EndDate.IsZero() {
			where = append(where, "date <= "+arg(attendance.DateOf(filter.EndDate)))
		}
	}
	if filter.StudentID != "" {
		where = append(where, "student_id = "+arg(filter.StudentID))
	}

	q := fmt.Sprintf(`
		SELECT * FROM attendance_record
		WHERE %s
		ORDER BY %s`, strings.Join(where, " AND "), defaultOrdering)

	var rows []attendanceRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	return repo.toRecords(rows), nil
}

func (repo attendanceRepository) QueryRange(ctx context.Context, centerID string, start, end time.Time, limit, offset int) ([]attendance.Record, error) {
	q := fmt.Sprintf(`
		SELECT * FROM attendance_record
		WHERE center_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY %s
		LIMIT $4 OFFSET $5`, defaultOrdering)

	var rows []attendanceRow
	err := repo.db.SelectContext(ctx, &rows, q,
		centerID, attendance.DateOf(start), attendance.DateOf(end), limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance range")
	}
	return repo.toRecords(rows), nil
}
