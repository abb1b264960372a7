package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
)

const logColumns = `id, student_username, student_name, student_email, supervisor_email, department,
	week_number, content, status, verification_token, submitted_at, updated_at`

var logOrderingFields = map[string]bool{"week_number": true, "submitted_at": true, "status": true}

type logRow struct {
	ID                string         `db:"id"`
	StudentUsername   string         `db:"student_username"`
	StudentName       string         `db:"student_name"`
	StudentEmail      string         `db:"student_email"`
	SupervisorEmail   string         `db:"supervisor_email"`
	Department        string         `db:"department"`
	WeekNumber        int            `db:"week_number"`
	Content           string         `db:"content"`
	Status            string         `db:"status"`
	VerificationToken sql.NullString `db:"verification_token"`
	SubmittedAt       time.Time      `db:"submitted_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func toLogRow(le progress.LogEntry) logRow {
	r := logRow{
		ID:              le.ID,
		StudentUsername: le.StudentUsername,
		StudentName:     le.StudentName,
		StudentEmail:    le.StudentEmail,
		SupervisorEmail: le.SupervisorEmail,
		Department:      le.Department,
		WeekNumber:      le.WeekNumber,
		Content:         le.Content,
		Status:          string(le.Status),
		SubmittedAt:     le.SubmittedAt.UTC(),
		UpdatedAt:       le.UpdatedAt.UTC(),
	}
	if le.VerificationToken != nil {
		r.VerificationToken = sql.NullString{String: *le.VerificationToken, Valid: true}
	}
	return r
}

func (r logRow) entry() progress.LogEntry {
	le := progress.LogEntry{
		ID:              r.ID,
		StudentUsername: r.StudentUsername,
		StudentName:     r.StudentName,
		StudentEmail:    r.StudentEmail,
		SupervisorEmail: r.SupervisorEmail,
		Department:      r.Department,
		WeekNumber:      r.WeekNumber,
		Content:         r.Content,
		Status:          progress.Status(r.Status),
		SubmittedAt:     r.SubmittedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.VerificationToken.Valid {
		token := r.VerificationToken.String
		le.VerificationToken = &token
	}
	return le
}

type logRepository struct {
	db *sqlx.DB
}

var _ progress.Repository = (*logRepository)(nil) // interface compliance check

func NewLogRepository(db *sqlx.DB) progress.Repository {
	return &logRepository{db: db}
}

// trapLogNoRowsErr maps "no rows" err to progress.ErrNotFound
func trapLogNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return progress.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo logRepository) InsertLog(ctx context.Context, le progress.LogEntry) (progress.LogEntry, error) {
	le.ID = uuid.New().String()
	le.VerificationToken = nil
	q := `INSERT INTO log_entries (` + logColumns + `) VALUES (:id, :student_username, :student_name,
		:student_email, :supervisor_email, :department, :week_number, :content, :status, :verification_token,
		:submitted_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toLogRow(le)); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return progress.LogEntry{}, progress.ErrDuplicateWeek
		}
		return progress.LogEntry{}, errors.Wrap(err, "inserting log")
	}
	return le, nil
}

func (repo logRepository) SetToken(ctx context.Context, id, token string) error {
	if _, err := uuid.Parse(id); err != nil {
		return progress.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx,
		`UPDATE log_entries SET verification_token = $1
		WHERE id = $2 AND verification_token IS NULL AND status = $3`,
		token, id, progress.StatusPending)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return progress.ErrNotFound
		}
		return errors.Wrap(err, "setting token")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "setting token")
	}
	if n == 0 {
		return progress.ErrNotFound
	}
	return nil
}

func (repo logRepository) FindByToken(ctx context.Context, token string) (progress.LogEntry, error) {
	var row logRow
	err := repo.db.GetContext(ctx, &row, "SELECT "+logColumns+" FROM log_entries WHERE verification_token = $1", token)
	if err != nil {
		return progress.LogEntry{}, trapLogNoRowsErr(err, "finding log by token")
	}
	return row.entry(), nil
}

// resolveQuery is one conditional write keyed on the token; the joined subquery returns the pre-update row.
const resolveQuery = `UPDATE log_entries AS le
	SET status = $1, verification_token = NULL, updated_at = $2
	FROM (
		SELECT id, status, verification_token, updated_at FROM log_entries
		WHERE verification_token = $3 AND status = $4
		FOR UPDATE
	) AS old
	WHERE le.id = old.id
	RETURNING le.id, le.student_username, le.student_name, le.student_email, le.supervisor_email,
		le.department, le.week_number, le.content, old.status, old.verification_token, le.submitted_at,
		old.updated_at`

func (repo logRepository) ResolveByToken(ctx context.Context, token string, status progress.Status) (progress.LogEntry, error) {
	var row logRow
	err := repo.db.GetContext(ctx, &row, resolveQuery, status, time.Now().UTC(), token, progress.StatusPending)
	if err != nil {
		return progress.LogEntry{}, trapLogNoRowsErr(err, "resolving token")
	}
	return row.entry(), nil
}

func (repo logRepository) GetLog(ctx context.Context, id string) (progress.LogEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return progress.LogEntry{}, progress.ErrNotFound
	}
	var row logRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+logColumns+" FROM log_entries WHERE id = $1", id); err != nil {
		return progress.LogEntry{}, trapLogNoRowsErr(err, "finding log")
	}
	return row.entry(), nil
}

func (repo logRepository) QueryLogs(ctx context.Context, filter progress.QueryFilter, ordering []core.DBOrdering) ([]progress.LogEntry, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, cond+" = "+placeholder(len(args)))
	}
	if filter.StudentUsername != "" {
		add("student_username", filter.StudentUsername)
	}
	if filter.Department != "" {
		add("department", filter.Department)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.WeekNumber != 0 {
		add("week_number", filter.WeekNumber)
	}

	q := "SELECT " + logColumns + " FROM log_entries"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(ordering, logOrderingFields, "week_number DESC")

	rows := make([]logRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying logs")
	}
	logs := make([]progress.LogEntry, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, r.entry())
	}
	return logs, nil
}
