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
	"github.com/trezcool/weeklog/core/user"
)

const userColumns = `id, username, name, email, role, department, supervisor_email, password_hash,
	must_change_password, is_active, created_at, updated_at, last_login`

var userOrderingFields = map[string]bool{
	"username": true, "name": true, "email": true, "role": true, "department": true, "created_at": true,
}

type userRow struct {
	ID                 string       `db:"id"`
	Username           string       `db:"username"`
	Name               string       `db:"name"`
	Email              string       `db:"email"`
	Role               string       `db:"role"`
	Department         string       `db:"department"`
	SupervisorEmail    string       `db:"supervisor_email"`
	PasswordHash       []byte       `db:"password_hash"`
	MustChangePassword bool         `db:"must_change_password"`
	IsActive           bool         `db:"is_active"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
	LastLogin          sql.NullTime `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:                 usr.ID,
		Username:           usr.Username,
		Name:               usr.Name,
		Email:              usr.Email,
		Role:               string(usr.Role),
		Department:         usr.Department,
		SupervisorEmail:    usr.SupervisorEmail,
		PasswordHash:       usr.PasswordHash,
		MustChangePassword: usr.MustChangePassword,
		IsActive:           usr.IsActive,
		CreatedAt:          usr.CreatedAt.UTC(),
		UpdatedAt:          usr.UpdatedAt.UTC(),
		LastLogin:          sql.NullTime{Time: usr.LastLogin.UTC(), Valid: !usr.LastLogin.IsZero()},
	}
}

func (r userRow) user() user.User {
	usr := user.User{
		ID:                 r.ID,
		Username:           r.Username,
		Name:               r.Name,
		Email:              r.Email,
		Role:               user.Role(r.Role),
		Department:         r.Department,
		SupervisorEmail:    r.SupervisorEmail,
		PasswordHash:       r.PasswordHash,
		MustChangePassword: r.MustChangePassword,
		IsActive:           r.IsActive,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
	if r.LastLogin.Valid {
		usr.LastLogin = r.LastLogin.Time.UTC()
	}
	return usr
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// trapNoRowsErr maps "no rows" err to user.ErrNotFound
func trapUserNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	q := "SELECT username, email FROM users WHERE (username = ? OR email = ?)"
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q += " AND id NOT IN (?)"
		args = append(args, ids)
	}
	q, args, err := sqlx.In(q+" LIMIT 1", args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}

	var found struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	err = repo.db.GetContext(ctx, &found, repo.db.Rebind(q), args...)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking user uniqueness")
	case found.Username == username:
		return user.ErrUsernameExists
	default:
		return user.ErrEmailExists
	}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	q := `INSERT INTO users (` + userColumns + `) VALUES (:id, :username, :name, :email, :role, :department,
		:supervisor_email, :password_hash, :must_change_password, :is_active, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr)); err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if strings.Contains(constraint, "email") {
				return user.User{}, user.ErrEmailExists
			}
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var row userRow
	var err error

	switch {
	case filter.ID != "":
		if _, err = uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		err = repo.db.GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE id = $1", filter.ID)
	case filter.UsernameOrEmail != "":
		err = repo.db.GetContext(ctx, &row,
			"SELECT "+userColumns+" FROM users WHERE username = $1 OR email = $1 LIMIT 1", filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, trapUserNoRowsErr(err, "finding user")
	}
	return row.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, "(name ILIKE $1 OR username ILIKE $1 OR email ILIKE $1)")
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		where = append(where, "role = "+placeholder(len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		where = append(where, "department = "+placeholder(len(args)))
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(ordering, userOrderingFields, "username ASC")

	rows := make([]userRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET username = :username, name = :name, email = :email, role = :role,
		department = :department, supervisor_email = :supervisor_email, password_hash = :password_hash,
		must_change_password = :must_change_password, is_active = :is_active, updated_at = :updated_at,
		last_login = :last_login
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
