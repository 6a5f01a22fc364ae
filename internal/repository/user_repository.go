package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/school-service/internal/domain"
)

// ErrEmailTaken is returned when creating a user whose email already exists.
var ErrEmailTaken = errors.New("email already registered")

// UserRepository is the principal store: credentials, role, status and the
// single session slot. Lookups return pgx.ErrNoRows when nothing matches.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)
	// SetSessionToken overwrites the session slot; a nil token clears it.
	SetSessionToken(ctx context.Context, id int64, token *string, issuedAt *time.Time) error
	// ClearSessionToken clears the slot holding token and reports whether one did.
	ClearSessionToken(ctx context.Context, token string) (bool, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	// UpdateStatus changes the account status and drops the session of any
	// account that is no longer active.
	UpdateStatus(ctx context.Context, id int64, status domain.AccountStatus) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, email, password_hash, role, status, session_token, session_issued_at, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.SessionToken,
		&user.SessionIssuedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, password_hash, role, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Status,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *userRepository) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE session_token=$1`
	return scanUser(r.pool.QueryRow(ctx, query, token))
}

func (r *userRepository) SetSessionToken(ctx context.Context, id int64, token *string, issuedAt *time.Time) error {
	const query = `
        UPDATE users SET session_token=$1, session_issued_at=$2, updated_at=NOW()
        WHERE id=$3`

	if token == nil {
		issuedAt = nil
	}
	cmd, err := r.pool.Exec(ctx, query, token, issuedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) ClearSessionToken(ctx context.Context, token string) (bool, error) {
	const query = `
        UPDATE users SET session_token=NULL, session_issued_at=NULL, updated_at=NOW()
        WHERE session_token=$1`

	cmd, err := r.pool.Exec(ctx, query, token)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const query = `
        UPDATE users SET password_hash=$1, updated_at=NOW()
        WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) UpdateStatus(ctx context.Context, id int64, status domain.AccountStatus) (*domain.User, error) {
	const query = `
        UPDATE users SET
            status=$1,
            session_token=CASE WHEN $1 = 'active' THEN session_token ELSE NULL END,
            session_issued_at=CASE WHEN $1 = 'active' THEN session_issued_at ELSE NULL END,
            updated_at=NOW()
        WHERE id=$2
        RETURNING ` + userColumns

	return scanUser(r.pool.QueryRow(ctx, query, string(status), id))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
