package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ghassenk/jewelstore/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// AuthRepository defines the durable data operations of the identity service.
type AuthRepository interface {
	// User operations
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	EnsureUser(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SeedAdmin(ctx context.Context, email, passwordHash string) (*models.User, error)

	// Session operations
	CreateSession(ctx context.Context, session *models.Session) error
	DeleteSessionByTokenID(ctx context.Context, tokenID string) error
	DeleteSessionsByUserID(ctx context.Context, userID string) error

	// Login attempt operations
	RecordLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	GetRecentFailedAttempts(ctx context.Context, email string, since time.Time) (int, error)
}

// SQLRepository implements AuthRepository on PostgreSQL (lib/pq) or SQLite
// (modernc.org/sqlite). Queries are written with ? placeholders and rebound
// for Postgres.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// NewSQLRepository wraps an open database handle. driver is "postgres" or
// "sqlite".
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: db, driver: driver}
}

// DB returns the underlying handle.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.rebind(query), args...)
}

func (r *SQLRepository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.rebind(query), args...)
}

// ---------------------------------------------------------------------------
// User operations
// ---------------------------------------------------------------------------

func (r *SQLRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, role, password_hash, created_at, updated_at
		FROM users
		WHERE email = ?`
	u := &models.User{}
	err := r.queryRow(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *SQLRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, role, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.exec(ctx, query,
		user.ID, user.Email, string(user.Role), user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// EnsureUser returns the user with email, creating a USER account on first use.
func (r *SQLRepository) EnsureUser(ctx context.Context, email string) (*models.User, error) {
	u, err := r.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	u = &models.User{Email: email, Role: models.RoleUser}
	if err := r.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with a concurrent first login.
			return r.GetUserByEmail(ctx, email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *SQLRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`
	res, err := r.exec(ctx, query, passwordHash, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedAdmin creates the bootstrap SUPER_ADMIN unless an account with that email
// already exists. An existing account is returned untouched.
func (r *SQLRepository) SeedAdmin(ctx context.Context, email, passwordHash string) (*models.User, error) {
	u, err := r.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	u = &models.User{Email: email, Role: models.RoleSuperAdmin, PasswordHash: passwordHash}
	if err := r.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}
	return u, nil
}

// ---------------------------------------------------------------------------
// Session operations
// ---------------------------------------------------------------------------

func (r *SQLRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	query := `
		INSERT INTO sessions (id, user_id, token_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.exec(ctx, query,
		session.ID, session.UserID, session.TokenID, session.ExpiresAt.UTC(), session.CreatedAt.UTC(),
	)
	return err
}

func (r *SQLRepository) DeleteSessionByTokenID(ctx context.Context, tokenID string) error {
	_, err := r.exec(ctx, `DELETE FROM sessions WHERE token_id = ?`, tokenID)
	return err
}

func (r *SQLRepository) DeleteSessionsByUserID(ctx context.Context, userID string) error {
	_, err := r.exec(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// CountSessions returns the number of recorded sessions for userID.
func (r *SQLRepository) CountSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// ---------------------------------------------------------------------------
// Login attempt operations
// ---------------------------------------------------------------------------

func (r *SQLRepository) RecordLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	query := `
		INSERT INTO login_attempts (id, email, success, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.exec(ctx, query,
		attempt.ID, attempt.Email, attempt.Success, attempt.IPAddress, attempt.CreatedAt.UTC(),
	)
	return err
}

func (r *SQLRepository) GetRecentFailedAttempts(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM login_attempts
		WHERE email = ? AND success = ? AND created_at > ?`
	var count int
	err := r.queryRow(ctx, query, email, false, since.UTC()).Scan(&count)
	return count, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
