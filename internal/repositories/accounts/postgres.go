package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/identitystore/internal/common"
	"github.com/dmitrijs2005/identitystore/internal/dbx"
	"github.com/dmitrijs2005/identitystore/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, username, COALESCE(email, ''), password_hash, password_salt,
	COALESCE(question, ''), answer, answer_salt, is_approved, is_locked_out,
	failed_attempts, window_start, last_lockout, last_activity, created_at`

// likeEscaper makes % and _ in a search substring match literally instead
// of acting as LIKE wildcards.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	a := &models.Account{}
	var windowStart, lastLockout, lastActivity sql.NullTime
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.PasswordSalt,
		&a.Question, &a.Answer, &a.AnswerSalt, &a.IsApproved, &a.IsLockedOut,
		&a.FailedAttempts, &windowStart, &lastLockout, &lastActivity, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.WindowStart = windowStart.Time
	a.LastLockout = lastLockout.Time
	a.LastActivity = lastActivity.Time
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {

	query :=
		`INSERT INTO accounts (id, username, email, password_hash, password_salt,
		                       question, answer, answer_salt, is_approved)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, $9)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.Username, a.Email, a.PasswordHash, a.PasswordSalt,
		a.Question, a.Answer, a.AnswerSalt, a.IsApproved).Scan(&a.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		 FROM accounts
		 WHERE LOWER(username) = LOWER($1)
		 `

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		 FROM accounts
		 WHERE id = $1
		 `

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

// EmailInUse reports whether another account already claims the email.
// Uniqueness of emails is a configuration option, so it is checked here
// rather than enforced by a schema constraint.
func (r *PostgresRepository) EmailInUse(ctx context.Context, email, excludeID string) (bool, error) {
	query :=
		`SELECT EXISTS (
		    SELECT 1 FROM accounts
		    WHERE LOWER(email) = LOWER($1) AND id <> $2
		 )`

	var inUse bool
	if err := r.db.QueryRowContext(ctx, query, email, excludeID).Scan(&inUse); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return inUse, nil
}

func (r *PostgresRepository) List(ctx context.Context, offset, limit int) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + `
		 FROM accounts
		 ORDER BY LOWER(username)
		 OFFSET $1 LIMIT $2
		 `
	return r.queryAccounts(ctx, query, offset, limit)
}

func (r *PostgresRepository) SearchByUsername(ctx context.Context, substring string, offset, limit int) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + `
		 FROM accounts
		 WHERE LOWER(username) LIKE '%' || LOWER($1) || '%'
		 ORDER BY LOWER(username)
		 OFFSET $2 LIMIT $3
		 `
	return r.queryAccounts(ctx, query, likeEscaper.Replace(substring), offset, limit)
}

func (r *PostgresRepository) SearchByEmail(ctx context.Context, substring string, offset, limit int) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + `
		 FROM accounts
		 WHERE LOWER(email) LIKE '%' || LOWER($1) || '%'
		 ORDER BY LOWER(username)
		 OFFSET $2 LIMIT $3
		 `
	return r.queryAccounts(ctx, query, likeEscaper.Replace(substring), offset, limit)
}

func (r *PostgresRepository) queryAccounts(ctx context.Context, query string, args ...any) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	return r.scanCount(ctx, `SELECT COUNT(*) FROM accounts`)
}

func (r *PostgresRepository) CountByUsername(ctx context.Context, substring string) (int, error) {
	query :=
		`SELECT COUNT(*) FROM accounts
		 WHERE LOWER(username) LIKE '%' || LOWER($1) || '%'`
	return r.scanCount(ctx, query, likeEscaper.Replace(substring))
}

func (r *PostgresRepository) CountByEmail(ctx context.Context, substring string) (int, error) {
	query :=
		`SELECT COUNT(*) FROM accounts
		 WHERE LOWER(email) LIKE '%' || LOWER($1) || '%'`
	return r.scanCount(ctx, query, likeEscaper.Replace(substring))
}

func (r *PostgresRepository) CountOnline(ctx context.Context, since time.Time) (int, error) {
	query :=
		`SELECT COUNT(*) FROM accounts
		 WHERE last_activity >= $1`
	return r.scanCount(ctx, query, since)
}

func (r *PostgresRepository) scanCount(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM accounts WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, hash, salt []byte) error {
	query :=
		`UPDATE accounts SET password_hash = $2, password_salt = $3
		 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, hash, salt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateQuestionAnswer(ctx context.Context, id, question string, answer, answerSalt []byte) error {
	query :=
		`UPDATE accounts SET question = NULLIF($2, ''), answer = $3, answer_salt = $4
		 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, question, answer, answerSalt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, email string, isApproved bool) error {
	query :=
		`UPDATE accounts SET email = NULLIF($2, ''), is_approved = $3
		 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, email, isApproved); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RecordFailure stores the outcome of a failed validation attempt: the new
// counter, the window it is counted in, and the lock transition if the
// threshold was reached.
func (r *PostgresRepository) RecordFailure(ctx context.Context, id string, attempts int, windowStart time.Time, lock bool, lockedAt time.Time) error {
	query :=
		`UPDATE accounts
		 SET failed_attempts = $2,
		     window_start = $3,
		     is_locked_out = is_locked_out OR $4,
		     last_lockout = CASE WHEN $4 THEN $5 ELSE last_lockout END
		 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, attempts, windowStart, lock, lockedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ResetAttempts clears the failure window after a successful validation and
// records the activity timestamp.
func (r *PostgresRepository) ResetAttempts(ctx context.Context, id string, activity time.Time) error {
	query :=
		`UPDATE accounts
		 SET failed_attempts = 0, window_start = NULL, last_activity = $2
		 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, activity); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Unlock clears the lock and the attempt counter (administrative unlock).
func (r *PostgresRepository) Unlock(ctx context.Context, id string) error {
	query :=
		`UPDATE accounts
		 SET is_locked_out = false, failed_attempts = 0, window_start = NULL
		 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE accounts SET last_activity = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
