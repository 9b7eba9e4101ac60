package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

// likeEscaper makes % and _ in a search substring match literally instead
// of acting as LIKE wildcards.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *PostgresRepository) Create(ctx context.Context, name string) (*models.Role, error) {
	query :=
		`INSERT INTO roles (name)
		 VALUES ($1)
		 RETURNING id
		 `

	role := &models.Role{Name: name}
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&role.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return role, nil
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query :=
		`SELECT id, name FROM roles
		 WHERE LOWER(name) = LOWER($1)
		 `

	role := &models.Role{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return role, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM roles ORDER BY LOWER(name)`
	return r.queryStrings(ctx, query)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM roles WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MemberCount(ctx context.Context, roleID int64) (int, error) {
	query := `SELECT COUNT(*) FROM account_roles WHERE role_id = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, query, roleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteMembers(ctx context.Context, roleID int64) error {
	query := `DELETE FROM account_roles WHERE role_id = $1`
	if _, err := r.db.ExecContext(ctx, query, roleID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteMembersOfAccount(ctx context.Context, accountID string) error {
	query := `DELETE FROM account_roles WHERE account_id = $1`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddMember(ctx context.Context, accountID string, roleID int64) error {
	query :=
		`INSERT INTO account_roles (account_id, role_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING
		 `
	if _, err := r.db.ExecContext(ctx, query, accountID, roleID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RemoveMember(ctx context.Context, accountID string, roleID int64) error {
	query :=
		`DELETE FROM account_roles
		 WHERE account_id = $1 AND role_id = $2
		 `
	if _, err := r.db.ExecContext(ctx, query, accountID, roleID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IsMember(ctx context.Context, accountID string, roleID int64) (bool, error) {
	query :=
		`SELECT EXISTS (
		    SELECT 1 FROM account_roles
		    WHERE account_id = $1 AND role_id = $2
		 )`

	var member bool
	if err := r.db.QueryRowContext(ctx, query, accountID, roleID).Scan(&member); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return member, nil
}

func (r *PostgresRepository) RolesForAccount(ctx context.Context, accountID string) ([]string, error) {
	query :=
		`SELECT r.name
		 FROM roles r
		 JOIN account_roles ar ON ar.role_id = r.id
		 WHERE ar.account_id = $1
		 ORDER BY LOWER(r.name)
		 `
	return r.queryStrings(ctx, query, accountID)
}

func (r *PostgresRepository) UsernamesInRole(ctx context.Context, roleID int64) ([]string, error) {
	query :=
		`SELECT a.username
		 FROM accounts a
		 JOIN account_roles ar ON ar.account_id = a.id
		 WHERE ar.role_id = $1
		 ORDER BY LOWER(a.username)
		 `
	return r.queryStrings(ctx, query, roleID)
}

func (r *PostgresRepository) FindUsernamesInRole(ctx context.Context, roleID int64, substring string) ([]string, error) {
	query :=
		`SELECT a.username
		 FROM accounts a
		 JOIN account_roles ar ON ar.account_id = a.id
		 WHERE ar.role_id = $1
		   AND LOWER(a.username) LIKE '%' || LOWER($2) || '%'
		 ORDER BY LOWER(a.username)
		 `
	return r.queryStrings(ctx, query, roleID, likeEscaper.Replace(substring))
}

func (r *PostgresRepository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
