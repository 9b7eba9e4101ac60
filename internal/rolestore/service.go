// Package rolestore implements the role side of the identity store: role
// lifecycle, user-role associations, and the membership queries the
// hosting framework drives authorization with. Role and username matching
// is case-insensitive throughout, using the same lowercase fold the
// storage layer's unique indexes apply.
package rolestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/identitystore/internal/common"
	"github.com/dmitrijs2005/identitystore/internal/dbx"
	"github.com/dmitrijs2005/identitystore/internal/logging"
	"github.com/dmitrijs2005/identitystore/internal/repositories/repomanager"
	"github.com/dmitrijs2005/identitystore/internal/validation"
)

// Service provides the role store operations.
type Service struct {
	db  *sql.DB
	rm  repomanager.RepositoryManager
	log logging.Logger
}

func NewService(db *sql.DB, rm repomanager.RepositoryManager, log logging.Logger) *Service {
	if log == nil {
		log = logging.Nop{}
	}
	return &Service{db: db, rm: rm, log: log}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateRole persists a new role. Creating a role whose name already
// exists under case-insensitive comparison fails with ErrRoleExists.
func (s *Service) CreateRole(ctx context.Context, name string) error {
	if err := validation.Name(name); err != nil {
		return err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Roles(tx)

		if _, err := repo.GetByName(ctx, name); err == nil {
			return fmt.Errorf("%w: %q", common.ErrRoleExists, name)
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}

		_, err := repo.Create(ctx, name)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", common.ErrRoleExists, name)
		}
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "role created", "role", name)
	return nil
}

// DeleteRole removes a role and its associations. When throwOnPopulated is
// set and the role still has members, the role is left untouched and
// ErrRolePopulated is returned.
func (s *Service) DeleteRole(ctx context.Context, name string, throwOnPopulated bool) (bool, error) {
	if err := validation.Name(name); err != nil {
		return false, err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Roles(tx)

		role, err := repo.GetByName(ctx, name)
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: %q", common.ErrRoleNotFound, name)
		}
		if err != nil {
			return err
		}

		if throwOnPopulated {
			members, err := repo.MemberCount(ctx, role.ID)
			if err != nil {
				return err
			}
			if members > 0 {
				return fmt.Errorf("%w: %q", common.ErrRolePopulated, name)
			}
		}

		if err := repo.DeleteMembers(ctx, role.ID); err != nil {
			return err
		}
		return repo.Delete(ctx, role.ID)
	})
	if err != nil {
		return false, err
	}

	s.log.Info(ctx, "role deleted", "role", name)
	return true, nil
}

// RoleExists reports whether a role with the given name exists
// (case-insensitive).
func (s *Service) RoleExists(ctx context.Context, name string) (bool, error) {
	if err := validation.Name(name); err != nil {
		return false, err
	}

	_, err := s.rm.Roles(s.db).GetByName(ctx, name)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetAllRoles returns every role name.
func (s *Service) GetAllRoles(ctx context.Context) ([]string, error) {
	return s.rm.Roles(s.db).List(ctx)
}

// AddUsersToRoles associates every named user with every named role.
// Every user and role must already exist; the whole batch runs in one
// transaction, so a missing entity leaves no partial associations behind.
// Re-adding an existing association is a no-op.
func (s *Service) AddUsersToRoles(ctx context.Context, usernames, roleNames []string) error {
	if err := validation.Names(usernames); err != nil {
		return err
	}
	if err := validation.Names(roleNames); err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accountIDs, err := s.resolveAccounts(ctx, tx, usernames)
		if err != nil {
			return err
		}
		roleIDs, err := s.resolveRoles(ctx, tx, roleNames)
		if err != nil {
			return err
		}

		repo := s.rm.Roles(tx)
		for _, accountID := range accountIDs {
			for _, roleID := range roleIDs {
				if err := repo.AddMember(ctx, accountID, roleID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// RemoveUsersFromRoles removes the matching associations. Removing an
// association that does not exist — including one naming an unknown user
// or role — is a no-op.
func (s *Service) RemoveUsersFromRoles(ctx context.Context, usernames, roleNames []string) error {
	if err := validation.Names(usernames); err != nil {
		return err
	}
	if err := validation.Names(roleNames); err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accountsRepo := s.rm.Accounts(tx)
		rolesRepo := s.rm.Roles(tx)

		var accountIDs []string
		for _, username := range usernames {
			account, err := accountsRepo.GetByUsername(ctx, username)
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			accountIDs = append(accountIDs, account.ID)
		}

		var roleIDs []int64
		for _, name := range roleNames {
			role, err := rolesRepo.GetByName(ctx, name)
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			roleIDs = append(roleIDs, role.ID)
		}

		for _, accountID := range accountIDs {
			for _, roleID := range roleIDs {
				if err := rolesRepo.RemoveMember(ctx, accountID, roleID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetRolesForUser returns the names of the roles the user belongs to.
func (s *Service) GetRolesForUser(ctx context.Context, username string) ([]string, error) {
	if err := validation.Name(username); err != nil {
		return nil, err
	}

	account, err := s.rm.Accounts(s.db).GetByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", common.ErrUserNotFound, username)
	}
	if err != nil {
		return nil, err
	}

	return s.rm.Roles(s.db).RolesForAccount(ctx, account.ID)
}

// GetUsersInRole returns the usernames associated with the role.
func (s *Service) GetUsersInRole(ctx context.Context, roleName string) ([]string, error) {
	if err := validation.Name(roleName); err != nil {
		return nil, err
	}

	role, err := s.rm.Roles(s.db).GetByName(ctx, roleName)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", common.ErrRoleNotFound, roleName)
	}
	if err != nil {
		return nil, err
	}

	return s.rm.Roles(s.db).UsernamesInRole(ctx, role.ID)
}

// FindUsersInRole returns the usernames in the role whose name contains
// the substring (case-insensitive). The role must exist.
func (s *Service) FindUsersInRole(ctx context.Context, roleName, usernameSubstring string) ([]string, error) {
	if err := validation.Name(roleName); err != nil {
		return nil, err
	}

	role, err := s.rm.Roles(s.db).GetByName(ctx, roleName)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", common.ErrRoleNotFound, roleName)
	}
	if err != nil {
		return nil, err
	}

	return s.rm.Roles(s.db).FindUsernamesInRole(ctx, role.ID, usernameSubstring)
}

// IsUserInRole reports whether the association exists. A missing user or
// role yields false, not an error.
func (s *Service) IsUserInRole(ctx context.Context, username, roleName string) (bool, error) {
	if err := validation.Name(username); err != nil {
		return false, err
	}
	if err := validation.Name(roleName); err != nil {
		return false, err
	}

	account, err := s.rm.Accounts(s.db).GetByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	role, err := s.rm.Roles(s.db).GetByName(ctx, roleName)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return s.rm.Roles(s.db).IsMember(ctx, account.ID, role.ID)
}

// --- helpers below ---

func (s *Service) resolveAccounts(ctx context.Context, tx dbx.DBTX, usernames []string) ([]string, error) {
	repo := s.rm.Accounts(tx)
	ids := make([]string, 0, len(usernames))
	for _, username := range usernames {
		account, err := repo.GetByUsername(ctx, username)
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", common.ErrUserNotFound, username)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, account.ID)
	}
	return ids, nil
}

func (s *Service) resolveRoles(ctx context.Context, tx dbx.DBTX, roleNames []string) ([]int64, error) {
	repo := s.rm.Roles(tx)
	ids := make([]int64, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := repo.GetByName(ctx, name)
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", common.ErrRoleNotFound, name)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, role.ID)
	}
	return ids, nil
}
