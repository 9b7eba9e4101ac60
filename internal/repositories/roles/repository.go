// Package roles contains the storage access layer for roles and the
// account-role association table.
package roles

import (
	"context"

	"github.com/dmitrijs2005/identitystore/internal/models"
)

// Repository is the role persistence contract. Name lookups are
// case-insensitive. AddMember is idempotent: re-adding an existing
// association is a no-op at the storage layer, which also makes concurrent
// adds race-free.
type Repository interface {
	Create(ctx context.Context, name string) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id int64) error

	MemberCount(ctx context.Context, roleID int64) (int, error)
	DeleteMembers(ctx context.Context, roleID int64) error
	DeleteMembersOfAccount(ctx context.Context, accountID string) error

	AddMember(ctx context.Context, accountID string, roleID int64) error
	RemoveMember(ctx context.Context, accountID string, roleID int64) error
	IsMember(ctx context.Context, accountID string, roleID int64) (bool, error)

	RolesForAccount(ctx context.Context, accountID string) ([]string, error)
	UsernamesInRole(ctx context.Context, roleID int64) ([]string, error)
	FindUsernamesInRole(ctx context.Context, roleID int64, substring string) ([]string, error)
}
