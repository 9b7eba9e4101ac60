package identitystore

import (
	"context"

	"github.com/dmitrijs2005/identitystore/internal/common"
	"github.com/dmitrijs2005/identitystore/internal/config"
	"github.com/dmitrijs2005/identitystore/internal/membership"
	"github.com/dmitrijs2005/identitystore/internal/models"
	"github.com/dmitrijs2005/identitystore/internal/session"
)

// Public names for the entities and configuration the stores exchange
// with the hosting framework.
type (
	Account        = models.Account
	Role           = models.Role
	CreateStatus   = models.CreateStatus
	NewUser        = membership.NewUser
	Config         = config.Config
	SessionManager = session.Manager
)

// CreateUser outcomes.
const (
	CreateOK                = models.CreateOK
	CreateDuplicateUsername = models.CreateDuplicateUsername
	CreateDuplicateEmail    = models.CreateDuplicateEmail
	CreateInvalidPassword   = models.CreateInvalidPassword
	CreateInvalidAnswer     = models.CreateInvalidAnswer
)

// Sentinel errors, matched with errors.Is. See the package documentation
// for the three-tier taxonomy they follow.
var (
	ErrInvalidArgument = common.ErrInvalidArgument
	ErrMalformedInput  = common.ErrMalformedInput

	ErrRoleExists    = common.ErrRoleExists
	ErrRoleNotFound  = common.ErrRoleNotFound
	ErrRolePopulated = common.ErrRolePopulated

	ErrUserNotFound      = common.ErrUserNotFound
	ErrAccountLocked     = common.ErrAccountLocked
	ErrWrongAnswer       = common.ErrWrongAnswer
	ErrRetrievalDisabled = common.ErrRetrievalDisabled
	ErrResetDisabled     = common.ErrResetDisabled

	ErrUnknownOption = common.ErrUnknownOption
	ErrBadConfig     = common.ErrBadConfig

	ErrInvalidToken = common.ErrInvalidToken
	ErrTokenExpired = common.ErrTokenExpired
)

// MembershipStore is the account-side capability the hosting framework
// consumes: account lifecycle, credential verification, lockout handling.
type MembershipStore interface {
	CreateUser(ctx context.Context, u NewUser) (*Account, CreateStatus, error)
	DeleteUser(ctx context.Context, username string, deleteAllRelatedData bool) (bool, error)
	ValidateUser(ctx context.Context, username, password string) (bool, error)

	GetUser(ctx context.Context, username string, online bool) (*Account, error)
	GetUserByID(ctx context.Context, id string) (*Account, error)
	GetAllUsers(ctx context.Context, pageIndex, pageSize int) ([]Account, int, error)
	FindUsersByName(ctx context.Context, substring string, pageIndex, pageSize int) ([]Account, int, error)
	FindUsersByEmail(ctx context.Context, substring string, pageIndex, pageSize int) ([]Account, int, error)
	GetNumberOfUsersOnline(ctx context.Context) (int, error)

	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (bool, error)
	ResetPassword(ctx context.Context, username, answer string) (string, error)
	GetPassword(ctx context.Context, username, answer string) (string, error)
	ChangeQuestionAndAnswer(ctx context.Context, username, password, question, answer string) (bool, error)
	UnlockUser(ctx context.Context, username string) (bool, error)
	UpdateUser(ctx context.Context, username, email string, isApproved bool) error
}

// RoleStore is the role-side capability: role lifecycle and user-role
// associations. All name matching is case-insensitive.
type RoleStore interface {
	CreateRole(ctx context.Context, name string) error
	DeleteRole(ctx context.Context, name string, throwOnPopulated bool) (bool, error)
	RoleExists(ctx context.Context, name string) (bool, error)
	GetAllRoles(ctx context.Context) ([]string, error)

	AddUsersToRoles(ctx context.Context, usernames, roleNames []string) error
	RemoveUsersFromRoles(ctx context.Context, usernames, roleNames []string) error

	GetRolesForUser(ctx context.Context, username string) ([]string, error)
	GetUsersInRole(ctx context.Context, roleName string) ([]string, error)
	FindUsersInRole(ctx context.Context, roleName, usernameSubstring string) ([]string, error)
	IsUserInRole(ctx context.Context, username, roleName string) (bool, error)
}
