// Package accounts contains the storage access layer for user accounts.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/identitystore/internal/models"
)

// Repository is the account persistence contract. Lookups by username are
// case-insensitive; implementations must enforce the same lowercase fold
// used by the service layer.
type Repository interface {
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	EmailInUse(ctx context.Context, email, excludeID string) (bool, error)
	List(ctx context.Context, offset, limit int) ([]models.Account, error)
	SearchByUsername(ctx context.Context, substring string, offset, limit int) ([]models.Account, error)
	SearchByEmail(ctx context.Context, substring string, offset, limit int) ([]models.Account, error)
	Count(ctx context.Context) (int, error)
	CountByUsername(ctx context.Context, substring string) (int, error)
	CountByEmail(ctx context.Context, substring string) (int, error)
	CountOnline(ctx context.Context, since time.Time) (int, error)
	Delete(ctx context.Context, id string) error

	UpdatePassword(ctx context.Context, id string, hash, salt []byte) error
	UpdateQuestionAnswer(ctx context.Context, id, question string, answer, answerSalt []byte) error
	UpdateProfile(ctx context.Context, id, email string, isApproved bool) error

	RecordFailure(ctx context.Context, id string, attempts int, windowStart time.Time, lock bool, lockedAt time.Time) error
	ResetAttempts(ctx context.Context, id string, activity time.Time) error
	Unlock(ctx context.Context, id string) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
}
