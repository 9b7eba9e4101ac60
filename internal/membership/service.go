// Package membership implements the account side of the identity store:
// account lifecycle, password verification and reset, security answers,
// and the sliding-window lockout state machine.
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/identitystore/internal/common"
	"github.com/dmitrijs2005/identitystore/internal/config"
	"github.com/dmitrijs2005/identitystore/internal/cryptox"
	"github.com/dmitrijs2005/identitystore/internal/dbx"
	"github.com/dmitrijs2005/identitystore/internal/logging"
	"github.com/dmitrijs2005/identitystore/internal/models"
	"github.com/dmitrijs2005/identitystore/internal/repositories/repomanager"
	"github.com/dmitrijs2005/identitystore/internal/validation"
)

// NewUser carries the caller-supplied fields of CreateUser.
type NewUser struct {
	Username   string
	Password   string
	Email      string
	Question   string
	Answer     string
	IsApproved bool
}

// Service provides the membership store operations. It holds no state
// beyond its collaborators; all atomicity is enforced at the storage
// layer (transactions plus the case-folded unique index on usernames).
type Service struct {
	db  *sql.DB
	rm  repomanager.RepositoryManager
	cfg *config.Config
	log logging.Logger

	now func() time.Time
}

func NewService(db *sql.DB, rm repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *Service {
	if log == nil {
		log = logging.Nop{}
	}
	return &Service{db: db, rm: rm, cfg: cfg, log: log, now: time.Now}
}

// uniqueViolation is the Postgres error code raised when the case-folded
// unique index rejects a concurrent duplicate.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// errDuplicateInsert marks an INSERT that lost the unique-index race. The
// transaction is already aborted at that point, so the closure must return
// an error and roll back; committing would fail. CreateUser maps it back
// to the duplicate status.
var errDuplicateInsert = errors.New("duplicate insert")

// CreateUser creates an account. Expected business-rule failures
// (duplicates, weak password, missing answer) are reported through the
// CreateStatus; only malformed input and storage failures are errors.
func (s *Service) CreateUser(ctx context.Context, u NewUser) (*models.Account, models.CreateStatus, error) {
	if err := validation.Name(u.Username); err != nil {
		return nil, 0, err
	}
	if err := validation.Email(u.Email); err != nil {
		return nil, 0, err
	}
	if !s.passwordMeetsPolicy(u.Password) {
		return nil, models.CreateInvalidPassword, nil
	}
	if s.cfg.RequiresQuestionAndAnswer && (strings.TrimSpace(u.Question) == "" || strings.TrimSpace(u.Answer) == "") {
		return nil, models.CreateInvalidAnswer, nil
	}

	salt := cryptox.GenerateSalt(s.cfg.MinSaltLength, s.cfg.MaxSaltLength)
	account := &models.Account{
		ID:           uuid.NewString(),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: cryptox.HashPassword(u.Password, salt),
		PasswordSalt: salt,
		Question:     u.Question,
		IsApproved:   u.IsApproved,
	}

	if u.Answer != "" {
		answer, answerSalt, err := s.sealAnswer(u.Answer)
		if err != nil {
			return nil, 0, err
		}
		account.Answer = answer
		account.AnswerSalt = answerSalt
	}

	status := models.CreateOK
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Accounts(tx)

		if _, err := repo.GetByUsername(ctx, u.Username); err == nil {
			status = models.CreateDuplicateUsername
			return nil
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}

		if s.cfg.RequiresUniqueEmail && u.Email != "" {
			inUse, err := repo.EmailInUse(ctx, u.Email, account.ID)
			if err != nil {
				return err
			}
			if inUse {
				status = models.CreateDuplicateEmail
				return nil
			}
		}

		_, err := repo.Create(ctx, account)
		if isUniqueViolation(err) {
			return errDuplicateInsert
		}
		return err
	})
	if errors.Is(err, errDuplicateInsert) {
		// Lost a race with a concurrent CreateUser; the unique index is
		// the authority.
		return nil, models.CreateDuplicateUsername, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if status != models.CreateOK {
		return nil, status, nil
	}

	s.log.Info(ctx, "account created", "username", account.Username)
	return account, models.CreateOK, nil
}

// DeleteUser removes the account. Role associations and other owned data
// are removed when deleteAllRelatedData is set; returns false when no
// such account exists.
func (s *Service) DeleteUser(ctx context.Context, username string, deleteAllRelatedData bool) (bool, error) {
	if err := validation.Name(username); err != nil {
		return false, err
	}

	deleted := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.rm.Accounts(tx).GetByUsername(ctx, username)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if deleteAllRelatedData {
			if err := s.rm.Roles(tx).DeleteMembersOfAccount(ctx, account.ID); err != nil {
				return err
			}
		}
		if err := s.rm.Accounts(tx).Delete(ctx, account.ID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		s.log.Info(ctx, "account deleted", "username", username)
	}
	return deleted, nil
}

// ValidateUser verifies the password and drives the lockout state machine.
// Unknown users cost a digest computation so lookups are not
// distinguishable by timing; locked and unapproved accounts always fail.
func (s *Service) ValidateUser(ctx context.Context, username, password string) (bool, error) {
	if err := validation.Name(username); err != nil {
		return false, err
	}
	if password == "" {
		return false, nil
	}

	repo := s.rm.Accounts(s.db)
	account, err := repo.GetByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		// Equalize timing with the stored-digest path.
		cryptox.HashPassword(password, cryptox.GenerateSalt(s.cfg.MinSaltLength, s.cfg.MaxSaltLength))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if account.IsLockedOut {
		if !s.lockoutExpired(account) {
			return false, nil
		}
		if err := repo.Unlock(ctx, account.ID); err != nil {
			return false, err
		}
		// Unlock cleared the counter and window in storage; mirror that
		// here so a following failure opens a fresh window instead of
		// counting on top of the stale pre-lock attempts.
		account.IsLockedOut = false
		account.FailedAttempts = 0
		account.WindowStart = time.Time{}
	}

	if !cryptox.VerifyDigest(account.PasswordHash, password, account.PasswordSalt) {
		if err := s.recordFailure(ctx, account); err != nil {
			return false, err
		}
		return false, nil
	}

	if !account.IsApproved {
		return false, nil
	}

	if err := repo.ResetAttempts(ctx, account.ID, s.now()); err != nil {
		return false, err
	}
	return true, nil
}

// lockoutExpired reports whether a configured lockout duration has passed
// since the account was locked. A LockoutTime of zero means locks never
// expire on their own.
func (s *Service) lockoutExpired(a *models.Account) bool {
	if s.cfg.LockoutTimeMinutes <= 0 || a.LastLockout.IsZero() {
		return false
	}
	return s.now().Sub(a.LastLockout) >= time.Duration(s.cfg.LockoutTimeMinutes)*time.Minute
}

// recordFailure advances the sliding attempt window and locks the account
// once the threshold is reached within it.
func (s *Service) recordFailure(ctx context.Context, a *models.Account) error {
	now := s.now()
	window := time.Duration(s.cfg.PasswordAttemptWindowMinutes) * time.Minute

	attempts := a.FailedAttempts + 1
	windowStart := a.WindowStart
	if windowStart.IsZero() || now.Sub(windowStart) > window {
		attempts = 1
		windowStart = now
	}

	lock := attempts >= s.cfg.MaxInvalidPasswordAttempts
	if err := s.rm.Accounts(s.db).RecordFailure(ctx, a.ID, attempts, windowStart, lock, now); err != nil {
		return err
	}
	if lock {
		s.log.Warn(ctx, "account locked", "username", a.Username, "attempts", attempts)
	}
	return nil
}

// GetUser fetches an account by username. When online is set the lookup
// also refreshes the activity timestamp counted by
// GetNumberOfUsersOnline.
func (s *Service) GetUser(ctx context.Context, username string, online bool) (*models.Account, error) {
	if err := validation.Name(username); err != nil {
		return nil, err
	}

	repo := s.rm.Accounts(s.db)
	account, err := repo.GetByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", common.ErrUserNotFound, username)
	}
	if err != nil {
		return nil, err
	}

	if online {
		if err := repo.TouchActivity(ctx, account.ID, s.now()); err != nil {
			return nil, err
		}
	}
	return account, nil
}

// GetUserByID fetches an account by its identifier.
func (s *Service) GetUserByID(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.rm.Accounts(s.db).GetByID(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %q", common.ErrUserNotFound, id)
	}
	return account, err
}

// GetAllUsers returns one page of accounts ordered by username, plus the
// total account count.
func (s *Service) GetAllUsers(ctx context.Context, pageIndex, pageSize int) ([]models.Account, int, error) {
	if err := checkPaging(pageIndex, pageSize); err != nil {
		return nil, 0, err
	}

	repo := s.rm.Accounts(s.db)
	page, err := repo.List(ctx, pageIndex*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// FindUsersByName returns the page of accounts whose username contains the
// substring (case-insensitive), plus the total match count.
func (s *Service) FindUsersByName(ctx context.Context, substring string, pageIndex, pageSize int) ([]models.Account, int, error) {
	if err := checkPaging(pageIndex, pageSize); err != nil {
		return nil, 0, err
	}

	repo := s.rm.Accounts(s.db)
	page, err := repo.SearchByUsername(ctx, substring, pageIndex*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.CountByUsername(ctx, substring)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// FindUsersByEmail is FindUsersByName over the email column.
func (s *Service) FindUsersByEmail(ctx context.Context, substring string, pageIndex, pageSize int) ([]models.Account, int, error) {
	if err := checkPaging(pageIndex, pageSize); err != nil {
		return nil, 0, err
	}

	repo := s.rm.Accounts(s.db)
	page, err := repo.SearchByEmail(ctx, substring, pageIndex*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.CountByEmail(ctx, substring)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

func checkPaging(pageIndex, pageSize int) error {
	if pageIndex < 0 || pageSize < 1 {
		return fmt.Errorf("%w: pageIndex must be >= 0 and pageSize >= 1", common.ErrMalformedInput)
	}
	// Keeps the pageIndex*pageSize offset from overflowing.
	if pageIndex > math.MaxInt32/pageSize {
		return fmt.Errorf("%w: page out of range", common.ErrMalformedInput)
	}
	return nil
}

// GetNumberOfUsersOnline counts accounts whose last activity falls within
// the configured session window.
func (s *Service) GetNumberOfUsersOnline(ctx context.Context) (int, error) {
	since := s.now().Add(-time.Duration(s.cfg.SessionTimeMinutes) * time.Minute)
	return s.rm.Accounts(s.db).CountOnline(ctx, since)
}

// ChangePassword verifies the old password and replaces the digest using a
// fresh salt; the previous hash and salt are discarded. A wrong old
// password is an expected outcome (false), a policy-violating new one is
// malformed input.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (bool, error) {
	if err := validation.Name(username); err != nil {
		return false, err
	}
	if !s.passwordMeetsPolicy(newPassword) {
		return false, fmt.Errorf("%w: new password does not meet requirements", common.ErrMalformedInput)
	}

	account, err := s.rm.Accounts(s.db).GetByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return false, fmt.Errorf("%w: %q", common.ErrUserNotFound, username)
	}
	if err != nil {
		return false, err
	}
	if account.IsLockedOut && !s.lockoutExpired(account) {
		return false, common.ErrAccountLocked
	}

	if !cryptox.VerifyDigest(account.PasswordHash, oldPassword, account.PasswordSalt) {
		if err := s.recordFailure(ctx, account); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := s.storeNewPassword(ctx, account.ID, newPassword); err != nil {
		return false, err
	}
	s.log.Info(ctx, "password changed", "username", username)
	return true, nil
}

// ResetPassword assigns a random password after verifying the security
// answer (when required) and returns it. Disabled unless
// enablePasswordReset is configured.
func (s *Service) ResetPassword(ctx context.Context, username, answer string) (string, error) {
	if !s.cfg.EnablePasswordReset {
		return "", common.ErrResetDisabled
	}
	if err := validation.Name(username); err != nil {
		return "", err
	}

	account, err := s.rm.Accounts(s.db).GetByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return "", fmt.Errorf("%w: %q", common.ErrUserNotFound, username)
	}
	if err != nil {
		return "", err
	}
	if account.IsLockedOut && !s.lockoutExpired(account) {
		return "", common.ErrAccountLocked
	}

	if s.cfg.RequiresQuestionAndAnswer {
		ok, err := s.answerMatches(account, answer)
		if err != nil {
			return "", err
		}
		if !ok {
			if err := s.recordFailure(ctx, account); err != nil {
				return "", err
			}
			return "", common.ErrWrongAnswer
		}
	}

	length := s.cfg.MinRequiredPasswordLength
	if length < 14 {
		length = 14
	}
	password := cryptox.RandomPassword(length, s.cfg.MinRequiredNonAlphanumericChars)

	if err := s.storeNewPassword(ctx, account.ID, password); err != nil {
		return "", err
	}
	s.log.Info(ctx, "password reset", "username", username)
	return password, nil
}

// GetPassword exists for contract completeness: passwords are stored as
// one-way digests, so retrieval is never possible.
func (s *Service) GetPassword(ctx context.Context, username, answer string) (string, error) {
	return "", common.ErrRetrievalDisabled
}

// ChangeQuestionAndAnswer replaces the security question and answer after
// verifying the password.
func (s *Service) ChangeQuestionAndAnswer(ctx context.Context, username, password, question, answer string) (bool, error) {
	if err := validation.Name(username); err != nil {
		return false, err
	}
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return false, fmt.Errorf("%w: question and answer are required", common.ErrMalformedInput)
	}

	account, err := s.rm.Accounts(s.db).GetByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return false, fmt.Errorf("%w: %q", common.ErrUserNotFound, username)
	}
	if err != nil {
		return false, err
	}
	if account.IsLockedOut && !s.lockoutExpired(account) {
		return false, common.ErrAccountLocked
	}

	if !cryptox.VerifyDigest(account.PasswordHash, password, account.PasswordSalt) {
		if err := s.recordFailure(ctx, account); err != nil {
			return false, err
		}
		return false, nil
	}

	sealed, answerSalt, err := s.sealAnswer(answer)
	if err != nil {
		return false, err
	}
	if err := s.rm.Accounts(s.db).UpdateQuestionAnswer(ctx, account.ID, question, sealed, answerSalt); err != nil {
		return false, err
	}
	return true, nil
}

// UnlockUser clears the lock state and attempt counter. Returns false when
// the user does not exist.
func (s *Service) UnlockUser(ctx context.Context, username string) (bool, error) {
	if err := validation.Name(username); err != nil {
		return false, err
	}

	repo := s.rm.Accounts(s.db)
	account, err := repo.GetByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := repo.Unlock(ctx, account.ID); err != nil {
		return false, err
	}
	s.log.Info(ctx, "account unlocked", "username", username)
	return true, nil
}

// UpdateUser updates the mutable profile fields (email, approval). Email
// uniqueness is re-checked in the same transaction when configured.
func (s *Service) UpdateUser(ctx context.Context, username, email string, isApproved bool) error {
	if err := validation.Name(username); err != nil {
		return err
	}
	if err := validation.Email(email); err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Accounts(tx)
		account, err := repo.GetByUsername(ctx, username)
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: %q", common.ErrUserNotFound, username)
		}
		if err != nil {
			return err
		}

		if s.cfg.RequiresUniqueEmail && email != "" {
			inUse, err := repo.EmailInUse(ctx, email, account.ID)
			if err != nil {
				return err
			}
			if inUse {
				return fmt.Errorf("%w: email already in use", common.ErrMalformedInput)
			}
		}

		return repo.UpdateProfile(ctx, account.ID, email, isApproved)
	})
}

// --- helpers below ---

func (s *Service) storeNewPassword(ctx context.Context, id, password string) error {
	salt := cryptox.GenerateSalt(s.cfg.MinSaltLength, s.cfg.MaxSaltLength)
	return s.rm.Accounts(s.db).UpdatePassword(ctx, id, cryptox.HashPassword(password, salt), salt)
}

// sealAnswer stores the security answer encrypted when retrieval is
// enabled, otherwise as a salted digest. Answers compare
// case-insensitively, so they are folded before sealing.
func (s *Service) sealAnswer(answer string) (sealed, salt []byte, err error) {
	folded := strings.ToLower(strings.TrimSpace(answer))
	if s.cfg.EnablePasswordRetrieval {
		sealed, err = cryptox.Encrypt([]byte(folded), s.cfg.Key())
		return sealed, nil, err
	}
	salt = cryptox.GenerateSalt(s.cfg.MinSaltLength, s.cfg.MaxSaltLength)
	return cryptox.HashPassword(folded, salt), salt, nil
}

func (s *Service) answerMatches(a *models.Account, answer string) (bool, error) {
	if len(a.Answer) == 0 {
		return false, nil
	}
	folded := strings.ToLower(strings.TrimSpace(answer))
	if a.AnswerSalt == nil {
		stored, err := cryptox.Decrypt(a.Answer, s.cfg.Key())
		if err != nil {
			return false, err
		}
		return string(stored) == folded, nil
	}
	return cryptox.VerifyDigest(a.Answer, folded, a.AnswerSalt), nil
}

func (s *Service) passwordMeetsPolicy(password string) bool {
	if len(password) < s.cfg.MinRequiredPasswordLength {
		return false
	}
	nonAlnum := 0
	for _, r := range password {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			nonAlnum++
		}
	}
	if nonAlnum < s.cfg.MinRequiredNonAlphanumericChars {
		return false
	}
	if p := s.cfg.StrengthPattern(); p != nil && !p.MatchString(password) {
		return false
	}
	return true
}
