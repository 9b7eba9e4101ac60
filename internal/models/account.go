// Package models defines the persistent entities of the identity store.
package models

import "time"

// Account is a stored identity with credentials, profile data, and lockout
// state. Password material is kept as a salted one-way digest; the security
// answer is either a salted digest or, when retrieval is enabled, a
// ciphertext (AnswerSalt is nil in that case).
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	PasswordSalt []byte
	Question     string
	Answer       []byte
	AnswerSalt   []byte
	IsApproved   bool
	IsLockedOut  bool

	// Sliding-window attempt tracking. WindowStart is the zero time when no
	// window is open; LastLockout records when the account last transitioned
	// to locked.
	FailedAttempts int
	WindowStart    time.Time
	LastLockout    time.Time

	LastActivity time.Time
	CreatedAt    time.Time
}

// CreateStatus reports the business outcome of CreateUser. Expected
// rule violations (duplicates, weak passwords) are statuses rather than
// errors so callers can branch without unwrapping.
type CreateStatus int

const (
	CreateOK CreateStatus = iota
	CreateDuplicateUsername
	CreateDuplicateEmail
	CreateInvalidPassword
	CreateInvalidAnswer
)

func (s CreateStatus) String() string {
	switch s {
	case CreateOK:
		return "ok"
	case CreateDuplicateUsername:
		return "duplicate username"
	case CreateDuplicateEmail:
		return "duplicate email"
	case CreateInvalidPassword:
		return "invalid password"
	case CreateInvalidAnswer:
		return "invalid question or answer"
	default:
		return "unknown"
	}
}
