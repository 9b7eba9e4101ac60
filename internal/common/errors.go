// Package common defines shared constants and sentinel errors used across
// the identity store. Callers should use errors.Is to match these values.
//
// Errors fall into three tiers:
//   - invalid-argument: a required parameter is missing entirely
//   - malformed-input: a parameter is present but structurally invalid
//   - provider: the operation is well-formed but violates a domain rule
//
// Storage failures are not represented here; repositories wrap and
// propagate them.
package common

import "errors"

var (
	// Invalid-argument tier.
	ErrInvalidArgument = errors.New("invalid argument")

	// Malformed-input tier.
	ErrMalformedInput = errors.New("malformed input")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Provider tier: role store.
	ErrRoleExists    = errors.New("role already exists")
	ErrRoleNotFound  = errors.New("role does not exist")
	ErrRolePopulated = errors.New("role still has members")

	// Provider tier: membership store.
	ErrUserNotFound      = errors.New("user does not exist")
	ErrAccountLocked     = errors.New("account is locked out")
	ErrWrongAnswer       = errors.New("security answer does not match")
	ErrRetrievalDisabled = errors.New("password retrieval is disabled")
	ErrResetDisabled     = errors.New("password reset is disabled")

	// Configuration errors (fail fast at construction).
	ErrUnknownOption = errors.New("unrecognized configuration option")
	ErrBadConfig     = errors.New("invalid configuration")

	// Session token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
