// Package config holds the immutable runtime settings of the identity
// store. A Config is built either directly or from the provider-style
// option map (see FromMap) and validated once at construction; anything
// wrong with key material, salt bounds, or the strength pattern fails
// fast here rather than per call.
package config

import (
	"fmt"
	"regexp"

	"github.com/dmitrijs2005/identitystore/internal/common"
	"github.com/dmitrijs2005/identitystore/internal/cryptox"
)

// Config holds runtime settings for the identity store.
//
// Durations are expressed in minutes, matching the hosting contract's
// option map. LockoutTime of zero means a locked account stays locked
// until an explicit administrative unlock.
type Config struct {
	DSN string

	EnablePasswordRetrieval bool
	EnablePasswordReset     bool

	MaxInvalidPasswordAttempts      int
	PasswordAttemptWindowMinutes    int
	LockoutTimeMinutes              int
	SessionTimeMinutes              int
	MinRequiredPasswordLength       int
	MinRequiredNonAlphanumericChars int
	PasswordStrengthRegex           string

	RequiresQuestionAndAnswer bool
	RequiresUniqueEmail       bool

	EncryptionKey string
	MinSaltLength int
	MaxSaltLength int

	key     []byte
	pattern *regexp.Regexp
}

// Salt length bounds accepted by Validate.
const (
	SaltLengthFloor   = 8
	SaltLengthCeiling = 128
)

// Default returns a Config with the defaults of the hosting contract.
func Default() *Config {
	return &Config{
		EnablePasswordReset:             true,
		MaxInvalidPasswordAttempts:      5,
		PasswordAttemptWindowMinutes:    10,
		SessionTimeMinutes:              15,
		MinRequiredPasswordLength:       6,
		MinRequiredNonAlphanumericChars: 0,
		MinSaltLength:                   16,
		MaxSaltLength:                   64,
	}
}

// Validate checks the configuration and caches derived values (decoded
// key, compiled strength pattern). It must be called before the Config is
// handed to the stores.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("%w: connection string is required", common.ErrBadConfig)
	}
	if c.MinSaltLength < SaltLengthFloor || c.MaxSaltLength > SaltLengthCeiling || c.MinSaltLength > c.MaxSaltLength {
		return fmt.Errorf("%w: salt length bounds must satisfy %d <= min <= max <= %d",
			common.ErrBadConfig, SaltLengthFloor, SaltLengthCeiling)
	}
	if c.MaxInvalidPasswordAttempts < 1 {
		return fmt.Errorf("%w: maxInvalidPasswordAttempts must be at least 1", common.ErrBadConfig)
	}
	if c.PasswordAttemptWindowMinutes < 1 {
		return fmt.Errorf("%w: passwordAttemptWindow must be at least 1 minute", common.ErrBadConfig)
	}
	if c.MinRequiredPasswordLength < 1 {
		return fmt.Errorf("%w: minRequiredPasswordLength must be at least 1", common.ErrBadConfig)
	}
	if c.MinRequiredNonAlphanumericChars > c.MinRequiredPasswordLength {
		return fmt.Errorf("%w: minRequiredNonAlphanumericCharacters exceeds minRequiredPasswordLength",
			common.ErrBadConfig)
	}

	if c.EncryptionKey != "" {
		key, err := cryptox.DecodeKey(c.EncryptionKey)
		if err != nil {
			return fmt.Errorf("%w: encryptionKey: %v", common.ErrBadConfig, err)
		}
		c.key = key
	} else if c.EnablePasswordRetrieval {
		return fmt.Errorf("%w: password retrieval requires an encryptionKey", common.ErrBadConfig)
	}

	if c.PasswordStrengthRegex != "" {
		p, err := regexp.Compile(c.PasswordStrengthRegex)
		if err != nil {
			return fmt.Errorf("%w: passwordStrengthRegularExpression: %v", common.ErrBadConfig, err)
		}
		c.pattern = p
	}

	return nil
}

// Key returns the decoded symmetric key, or nil when none is configured.
// Only meaningful after Validate.
func (c *Config) Key() []byte { return c.key }

// StrengthPattern returns the compiled password strength pattern, or nil.
// Only meaningful after Validate.
func (c *Config) StrengthPattern() *regexp.Regexp { return c.pattern }
