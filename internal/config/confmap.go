package config

import (
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/identitystore/internal/common"
)

// FromMap builds a Config from the flat option map the hosting framework
// passes at provider initialization. Keys mirror the hosting contract;
// unrecognized keys are rejected so misspelled options do not silently
// fall back to defaults. The result is validated before being returned.
func FromMap(options map[string]string) (*Config, error) {
	c := Default()

	for key, value := range options {
		// The hosting contract passes every recognized option, using the
		// empty string for "not set"; keep the default in that case.
		if value == "" {
			continue
		}
		var err error
		switch key {
		case "connectionStringName":
			c.DSN = value
		case "enablePasswordRetrieval":
			c.EnablePasswordRetrieval, err = parseBool(key, value)
		case "enablePasswordReset":
			c.EnablePasswordReset, err = parseBool(key, value)
		case "maxInvalidPasswordAttempts":
			c.MaxInvalidPasswordAttempts, err = parseInt(key, value)
		case "minRequiredNonAlphanumericCharacters":
			c.MinRequiredNonAlphanumericChars, err = parseInt(key, value)
		case "passwordAttemptWindow":
			c.PasswordAttemptWindowMinutes, err = parseInt(key, value)
		case "lockoutTime":
			c.LockoutTimeMinutes, err = parseInt(key, value)
		case "sessionTime":
			c.SessionTimeMinutes, err = parseInt(key, value)
		case "passwordStrengthRegularExpression":
			c.PasswordStrengthRegex = value
		case "requiresQuestionAndAnswer":
			c.RequiresQuestionAndAnswer, err = parseBool(key, value)
		case "requiresUniqueEmail":
			c.RequiresUniqueEmail, err = parseBool(key, value)
		case "encryptionKey":
			c.EncryptionKey = value
		case "minSaltCharacters":
			c.MinSaltLength, err = parseInt(key, value)
		case "maxSaltCharacters":
			c.MaxSaltLength, err = parseInt(key, value)
		case "minRequiredPasswordLength":
			c.MinRequiredPasswordLength, err = parseInt(key, value)
		default:
			return nil, fmt.Errorf("%w: %q", common.ErrUnknownOption, key)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: option %q: %q is not a boolean", common.ErrBadConfig, key, value)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: option %q: %q is not an integer", common.ErrBadConfig, key, value)
	}
	return v, nil
}
