// Package validation holds the pure input checks shared by the membership
// and role stores. Nothing here touches storage; every mutating operation
// runs these before issuing a single statement.
package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/identitystore/internal/common"
)

// MaxNameLength is the longest accepted user or role name, in characters.
const MaxNameLength = 256

// Name checks a user or role name. Empty, whitespace-only, over-long names
// and names containing a comma (the list separator in batch APIs) fail with
// the malformed-input tier.
func Name(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: name is empty or whitespace", common.ErrMalformedInput)
	}
	if strings.Contains(s, ",") {
		return fmt.Errorf("%w: name contains a comma", common.ErrMalformedInput)
	}
	if utf8.RuneCountInString(s) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", common.ErrMalformedInput, MaxNameLength)
	}
	return nil
}

// Names checks a batch parameter. A nil slice is the invalid-argument tier
// (a required parameter was not supplied at all); each element is then
// checked with Name.
func Names(list []string) error {
	if list == nil {
		return fmt.Errorf("%w: name list is nil", common.ErrInvalidArgument)
	}
	for _, s := range list {
		if err := Name(s); err != nil {
			return err
		}
	}
	return nil
}

// Email checks basic address syntax. Only used when unique-email
// enforcement is configured; an empty address is allowed.
func Email(s string) error {
	if s == "" {
		return nil
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("%w: invalid email address", common.ErrMalformedInput)
	}
	return nil
}
