// Package session mints and verifies the session tokens governed by the
// sessionTime configuration option. Tokens are HS256 JWTs bound to an
// account ID; the signing secret is derived from the store's symmetric
// key so the raw encryption key is never reused directly.
package session

import (
	"crypto/sha256"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/identitystore/internal/common"
)

// Claims carries the registered claims plus the account identifier.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
}

type Manager struct {
	secret   []byte
	validity time.Duration
}

// NewManager derives the signing secret from the configured key and fixes
// the token validity.
func NewManager(key []byte, validity time.Duration) *Manager {
	h := sha256.New()
	h.Write([]byte("identitystore/session:"))
	h.Write(key)
	return &Manager{secret: h.Sum(nil), validity: validity}
}

// Issue mints a token for the account.
func (m *Manager) Issue(accountID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
		},
		AccountID: accountID,
	})
	return token.SignedString(m.secret)
}

// Verify checks the token and returns the account ID it was issued for.
func (m *Manager) Verify(tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}
	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.AccountID, nil
}
