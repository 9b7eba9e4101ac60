package identitystore

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/identitystore/internal/cryptox"
)

func TestNew_WiresCapabilities(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DSN = "postgres://localhost/identity"
	require.NoError(t, cfg.Validate())

	s := New(db, cfg)
	defer s.Close()

	assert.NotNil(t, s.Membership())
	assert.NotNil(t, s.Roles())
	// No encryption key configured, so no token manager.
	assert.Nil(t, s.Sessions())
}

func TestNew_SessionManagerNeedsKey(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)

	key, err := cryptox.GenerateKey(256)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DSN = "postgres://localhost/identity"
	cfg.EncryptionKey = cryptox.EncodeKey(key)
	require.NoError(t, cfg.Validate())

	s := New(db, cfg)
	defer s.Close()

	require.NotNil(t, s.Sessions())
	token, err := s.Sessions().Issue("u-1")
	require.NoError(t, err)
	accountID, err := s.Sessions().Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", accountID)
}

func TestConfigFromMap_ProviderOptions(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]string{
		"connectionStringName":       "postgres://localhost/identity",
		"maxInvalidPasswordAttempts": "3",
		"requiresUniqueEmail":        "true",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxInvalidPasswordAttempts)
	assert.True(t, cfg.RequiresUniqueEmail)

	_, err = ConfigFromMap(map[string]string{
		"connectionStringName": "postgres://localhost/identity",
		"noSuchOption":         "1",
	})
	assert.ErrorIs(t, err, ErrUnknownOption)
}
