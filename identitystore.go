// Package identitystore is a PostgreSQL-backed identity store: user
// accounts with salted password digests and sliding-window lockout, and
// case-insensitive role membership. It is consumed in-process by a
// hosting web framework through two narrow capabilities, MembershipStore
// and RoleStore.
//
// Errors follow a three-tier taxonomy. Invalid-argument
// (ErrInvalidArgument) means a required parameter was missing entirely;
// malformed-input (ErrMalformedInput) means a parameter was present but
// structurally invalid; the provider tier (ErrRoleExists, ErrUserNotFound,
// ...) means the operation was well-formed but violated a domain rule.
// Storage failures are wrapped and propagated as-is.
package identitystore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrijs2005/identitystore/internal/config"
	"github.com/dmitrijs2005/identitystore/internal/logging"
	"github.com/dmitrijs2005/identitystore/internal/membership"
	"github.com/dmitrijs2005/identitystore/internal/repositories/repomanager"
	"github.com/dmitrijs2005/identitystore/internal/rolestore"
	"github.com/dmitrijs2005/identitystore/internal/session"
)

// ConfigFromMap builds and validates a Config from the flat option map
// the hosting framework passes at provider initialization. Unrecognized
// keys fail with ErrUnknownOption.
func ConfigFromMap(options map[string]string) (*Config, error) {
	return config.FromMap(options)
}

// DefaultConfig returns a Config with the hosting contract's defaults.
// The DSN must still be set before use.
func DefaultConfig() *Config {
	return config.Default()
}

// Store bundles the two capabilities over one database handle.
type Store struct {
	db         *sql.DB
	membership *membership.Service
	roles      *rolestore.Service
	sessions   *session.Manager
}

type Option func(*storeOptions)

type storeOptions struct {
	log logging.Logger
}

// WithLogger routes the store's structured logs to the given slog logger.
// Without it the store is silent.
func WithLogger(l *slog.Logger) Option {
	return func(o *storeOptions) { o.log = logging.NewSlogLogger(l) }
}

// Open validates the configuration, connects to PostgreSQL, runs the
// schema migrations, and wires up the stores.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return newStore(db, rm, cfg, opts...), nil
}

// New wires a Store over an already opened connection without running
// migrations. The configuration must already be validated.
func New(db *sql.DB, cfg *Config, opts ...Option) *Store {
	return newStore(db, repomanager.NewPostgresRepositoryManager(), cfg, opts...)
}

func newStore(db *sql.DB, rm repomanager.RepositoryManager, cfg *Config, opts ...Option) *Store {
	o := &storeOptions{log: logging.Nop{}}
	for _, opt := range opts {
		opt(o)
	}

	s := &Store{
		db:         db,
		membership: membership.NewService(db, rm, cfg, o.log),
		roles:      rolestore.NewService(db, rm, o.log),
	}
	if cfg.SessionTimeMinutes > 0 && cfg.Key() != nil {
		s.sessions = session.NewManager(cfg.Key(), time.Duration(cfg.SessionTimeMinutes)*time.Minute)
	}
	return s
}

// Membership returns the account-side capability.
func (s *Store) Membership() MembershipStore { return s.membership }

// Roles returns the role-side capability.
func (s *Store) Roles() RoleStore { return s.roles }

// Sessions returns the session token manager, or nil when sessionTime is
// zero or no encryption key is configured.
func (s *Store) Sessions() *SessionManager { return s.sessions }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

var (
	_ MembershipStore = (*membership.Service)(nil)
	_ RoleStore       = (*rolestore.Service)(nil)
)
