package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/identitystore/internal/dbx"
	"github.com/dmitrijs2005/identitystore/internal/repositories/accounts"
	"github.com/dmitrijs2005/identitystore/internal/repositories/roles"
)

// RepositoryManager vends repository implementations bound to either a
// plain connection or an open transaction, and exposes the schema
// migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Roles(db dbx.DBTX) roles.Repository
}
