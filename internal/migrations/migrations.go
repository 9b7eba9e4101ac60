// Package migrations embeds the goose SQL migrations for the identity
// store schema (accounts, roles, account_roles).
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
