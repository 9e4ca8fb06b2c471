// Package identitydb holds all the migrations for the identity database
package identitydb

import "github.com/uptrace/bun/migrate"

// Migrations is the collection the numbered migration files register into
var Migrations = migrate.NewMigrations()
