package identitydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/jobmesh/identity-middleware/pkg/identitystore"
	mghelper "github.com/jobmesh/identity-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating credentials table...")
		if err := mghelper.CreateSchema(ctx, db, &identitystore.CredentialDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &identitystore.CredentialDao{}, "wallet_address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping credentials table...")
		return mghelper.DropTables(ctx, db, &identitystore.CredentialDao{})
	})
}
