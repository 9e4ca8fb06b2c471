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
		log.Println("creating identities table...")
		if err := mghelper.CreateSchema(ctx, db, &identitystore.IdentityDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &identitystore.IdentityDao{}, "status")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping identities table...")
		return mghelper.DropTables(ctx, db, &identitystore.IdentityDao{})
	})
}
