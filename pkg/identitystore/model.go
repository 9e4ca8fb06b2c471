package identitystore

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/jobmesh/identity-middleware/pkg/identity"
)

// IdentityDao is a data access object that maps directly to the 'identities' table in PostgreSQL.
type IdentityDao struct {
	bun.BaseModel `bun:"table:identities,alias:i"`
	ID            int64      `bun:"id,pk,autoincrement"`
	WalletAddress string     `bun:"wallet_address,unique,notnull,type:varchar(42)"`
	Status        string     `bun:"status,notnull,type:varchar(16)"`
	BiometricHash string     `bun:"biometric_hash,notnull,type:varchar(66)"`
	CredentialID  string     `bun:"credential_id,notnull,type:varchar(255)"`
	BindingTxHash *string    `bun:"binding_tx_hash,type:varchar(66)"`
	EnrolledAt    *time.Time `bun:"enrolled_at"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
}

// CredentialDao is a data access object that maps directly to the 'credentials' table in PostgreSQL.
// The full credential record is stored as JSON so new authenticator
// attributes survive without schema changes.
type CredentialDao struct {
	bun.BaseModel `bun:"table:credentials,alias:c"`
	ID            int64           `bun:"id,pk,autoincrement"`
	WalletAddress string          `bun:"wallet_address,notnull,type:varchar(42)"`
	CredentialID  string          `bun:"credential_id,unique,notnull,type:varchar(255)"`
	Credential    json.RawMessage `bun:"credential,notnull,type:jsonb"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,default:current_timestamp"`
}

// toIdentityDao converts an identity.Identity to IdentityDao.
func toIdentityDao(ident *identity.Identity) *IdentityDao {
	dao := &IdentityDao{
		WalletAddress: ident.WalletAddress,
		Status:        string(ident.Status),
		BiometricHash: ident.BiometricHash,
		CredentialID:  ident.CredentialID,
		EnrolledAt:    ident.EnrolledAt,
	}

	if ident.BindingTxHash != "" {
		dao.BindingTxHash = &ident.BindingTxHash
	}

	return dao
}

// toIdentity converts an IdentityDao to identity.Identity.
func toIdentity(dao *IdentityDao) *identity.Identity {
	ident := &identity.Identity{
		WalletAddress: dao.WalletAddress,
		Status:        identity.Status(dao.Status),
		BiometricHash: dao.BiometricHash,
		CredentialID:  dao.CredentialID,
		EnrolledAt:    dao.EnrolledAt,
	}

	if dao.BindingTxHash != nil {
		ident.BindingTxHash = *dao.BindingTxHash
	}

	return ident
}
