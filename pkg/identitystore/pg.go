package identitystore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/uptrace/bun"

	"github.com/jobmesh/identity-middleware/pkg/identity"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the identity store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateIdentity(ctx context.Context, ident *identity.Identity, credential *webauthn.Credential) error {
	credentialJSON, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	err = s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(toIdentityDao(ident)).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create identity: %w", err)
		}

		credentialDao := &CredentialDao{
			WalletAddress: ident.WalletAddress,
			CredentialID:  base64.RawURLEncoding.EncodeToString(credential.ID),
			Credential:    credentialJSON,
		}
		if _, err := tx.NewInsert().
			Model(credentialDao).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create credential: %w", err)
		}

		return nil
	})
	return err
}

func (s *pgStore) GetIdentity(ctx context.Context, walletAddress string) (*identity.Identity, error) {
	dao := new(IdentityDao)

	err := s.db.NewSelect().
		Model(dao).
		Where("wallet_address = ?", walletAddress).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return toIdentity(dao), nil
}

func (s *pgStore) IdentityExists(ctx context.Context, walletAddress string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*IdentityDao)(nil)).
		Where("wallet_address = ?", walletAddress).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check identity exists: %w", err)
	}
	return exists, nil
}

func (s *pgStore) Credentials(ctx context.Context, walletAddress string) ([]webauthn.Credential, error) {
	var daos []CredentialDao

	err := s.db.NewSelect().
		Model(&daos).
		Where("wallet_address = ?", walletAddress).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	credentials := make([]webauthn.Credential, 0, len(daos))
	for _, dao := range daos {
		var credential webauthn.Credential
		if err := json.Unmarshal(dao.Credential, &credential); err != nil {
			return nil, fmt.Errorf("failed to decode credential %s: %w", dao.CredentialID, err)
		}
		credentials = append(credentials, credential)
	}

	return credentials, nil
}

func (s *pgStore) DeleteIdentity(ctx context.Context, walletAddress string) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*CredentialDao)(nil)).
			Where("wallet_address = ?", walletAddress).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete credentials: %w", err)
		}

		if _, err := tx.NewDelete().
			Model((*IdentityDao)(nil)).
			Where("wallet_address = ?", walletAddress).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete identity: %w", err)
		}

		return nil
	})
}
