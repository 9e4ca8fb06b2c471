package templatestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FSStore keeps reference frames on the local filesystem, one directory
// per wallet. Wallet addresses are lowercased so lookups are
// case-insensitive.
type FSStore struct {
	root string
}

// NewFSStore creates the store rooted at the given directory.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create template root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) walletDir(walletAddress string) string {
	return filepath.Join(s.root, strings.ToLower(walletAddress))
}

// Save stores a reference frame and returns its identifier.
func (s *FSStore) Save(ctx context.Context, walletAddress string, frame []byte) (string, error) {
	dir := s.walletDir(walletAddress)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create wallet directory: %w", err)
	}

	id := uuid.New().String()
	if err := os.WriteFile(filepath.Join(dir, id), frame, 0o600); err != nil {
		return "", fmt.Errorf("write template: %w", err)
	}
	return id, nil
}

// List returns all reference frames for the wallet, or ErrNoTemplates.
func (s *FSStore) List(ctx context.Context, walletAddress string) ([]Reference, error) {
	dir := s.walletDir(walletAddress)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, ErrNoTemplates
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet directory: %w", err)
	}

	refs := make([]Reference, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		frame, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		refs = append(refs, Reference{ID: entry.Name(), Frame: frame})
	}

	if len(refs) == 0 {
		return nil, ErrNoTemplates
	}
	return refs, nil
}

// Remove deletes all reference frames for the wallet.
func (s *FSStore) Remove(ctx context.Context, walletAddress string) error {
	if err := os.RemoveAll(s.walletDir(walletAddress)); err != nil {
		return fmt.Errorf("remove wallet templates: %w", err)
	}
	return nil
}
