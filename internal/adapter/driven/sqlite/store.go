package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

var _ driven.SecretSession = (*Store)(nil)

// Store is a SecretRepo that owns its database connections.
type Store struct {
	*SecretRepo
	db *DB
}

// OpenStore opens the database at dbPath, applies migrations and returns a
// store that must be closed before the underlying volume is unmounted.
// It matches driven.StoreOpener.
func OpenStore(ctx context.Context, dbPath string) (driven.SecretSession, error) {
	db, err := NewDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", db.Path(), err)
	}

	return &Store{SecretRepo: NewSecretRepo(db), db: db}, nil
}

// Close closes the database connections.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.db.Path(), err)
	}
	return nil
}
