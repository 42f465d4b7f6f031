package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/seccin/internal/domain/model"
)

// ErrSecretNotFound is returned when no secret is stored for a service.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore defines the driven port for secret persistence inside the
// mounted coffin. Values cross this boundary as plaintext; confidentiality is
// provided by the encrypted volume the store lives in.
type SecretStore interface {
	// Set stores or replaces the secret for the given service.
	Set(ctx context.Context, service, value string) error

	// Get retrieves the secret for the exact service name.
	// Returns ErrSecretNotFound if no secret exists for that service.
	Get(ctx context.Context, service string) (model.Secret, error)

	// List returns all stored secrets ordered by service.
	List(ctx context.Context) ([]model.Secret, error)

	// Services returns all service names in ascending order.
	Services(ctx context.Context) ([]string, error)

	// Delete removes the secret for the given service.
	// Returns ErrSecretNotFound if no secret exists for that service.
	Delete(ctx context.Context, service string) error
}

// SecretSession is a SecretStore bound to an open database file. Close must
// be called before the volume holding the file is unmounted.
type SecretSession interface {
	SecretStore
	Close() error
}

// StoreOpener opens (creating if needed) the secret database at dbPath.
type StoreOpener func(ctx context.Context, dbPath string) (SecretSession, error)
