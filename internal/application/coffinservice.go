package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/ericfisherdev/seccin/internal/domain/model"
	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

// EditFunc produces the new secret for a service from its current value.
// exists is false when the service has no secret yet. Returning an error
// aborts the edit and leaves the coffin untouched.
type EditFunc func(current string, exists bool) (string, error)

// InitOptions controls coffin creation.
type InitOptions struct {
	// Overwrite replaces an existing coffin at the target path.
	Overwrite bool
}

// CoffinService orchestrates every coffin operation as one session over the
// archive, the encrypted volume and the secret store. It depends only on
// port interfaces.
type CoffinService struct {
	archive   driven.Archive
	volume    driven.Volume
	openStore driven.StoreOpener
	workBase  string
	logger    *slog.Logger
}

// NewCoffinService creates a CoffinService. workBase is the directory session
// work dirs are created in ("" for the system temp dir); logger may be nil.
func NewCoffinService(archive driven.Archive, volume driven.Volume, openStore driven.StoreOpener, workBase string, logger *slog.Logger) *CoffinService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CoffinService{
		archive:   archive,
		volume:    volume,
		openStore: openStore,
		workBase:  workBase,
		logger:    logger,
	}
}

// CheckDependencies verifies the external crypto tooling is installed.
func (s *CoffinService) CheckDependencies() error {
	return s.volume.CheckDependencies()
}

// Exists reports whether a coffin file is present at path.
func (s *CoffinService) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat coffin: %w", err)
}

// Init creates a new, empty coffin at path protected by password.
func (s *CoffinService) Init(ctx context.Context, path, password string, opts InitOptions) error {
	if password == "" {
		return ErrEmptyPassword
	}

	exists, err := s.Exists(path)
	if err != nil {
		return err
	}
	if exists && !opts.Overwrite {
		return fmt.Errorf("%w: %s", ErrCoffinExists, path)
	}

	// Opening the store runs the migrations, which is all a new coffin needs.
	return s.withSession(ctx, "init", path, password, sessionCreate, func(context.Context, driven.SecretStore) error {
		return nil
	})
}

// Open returns the secret stored for the exact service name.
func (s *CoffinService) Open(ctx context.Context, path, password, service string) (model.Secret, error) {
	if err := model.ValidateServiceName(service); err != nil {
		return model.Secret{}, err
	}

	var secret model.Secret
	err := s.withSession(ctx, "open", path, password, sessionExisting, func(ctx context.Context, store driven.SecretStore) error {
		var err error
		secret, err = store.Get(ctx, service)
		return err
	})
	if err != nil {
		return model.Secret{}, err
	}
	return secret, nil
}

// Edit replaces the secret of service with the value returned by edit, which
// runs while the volume is mounted and receives the current value.
func (s *CoffinService) Edit(ctx context.Context, path, password, service string, edit EditFunc) error {
	if err := model.ValidateServiceName(service); err != nil {
		return err
	}

	return s.withSession(ctx, "edit", path, password, sessionExisting, func(ctx context.Context, store driven.SecretStore) error {
		current, err := store.Get(ctx, service)
		exists := err == nil
		if err != nil && !errors.Is(err, driven.ErrSecretNotFound) {
			return err
		}

		value, err := edit(current.Value, exists)
		if err != nil {
			return err
		}
		return store.Set(ctx, service, value)
	})
}

// Set stores value for service without prompting.
func (s *CoffinService) Set(ctx context.Context, path, password, service, value string) error {
	return s.Edit(ctx, path, password, service, func(string, bool) (string, error) {
		return value, nil
	})
}

// List returns the service names stored in the coffin, sorted.
func (s *CoffinService) List(ctx context.Context, path, password string) ([]string, error) {
	var services []string
	err := s.withSession(ctx, "list", path, password, sessionExisting, func(ctx context.Context, store driven.SecretStore) error {
		var err error
		services, err = store.Services(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return services, nil
}

// Delete removes the secret stored for service.
func (s *CoffinService) Delete(ctx context.Context, path, password, service string) error {
	if err := model.ValidateServiceName(service); err != nil {
		return err
	}

	return s.withSession(ctx, "delete", path, password, sessionExisting, func(ctx context.Context, store driven.SecretStore) error {
		return store.Delete(ctx, service)
	})
}

// Export writes every secret of the coffin to w and returns how many were written.
func (s *CoffinService) Export(ctx context.Context, path, password string, w driven.BackupWriter) (int, error) {
	var count int
	err := s.withSession(ctx, "export", path, password, sessionExisting, func(ctx context.Context, store driven.SecretStore) error {
		secrets, err := store.List(ctx)
		if err != nil {
			return err
		}
		if err := w.WriteBackup(secrets); err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
		count = len(secrets)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Import merges the secrets read from r into the coffin, replacing existing
// services of the same name. The backup is decrypted before the coffin is
// touched, so a bad passphrase never mounts the volume.
func (s *CoffinService) Import(ctx context.Context, path, password string, r driven.BackupReader) (int, error) {
	secrets, err := r.ReadBackup()
	if err != nil {
		return 0, fmt.Errorf("read backup: %w", err)
	}

	err = s.withSession(ctx, "import", path, password, sessionExisting, func(ctx context.Context, store driven.SecretStore) error {
		for _, secret := range secrets {
			if err := store.Set(ctx, secret.Service, secret.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(secrets), nil
}
