package driven

import (
	"errors"

	"github.com/ericfisherdev/seccin/internal/domain/model"
)

var (
	// ErrBadPassphrase is returned when a backup cannot be decrypted.
	ErrBadPassphrase = errors.New("backup passphrase rejected")
	// ErrUnsupportedVersion is returned for backup documents of an unknown version.
	ErrUnsupportedVersion = errors.New("unsupported backup version")
)

// BackupWriter serialises secrets into an encrypted backup.
type BackupWriter interface {
	WriteBackup(secrets []model.Secret) error
}

// BackupReader reads secrets back out of an encrypted backup.
type BackupReader interface {
	ReadBackup() ([]model.Secret, error)
}
