package driven

import (
	"context"
	"errors"
	"path/filepath"
)

var (
	// ErrMissingDependency is returned when an external binary is not installed.
	ErrMissingDependency = errors.New("missing external dependency")
	// ErrWrongPassword is returned when the crypto process rejects the password.
	ErrWrongPassword = errors.New("wrong password")
	// ErrMountFailed is returned when the volume could not be mounted.
	ErrMountFailed = errors.New("mount failed")
	// ErrMountTimeout is returned when the mount did not appear in time.
	ErrMountTimeout = errors.New("timed out waiting for mount")
)

// Member names inside the coffin archive.
const (
	MemberDB   = "db"
	MemberMeta = "meta"
)

// Layout describes where a session unpacks the coffin inside its work dir.
type Layout struct {
	// CipherDir holds the encrypted volume contents (the db ciphertext).
	CipherDir string
	// ConfigPath is the volume configuration file (the meta member).
	ConfigPath string
	// MountPoint is where the decrypted view of CipherDir appears.
	MountPoint string
}

// NewLayout returns the standard layout rooted at workDir.
func NewLayout(workDir string) Layout {
	return Layout{
		CipherDir:  filepath.Join(workDir, "cipher"),
		ConfigPath: filepath.Join(workDir, MemberMeta),
		MountPoint: filepath.Join(workDir, "mnt"),
	}
}

// CipherDBPath is the ciphertext file carried as the db member.
func (l Layout) CipherDBPath() string {
	return filepath.Join(l.CipherDir, MemberDB)
}

// PlainDBPath is the decrypted database file, valid only while mounted.
func (l Layout) PlainDBPath() string {
	return filepath.Join(l.MountPoint, MemberDB)
}

// Volume defines the driven port for the external encrypted filesystem.
type Volume interface {
	// CheckDependencies verifies that the external binaries are installed.
	CheckDependencies() error

	// Create initialises an empty encrypted volume in layout.CipherDir with
	// its configuration written to layout.ConfigPath.
	Create(ctx context.Context, layout Layout, password string) error

	// Mount decrypts layout.CipherDir onto layout.MountPoint and blocks until
	// the mount is visible. Returns ErrWrongPassword if the password is rejected.
	Mount(ctx context.Context, layout Layout, password string) (Mount, error)
}

// Mount is a live mount of an encrypted volume.
type Mount interface {
	// Path returns the mount point.
	Path() string

	// Unmount detaches the volume and reaps the crypto process.
	Unmount(ctx context.Context) error
}
