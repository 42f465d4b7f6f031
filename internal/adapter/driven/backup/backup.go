// Package backup writes and reads passphrase-encrypted exports of a coffin's
// secrets: a YAML document sealed with age (scrypt recipient, ASCII armor).
package backup

import (
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/seccin/internal/domain/model"
	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

// DocumentVersion is the only backup document version understood.
const DocumentVersion = 1

// Document is the plaintext backup document.
type Document struct {
	Version    int       `yaml:"version"`
	ExportedAt time.Time `yaml:"exported_at"`
	Secrets    []Entry   `yaml:"secrets"`
}

// Entry is one exported secret.
type Entry struct {
	Service   string    `yaml:"service"`
	Value     string    `yaml:"value"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// Option configures a Writer.
type Option func(*Writer)

// WithWorkFactor sets the scrypt work factor (log2 of N) of the recipient.
// Zero keeps the age default.
func WithWorkFactor(logN int) Option {
	return func(w *Writer) { w.workFactor = logN }
}

// WithClock overrides the export timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

var _ driven.BackupWriter = (*Writer)(nil)

// Writer encrypts a backup document to an io.Writer.
type Writer struct {
	dst        io.Writer
	passphrase string
	workFactor int
	now        func() time.Time
}

// NewWriter creates a Writer sealing backups for passphrase.
func NewWriter(dst io.Writer, passphrase string, opts ...Option) *Writer {
	w := &Writer{dst: dst, passphrase: passphrase, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteBackup seals secrets into the destination.
func (w *Writer) WriteBackup(secrets []model.Secret) error {
	recipient, err := age.NewScryptRecipient(w.passphrase)
	if err != nil {
		return fmt.Errorf("create backup recipient: %w", err)
	}
	if w.workFactor > 0 {
		recipient.SetWorkFactor(w.workFactor)
	}

	doc := Document{
		Version:    DocumentVersion,
		ExportedAt: w.now().UTC(),
		Secrets:    make([]Entry, 0, len(secrets)),
	}
	for _, s := range secrets {
		doc.Secrets = append(doc.Secrets, Entry{Service: s.Service, Value: s.Value, UpdatedAt: s.UpdatedAt.UTC()})
	}

	armored := armor.NewWriter(w.dst)
	sealed, err := age.Encrypt(armored, recipient)
	if err != nil {
		return fmt.Errorf("start backup encryption: %w", err)
	}

	enc := yaml.NewEncoder(sealed)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	if err := sealed.Close(); err != nil {
		return fmt.Errorf("finish backup encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return fmt.Errorf("finish backup armor: %w", err)
	}
	return nil
}

var _ driven.BackupReader = (*Reader)(nil)

// Reader decrypts a backup document from an io.Reader.
type Reader struct {
	src        io.Reader
	passphrase string
}

// NewReader creates a Reader opening backups sealed for passphrase.
func NewReader(src io.Reader, passphrase string) *Reader {
	return &Reader{src: src, passphrase: passphrase}
}

// ReadBackup decrypts and validates the backup document.
func (r *Reader) ReadBackup() ([]model.Secret, error) {
	identity, err := age.NewScryptIdentity(r.passphrase)
	if err != nil {
		return nil, fmt.Errorf("create backup identity: %w", err)
	}

	plain, err := age.Decrypt(armor.NewReader(r.src), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) || errors.Is(err, age.ErrIncorrectIdentity) {
			return nil, driven.ErrBadPassphrase
		}
		return nil, fmt.Errorf("decrypt backup: %w", err)
	}

	var doc Document
	if err := yaml.NewDecoder(plain).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	if doc.Version != DocumentVersion {
		return nil, fmt.Errorf("%w: %d", driven.ErrUnsupportedVersion, doc.Version)
	}

	secrets := make([]model.Secret, 0, len(doc.Secrets))
	for i, e := range doc.Secrets {
		if err := model.ValidateServiceName(e.Service); err != nil {
			return nil, fmt.Errorf("backup entry %d: %w", i, err)
		}
		secrets = append(secrets, model.Secret{Service: e.Service, Value: e.Value, UpdatedAt: e.UpdatedAt})
	}
	return secrets, nil
}
