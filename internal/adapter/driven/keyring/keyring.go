// Package keyring caches coffin passwords in the OS keyring.
package keyring

import (
	"errors"
	"fmt"
	"path/filepath"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

// DefaultService is the keyring service entries are stored under.
const DefaultService = "seccin"

// Compile-time interface satisfaction check.
var _ driven.PasswordCache = (*Cache)(nil)

// Cache implements driven.PasswordCache on top of the OS keyring. Entries
// are keyed by the absolute coffin path.
type Cache struct {
	service string
}

// NewCache creates a Cache storing entries under service, or DefaultService
// when service is empty.
func NewCache(service string) *Cache {
	if service == "" {
		service = DefaultService
	}
	return &Cache{service: service}
}

// Get returns the cached password for coffinPath.
func (c *Cache) Get(coffinPath string) (string, error) {
	user, err := entryUser(coffinPath)
	if err != nil {
		return "", err
	}

	password, err := gokeyring.Get(c.service, user)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return "", driven.ErrPasswordNotCached
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %q: %w", user, err)
	}
	return password, nil
}

// Set stores password for coffinPath.
func (c *Cache) Set(coffinPath, password string) error {
	user, err := entryUser(coffinPath)
	if err != nil {
		return err
	}

	if err := gokeyring.Set(c.service, user, password); err != nil {
		return fmt.Errorf("keyring set %q: %w", user, err)
	}
	return nil
}

// Delete removes the entry for coffinPath. A missing entry is not an error.
func (c *Cache) Delete(coffinPath string) error {
	user, err := entryUser(coffinPath)
	if err != nil {
		return err
	}

	if err := gokeyring.Delete(c.service, user); err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %q: %w", user, err)
	}
	return nil
}

func entryUser(coffinPath string) (string, error) {
	abs, err := filepath.Abs(coffinPath)
	if err != nil {
		return "", fmt.Errorf("resolve coffin path: %w", err)
	}
	return abs, nil
}
