package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// MaxServiceNameLength bounds the service name stored as the lookup key.
const MaxServiceNameLength = 256

// ErrInvalidService is returned when a service name cannot be used as a key.
var ErrInvalidService = errors.New("invalid service name")

// Secret is one coffin entry: the secret string stored for a service.
type Secret struct {
	ID        int64
	Service   string
	Value     string
	UpdatedAt time.Time
}

// ValidateServiceName checks that name is usable as a lookup key. Lookups are
// exact, so the name is not normalised; surrounding whitespace is rejected.
func ValidateServiceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidService)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidService, name)
	}
	if len(name) > MaxServiceNameLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidService, MaxServiceNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidService, name)
		}
	}
	return nil
}
