package driven

import "errors"

// ErrPasswordNotCached is returned when the cache holds no password for a coffin.
var ErrPasswordNotCached = errors.New("password not cached")

// PasswordCache defines the driven port for remembering coffin passwords.
type PasswordCache interface {
	Get(coffinPath string) (string, error)
	Set(coffinPath, password string) error
	Delete(coffinPath string) error
}
