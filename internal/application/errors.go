package application

import "errors"

var (
	// ErrPasswordMismatch is returned when a password and its confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrEmptyPassword is returned when an empty coffin password is supplied.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrCoffinExists is returned by Init when the target exists and overwriting was not requested.
	ErrCoffinExists = errors.New("coffin already exists")
	// ErrCoffinNotFound is returned when the coffin file does not exist.
	ErrCoffinNotFound = errors.New("coffin not found")
)

// CheckPasswords validates a new password against its confirmation. It runs
// before any archive or process work so a typo never touches the coffin.
func CheckPasswords(first, second string) error {
	if first == "" {
		return ErrEmptyPassword
	}
	if first != second {
		return ErrPasswordMismatch
	}
	return nil
}
