package driven

import "errors"

// ErrCorruptCoffin is returned when a coffin archive is unreadable or lacks a member.
var ErrCorruptCoffin = errors.New("corrupt coffin")

// Archive defines the driven port for the coffin file on disk.
type Archive interface {
	// Extract unpacks the coffin at archivePath into layout.
	Extract(archivePath string, layout Layout) error

	// Pack writes the volume files in layout to archivePath, replacing it atomically.
	Pack(layout Layout, archivePath string) error
}
