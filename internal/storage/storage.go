// Package storage provides the persistence contract used by feature caches
// and checkpoints: an opaque named blob that can be loaded and atomically
// replaced.
package storage

// Blob persists a single opaque byte payload under a stable name.
type Blob interface {
	// Load returns the stored payload, or ok=false when nothing has been
	// saved yet.
	Load() (data []byte, ok bool, err error)
	// Save replaces the stored payload atomically.
	Save(data []byte) error
	// Delete removes the stored payload. Deleting a missing blob is not an
	// error.
	Delete() error
}
