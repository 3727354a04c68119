// Package storage defines the read-only vault file-system abstraction.
package storage

import "github.com/starford/vaultlens/internal/models"

// Provider enumerates and reads the eligible files of one vault.
type Provider interface {
	// Root returns the absolute vault directory.
	Root() string
	// MetadataDir returns the absolute path of the vault-internal directory.
	MetadataDir() string
	// List enumerates every eligible file, in lexical path order. Paths are
	// slash-separated and relative to the vault root. Only a failure to read
	// the root itself is an error.
	List() (*Listing, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
}

// Listing is the outcome of enumerating a vault.
type Listing struct {
	Files []models.FileMetadata
	// Unreadable holds directories and files that exist but could not be
	// enumerated. Notes indexed under them are still present on disk.
	Unreadable []models.FileError
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
