// Package storage defines the vault file-system abstraction.
package storage

import (
	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/value"
)

// Provider is the interface for vault document operations.
type Provider interface {
	// List returns metadata for every document under dir (relative to vault root).
	List(dir string) ([]models.DocumentMeta, error)
	// ListTree enumerates every directory and file under the vault root.
	ListTree() ([]models.TreeEntry, error)
	// Read returns the raw bytes of the document at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
	// Snapshot returns the parsed front matter of the document at path.
	Snapshot(path string) (*value.Map, error)
}
