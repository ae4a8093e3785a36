package index

import "github.com/starford/livevars/internal/models"

// Catalog defines the property catalog operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Catalog interface {
	UpsertDocument(d DocumentRow, props []PropertyRow) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	SearchValues(query string, limit int) ([]models.CatalogEntry, error)
	DocumentsWhere(key, display string) ([]string, error)
	DocumentProperties(path string) ([]models.CatalogEntry, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
