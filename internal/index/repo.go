package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/livevars/internal/models"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// PropertyRow is one flattened front-matter property. Key is the dotted
// local path inside the document.
type PropertyRow struct {
	Key     string
	Kind    string
	Display string
	JSON    string
}

// UpsertDocument replaces a document and all of its properties within a transaction.
func (db *DB) UpsertDocument(d DocumentRow, props []PropertyRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, checksum, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, d.Path, d.Checksum, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM properties WHERE document = ?`, d.Path); err != nil {
		return fmt.Errorf("index: clear properties: %w", err)
	}
	if len(props) > 0 {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO properties (document, position, key, kind, display, json)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare property insert: %w", err)
		}
		defer stmt.Close()
		for i, p := range props {
			if _, err := stmt.Exec(d.Path, i, p.Key, p.Kind, p.Display, p.JSON); err != nil {
				return fmt.Errorf("index: insert property: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and its properties.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM properties WHERE document = ?`, path); err != nil {
		return fmt.Errorf("index: delete properties: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// escapeLike escapes LIKE wildcards so query text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchValues returns properties whose display value or key contains query.
func (db *DB) SearchValues(query string, limit int) ([]models.CatalogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(`
		SELECT document, key, kind, display
		FROM properties
		WHERE display LIKE ? ESCAPE '\' OR key LIKE ? ESCAPE '\'
		ORDER BY document, position
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search values: %w", err)
	}
	return scanEntries(rows)
}

// DocumentsWhere returns the documents whose property key displays as display.
func (db *DB) DocumentsWhere(key, display string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT document FROM properties
		WHERE key = ? AND display = ?
		ORDER BY document
	`, key, display)
	if err != nil {
		return nil, fmt.Errorf("index: documents where: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DocumentProperties returns the properties of one document in front-matter order.
func (db *DB) DocumentProperties(path string) ([]models.CatalogEntry, error) {
	rows, err := db.conn.Query(`
		SELECT document, key, kind, display
		FROM properties
		WHERE document = ?
		ORDER BY position
	`, path)
	if err != nil {
		return nil, fmt.Errorf("index: document properties: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.CatalogEntry, error) {
	defer rows.Close()
	var out []models.CatalogEntry
	for rows.Next() {
		var e models.CatalogEntry
		if err := rows.Scan(&e.Document, &e.Key, &e.Kind, &e.Display); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
