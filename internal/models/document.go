// Package models defines the domain types shared across livevars packages.
package models

import "time"

// DocumentMeta is a lightweight representation returned by list operations.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TreeEntry is one enumerated vault entry. Path is relative to the vault
// root and always uses forward slashes.
type TreeEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

// Property is one addressable variable path with its display value.
type Property struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Resolved bool   `json:"resolved"`
}

// CatalogEntry is one indexed front-matter property of a document.
type CatalogEntry struct {
	Document string `json:"document"`
	Key      string `json:"key"`
	Kind     string `json:"kind"`
	Display  string `json:"display"`
}
