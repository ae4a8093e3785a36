package api

import (
	"github.com/starford/livevars/internal/diff"
	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/value"
)

// SetVariableRequest is the request body for writing a variable.
type SetVariableRequest struct {
	Path     string      `json:"path" example:"meta.owner" validate:"required"`
	Document string      `json:"document,omitempty" example:"notes/team.md"`
	Value    value.Value `json:"value" validate:"required"`
	DryRun   bool        `json:"dry_run,omitempty"`
}

// OverrideRequest is the request body for recording an in-memory override.
type OverrideRequest struct {
	Path     string      `json:"path" example:"status" validate:"required"`
	Document string      `json:"document,omitempty" example:"notes/team.md"`
	Value    value.Value `json:"value" validate:"required"`
}

// ResolveResponse is a resolved variable.
type ResolveResponse struct {
	Path     string      `json:"path" example:"meta.owner" validate:"required"`
	Document string      `json:"document,omitempty" example:"notes/team.md"`
	Value    value.Value `json:"value" validate:"required"`
	Display  string      `json:"display" example:"alice" validate:"required"`
	Syntax   string      `json:"syntax" example:"{{meta.owner}}" validate:"required"`
}

// PathsResponse wraps a path listing.
type PathsResponse struct {
	Paths []string `json:"paths" validate:"required"`
}

// PropertiesResponse wraps property previews.
type PropertiesResponse struct {
	Properties []models.Property `json:"properties" validate:"required"`
}

// VariableResponse describes the outcome of a write or dry run.
type VariableResponse struct {
	Path      string      `json:"path" example:"title" validate:"required"`
	Document  string      `json:"document,omitempty" example:"home.md"`
	Key       string      `json:"key,omitempty" example:"title"`
	Value     value.Value `json:"value" validate:"required"`
	Literal   string      `json:"literal" example:"Hello" validate:"required"`
	Persisted bool        `json:"persisted"`
	DryRun    bool        `json:"dry_run,omitempty"`
	Diff      []diff.Hunk `json:"diff,omitempty"`
}

// RenderResponse is a document with its references substituted.
type RenderResponse struct {
	Path    string `json:"path" example:"home.md" validate:"required"`
	Format  string `json:"format" example:"markdown" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// CatalogSearchResponse wraps catalog hits.
type CatalogSearchResponse struct {
	Results []models.CatalogEntry `json:"results" validate:"required"`
}

// DocumentsResponse wraps a list of document paths.
type DocumentsResponse struct {
	Documents []string `json:"documents" validate:"required"`
}
