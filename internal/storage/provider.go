// Package storage defines the file-system abstraction for formula export
// files.
package storage

import (
	"path/filepath"
	"strings"

	"github.com/starford/formulary/internal/models"
)

// Provider is the interface for export file operations.
type Provider interface {
	// List returns metadata for every export file directly under dir (relative to root).
	List(dir string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to root).
	Move(oldPath, newPath string) error
}

// Export file formats.
const (
	FormatJSON = "json"
	FormatHTML = "html"
)

// FormatOf returns the export format implied by the file extension of path,
// or "" for anything else.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".html", ".htm":
		return FormatHTML
	default:
		return ""
	}
}
