// Package testutil provides shared test helpers for setting up indexes,
// export directories and editors.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/formulary/internal/editor"
	"github.com/starford/formulary/internal/index"
	"github.com/starford/formulary/internal/storage"
)

// Logger returns a JSON logger that only lets errors through, to io.Discard.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "formulary-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary export directory with a storage.FS.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestEditor creates a quiet editor whose changes are mirrored into db.
func TestEditor(t *testing.T, db *index.DB, opts ...editor.Option) *editor.Editor {
	t.Helper()
	ed, err := editor.New(append([]editor.Option{editor.WithLogger(Logger())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	if db != nil {
		ed.Subscribe(index.Observer(db, Logger()))
	}
	return ed
}
