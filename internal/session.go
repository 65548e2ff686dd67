package internal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/formulary/internal/editor"
	"github.com/starford/formulary/internal/index"
	"github.com/starford/formulary/internal/storage"
)

// Session is an editor restored from the SQLite index and kept in sync
// with it.
type Session struct {
	Editor *editor.Editor
	DB     *index.DB
	// Inbox is nil unless the inbox is enabled.
	Inbox *storage.FS
}

// OpenSession opens the index, restores the formulas of the previous run
// into a fresh editor and mirrors every later change back into the index.
func OpenSession(cfg *Config, logger *slog.Logger) (*Session, error) {
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	ed, err := editor.New(
		editor.WithLogger(logger),
		editor.WithUndoLimit(cfg.Editor.UndoLimit),
		editor.WithMaxConversionDepth(cfg.Editor.MaxConversionDepth),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init editor: %w", err)
	}

	entries, err := db.Entries()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load formulas: %w", err)
	}
	res := ed.Restore(entries)
	logger.Info("Session restored",
		slog.Int("formulas", res.Imported),
		slog.Int("rejected", len(res.Errors)))

	ed.Subscribe(index.Observer(db, logger))

	// Restored ids can differ from the stored ones when entries collided.
	if err := index.Sync(db, ed.List(), logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	s := &Session{Editor: ed, DB: db}
	if cfg.Inbox.Enabled {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("create inbox dir: %w", err)
		}
		store, err := storage.NewFS(cfg.Inbox.Path)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init inbox: %w", err)
		}
		s.Inbox = store
	}
	return s, nil
}

// Close closes the index.
func (s *Session) Close() error {
	return s.DB.Close()
}

// exportStore returns the inbox as a storage.Provider, or a nil interface
// when the inbox is disabled.
func (s *Session) exportStore() storage.Provider {
	if s.Inbox == nil {
		return nil
	}
	return s.Inbox
}
