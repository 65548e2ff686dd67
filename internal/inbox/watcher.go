// Package inbox imports formula export files dropped into a directory.
package inbox

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/formulary/internal/serialize"
	"github.com/starford/formulary/internal/storage"
)

// Subdirectories that handled files are moved into.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

const settleDelay = 200 * time.Millisecond

// Importer receives the contents of dropped files.
type Importer interface {
	ImportJSON(data []byte) (serialize.ImportResult, error)
	ImportHTML(fragment string) (serialize.ImportResult, error)
}

// EventCallback is called after each file was handled. err is non-nil when
// the payload was rejected as a whole.
type EventCallback func(path string, res serialize.ImportResult, err error)

// Watch imports every export file already in the inbox, then watches it
// for new ones until ctx is cancelled. Files are imported once writes to
// them have settled, and are moved to processed/ or, when the payload is
// rejected, to failed/.
func Watch(ctx context.Context, store *storage.FS, imp Importer, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("inbox: started", slog.String("root", root))

	Scan(store, imp, logger, cb)

	// pending collects paths whose writes have not settled yet.
	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			for rel := range pending {
				handle(store, rel, imp, logger, cb)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if storage.FormatOf(ev.Name) == "" || filepath.Base(ev.Name)[0] == '.' {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || filepath.Dir(rel) != "." {
				continue
			}
			schedule(rel)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: error", slog.String("error", watchErr.Error()))
		}
	}
}

// Scan imports every export file currently in the inbox.
func Scan(store *storage.FS, imp Importer, logger *slog.Logger, cb EventCallback) {
	metas, err := store.List("")
	if err != nil {
		logger.Warn("inbox: list failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range metas {
		handle(store, m.Path, imp, logger, cb)
	}
}

func handle(store *storage.FS, rel string, imp Importer, logger *slog.Logger, cb EventCallback) {
	data, err := store.Read(rel)
	if err != nil {
		// Already moved by an earlier event for the same file.
		logger.Debug("inbox: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	var res serialize.ImportResult
	switch storage.FormatOf(rel) {
	case storage.FormatJSON:
		res, err = imp.ImportJSON(data)
	case storage.FormatHTML:
		res, err = imp.ImportHTML(string(data))
	default:
		return
	}

	dest := ProcessedDir
	if err != nil {
		dest = FailedDir
		logger.Warn("inbox: import rejected", slog.String("path", rel), slog.String("error", err.Error()))
	} else {
		logger.Info("inbox: imported",
			slog.String("path", rel),
			slog.Int("imported", res.Imported),
			slog.Int("errors", len(res.Errors)),
		)
	}
	if mvErr := store.Move(rel, filepath.Join(dest, filepath.Base(rel))); mvErr != nil {
		logger.Warn("inbox: move failed", slog.String("path", rel), slog.String("error", mvErr.Error()))
	}
	if cb != nil {
		cb(rel, res, err)
	}
}
