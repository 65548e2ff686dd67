package index

import (
	"log/slog"

	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/registry"
)

// Observer returns a registry observer that mirrors every change into db.
// Failures are logged; the registry stays authoritative.
func Observer(db FormulaIndex, logger *slog.Logger) registry.Observer {
	return func(n models.FormulaNode, action registry.Action) {
		var err error
		switch action {
		case registry.ActionAdded, registry.ActionUpdated:
			err = db.Upsert(n)
		case registry.ActionDeleted:
			err = db.Delete(n.ID)
		}
		if err != nil {
			logger.Warn("index: mirror failed",
				slog.String("id", n.ID),
				slog.String("action", string(action)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Sync brings the index up to date with nodes:
//   - new/changed formulas are upserted
//   - formulas no longer present are deleted from the index
func Sync(db FormulaIndex, nodes []models.FormulaNode, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	live := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		live[n.ID] = struct{}{}
		if checksums[n.ID] == Checksum(n) {
			continue
		}
		if err := db.Upsert(n); err != nil {
			logger.Warn("sync: upsert failed", slog.String("id", n.ID), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("id", n.ID))
		}
	}

	// Remove stale entries.
	for id := range checksums {
		if _, ok := live[id]; !ok {
			if err := db.Delete(id); err != nil {
				logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("id", id))
			}
		}
	}
	return nil
}
