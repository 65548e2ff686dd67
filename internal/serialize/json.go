package serialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/formulary/internal/apperr"
	"github.com/starford/formulary/internal/models"
)

// ExportJSON encodes nodes as a versioned export document.
func (s *Service) ExportJSON(nodes []models.FormulaNode) ([]byte, error) {
	doc := Document{Version: Version, Timestamp: s.now().UTC(), Nodes: make([]Entry, 0, len(nodes))}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, EntryOf(n))
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize: export json: %w", err)
	}
	return data, nil
}

// ImportJSON decodes an export document and imports its entries. Unknown
// fields are ignored and other versions are accepted with a warning. Each
// entry is decoded on its own so a malformed entry is reported without
// losing the others. Only a payload that is not a JSON object fails as a
// whole, in which case the returned error wraps apperr.ErrInvalid.
func (s *Service) ImportJSON(data []byte, t Target) (ImportResult, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		if err == nil {
			err = errors.New("document is null")
		}
		res := ImportResult{Errors: []string{fmt.Sprintf("invalid JSON: %v", err)}}
		return res, fmt.Errorf("serialize: import json: %w: %v", apperr.ErrInvalid, err)
	}

	var version string
	if raw, ok := doc["version"]; ok {
		_ = json.Unmarshal(raw, &version)
	}
	if version != Version {
		s.logger.Warn("serialize: unexpected export version",
			slog.String("version", version),
			slog.String("supported", Version),
		)
	}

	var res ImportResult
	var nodes []json.RawMessage
	if raw, ok := doc["nodes"]; ok {
		if err := json.Unmarshal(raw, &nodes); err != nil {
			res.fail("nodes: %v", err)
		}
	}

	entries := make([]indexed, 0, len(nodes))
	for i, raw := range nodes {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			s.logger.Warn("serialize: entry skipped", slog.Int("index", i), slog.String("error", err.Error()))
			res.fail("entry %d: %v", i, err)
			continue
		}
		entries = append(entries, indexed{index: i, entry: e})
	}
	return s.commit(entries, res, t), nil
}
