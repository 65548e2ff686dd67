package index

import (
	"github.com/starford/formulary/internal/models"
	"github.com/starford/formulary/internal/serialize"
)

// FormulaIndex defines the persistence operations for formulas.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type FormulaIndex interface {
	Upsert(n models.FormulaNode) error
	Delete(id string) error
	GetChecksum(id string) (string, error)
	Get(id string) (*Row, error)
	List(limit, offset int, kind string) ([]Row, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Entries() ([]serialize.Entry, error)
	Close() error
}

// Verify *DB satisfies FormulaIndex at compile time.
var _ FormulaIndex = (*DB)(nil)
