package kb

import (
	"context"
	"errors"

	"github.com/nicktill/kpiengine/pkg/formula"
)

// ErrNotFound is returned when the knowledge base has no entry for a KPI
var ErrNotFound = errors.New("kpi not found in knowledge base")

// Source defines the interface for knowledge-base backends.
// Implementations: memory (fixtures, TOML files), remote (HTTP), cache (badger decorator)
type Source interface {
	// Lookup returns the formula set of the KPI with exactly this name
	Lookup(ctx context.Context, name string) (*formula.FormulaSet, error)

	// LookupClosest returns the formula set of the KPI whose name best matches
	LookupClosest(ctx context.Context, name string) (*Match, error)
}

// Match is the result of a closest-name lookup
type Match struct {
	Name     string              `json:"name"`
	Formulas *formula.FormulaSet `json:"formulas"`
}
