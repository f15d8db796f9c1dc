package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/nicktill/kpiengine/pkg/formula"
	"github.com/nicktill/kpiengine/pkg/kb"
)

// Source serves formula sets from memory.
// Useful for testing, development and offline compilation from fixture files.
type Source struct {
	names []string
	kpis  map[string]*formula.FormulaSet
	mu    sync.RWMutex
}

// New creates an empty in-memory knowledge base
func New() *Source {
	return &Source{
		kpis: make(map[string]*formula.FormulaSet),
	}
}

// Add stores the formula set of a KPI, replacing any previous one
func (s *Source) Add(name string, formulas *formula.FormulaSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.kpis[name]; !exists {
		s.names = append(s.names, name)
	}
	s.kpis[name] = formulas.Clone()
}

// Names returns the stored KPI names in insertion order
func (s *Source) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Lookup returns the formula set stored under name
func (s *Source) Lookup(ctx context.Context, name string) (*formula.FormulaSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	formulas, ok := s.kpis[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", kb.ErrNotFound, name)
	}
	return formulas.Clone(), nil
}

// LookupClosest matches name ignoring case and separators first, then falls
// back to the smallest edit distance within a third of the name's length
func (s *Source) LookupClosest(ctx context.Context, name string) (*kb.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	target := normalizeName(name)
	if target == "" {
		return nil, fmt.Errorf("%w: %q", kb.ErrNotFound, name)
	}

	for _, candidate := range s.names {
		if normalizeName(candidate) == target {
			return &kb.Match{Name: candidate, Formulas: s.kpis[candidate].Clone()}, nil
		}
	}

	maxDistance := len([]rune(target)) / 3
	if maxDistance < 1 {
		maxDistance = 1
	}

	best, bestDistance := "", maxDistance+1
	for _, candidate := range s.names {
		if d := editDistance(target, normalizeName(candidate)); d < bestDistance {
			best, bestDistance = candidate, d
		}
	}

	if best == "" {
		return nil, fmt.Errorf("%w: no close match for %q", kb.ErrNotFound, name)
	}
	return &kb.Match{Name: best, Formulas: s.kpis[best].Clone()}, nil
}

// normalizeName lowercases and keeps only letters and digits
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// editDistance is the Levenshtein distance between a and b
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}
