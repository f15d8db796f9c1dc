/*
Package kb provides the pluggable knowledge-base abstraction that supplies raw
KPI formula sets to the compiler.

# Source Interface

All backends implement the Source interface:

	type Source interface {
	    Lookup(ctx context.Context, name string) (*formula.FormulaSet, error)
	    LookupClosest(ctx context.Context, name string) (*Match, error)
	}

Available backends:
  - memory: fixtures and TOML files, for tests and offline compilation
  - remote: the knowledge-base HTTP API
  - cache: BadgerDB read-through decorator around any other Source

A KPI the knowledge base does not know is reported as ErrNotFound (wrapped),
so callers can tell "no such KPI" apart from transport failures:

	set, err := src.Lookup(ctx, "availability")
	if errors.Is(err, kb.ErrNotFound) {
	    // fall back to LookupClosest or report 404
	}

# Usage Example

	remoteSrc, err := remote.New("http://kb.internal:9000", apiKey)
	if err != nil {
	    log.Fatal(err)
	}

	cached, err := cache.New(remoteSrc, cache.Config{Path: "./data/kb-cache"})
	if err != nil {
	    log.Fatal(err)
	}
	defer cached.Close()

	set, err := cached.Lookup(ctx, "availability")

# Formula Set Order

Formula sets keep the order the knowledge base returned them in. The first
variant is the most general one and is what Compile picks by default, so every
backend (JSON, TOML and the badger cache encoding) preserves key order.
*/
package kb
