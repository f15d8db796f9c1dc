package formula

import (
	"fmt"
	"strings"
)

// passLimit bounds the extraction and rewrite loops over formula. Every pass
// consumes the '[' of one call, so a formula never needs more passes than it
// has opening brackets.
func passLimit(formula string) int {
	return strings.Count(formula, "[") + 1
}

// call is the extent of one bracket-delimited call: marker at start, body in
// formula[open:close], separator at sep (-1 when absent)
type call struct {
	start int
	open  int
	close int
	sep   int
}

// scanCall walks formula from open, the index right after the call's '[', at
// depth 1 until the matching ']' brings depth back to 0. The first ';' seen at
// depth 1 is recorded as the argument separator.
func scanCall(formula string, start, open int) (call, error) {
	c := call{start: start, open: open, close: -1, sep: -1}
	depth := 1

	for i := open; i < len(formula); i++ {
		switch formula[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ';':
			if depth == 1 && c.sep == -1 {
				c.sep = i
			}
		}

		if depth == 0 {
			c.close = i
			return c, nil
		}
	}

	return c, fmt.Errorf("%w: unbalanced brackets in call at offset %d of %q", ErrMalformedFormula, start, formula)
}

// splice returns formula with the span [from, to) replaced by repl
func splice(formula string, from, to int, repl string) string {
	return formula[:from] + repl + formula[to:]
}
