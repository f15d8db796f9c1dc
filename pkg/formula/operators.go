package formula

import (
	"fmt"
	"regexp"
	"strings"
)

// operator maps the opening of an S° call to its infix symbol
type operator struct {
	open   string
	symbol string
}

// Markers end in "[", so no marker is a prefix of another and "S°**[" never
// matches as "S°*["
var operators = []operator{
	{open: "S°/[", symbol: "/"},
	{open: "S°*[", symbol: "*"},
	{open: "S°+[", symbol: "+"},
	{open: "S°-[", symbol: "-"},
	{open: "S°**[", symbol: "**"},
}

var (
	unknownOperatorPattern = regexp.MustCompile(`S°([^\p{L}\p{N}_\[\]°;()\s]{1,3})\[`)
	constantPattern        = regexp.MustCompile(`C°([0-9]+)°`)
)

// ToEvaluable rewrites S°op[left;right] calls into "(left op right)" until none
// remain, then replaces C°n° constants with n.
func ToEvaluable(formula string) (string, error) {
	limit := passLimit(formula)
	opens := make([]string, len(operators))
	for i, op := range operators {
		opens[i] = op.open
	}

	for pass := 0; ; pass++ {
		if pass >= limit {
			return "", fmt.Errorf("%w: operator rewriting did not converge", ErrMalformedFormula)
		}

		pos, idx := leftmostMarker(formula, opens)
		if pos == -1 {
			if m := unknownOperatorPattern.FindStringSubmatch(formula); m != nil {
				return "", fmt.Errorf("%w: unknown operator marker %q", ErrMalformedFormula, m[1])
			}
			break
		}

		op := operators[idx]
		c, err := scanCall(formula, pos, pos+len(op.open))
		if err != nil {
			return "", err
		}
		if c.sep == -1 {
			return "", fmt.Errorf("%w: %q call at offset %d has no argument separator", ErrMalformedFormula, op.symbol, pos)
		}

		var b strings.Builder
		b.WriteString(formula[:c.start])
		b.WriteString("(")
		b.WriteString(formula[c.open:c.sep])
		b.WriteString(" " + op.symbol + " ")
		b.WriteString(formula[c.sep+1 : c.close])
		b.WriteString(")")
		b.WriteString(formula[c.close+1:])
		formula = b.String()
	}

	formula = constantPattern.ReplaceAllString(formula, "$1")
	return strings.TrimSpace(formula), nil
}
