package formula

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	referencePattern = regexp.MustCompile(`R°([\p{L}\p{N}_]+)`)
	directPattern    = regexp.MustCompile(`D°([\p{L}\p{N}_]+)`)
)

// ResolveReferences splices the body of every R° referenced key into formula.
// The result is not rescanned, so references inside spliced bodies stay as they are.
func ResolveReferences(formula string, formulas *FormulaSet) (string, error) {
	matches := referencePattern.FindAllStringSubmatchIndex(formula, -1)
	if len(matches) == 0 {
		return formula, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		key := formula[m[2]:m[3]]
		body, ok := formulas.Get(key)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrReferenceNotFound, key)
		}
		b.WriteString(formula[last:m[0]])
		b.WriteString(body)
		last = m[1]
	}
	b.WriteString(formula[last:])

	return b.String(), nil
}

// TransformFormula resolves references, strips D° decorations and whitespace,
// then runs aggregation extraction and binary-operator rewriting.
func TransformFormula(formula string, formulas *FormulaSet, operations []Operation) (Transformation, error) {
	resolved, err := ResolveReferences(formula, formulas)
	if err != nil {
		return Transformation{}, err
	}
	resolved = directPattern.ReplaceAllString(resolved, "$1")

	result := Transformation{
		Formula:    stripWhitespace(resolved),
		Operations: operations,
	}

	result, err = RemoveAggregations(result)
	if err != nil {
		return Transformation{}, err
	}

	result.Formula, err = ToEvaluable(result.Formula)
	if err != nil {
		return Transformation{}, err
	}

	return result, nil
}

// stripWhitespace removes every whitespace rune
func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
