package formula

import "fmt"

// Compile compiles the most general variant (the first key) of a formula set
func Compile(formulas *FormulaSet) (*CompiledFormula, error) {
	key, _, ok := formulas.First()
	if !ok {
		return nil, fmt.Errorf("%w: empty formula set", ErrFormulaNotFound)
	}
	return CompileVariant(formulas, key)
}

// CompileVariant compiles the formula stored under variant. References are
// resolved against the whole set.
func CompileVariant(formulas *FormulaSet, variant string) (*CompiledFormula, error) {
	cleaned, operations := CleanPlaceholders(formulas)

	body, ok := cleaned.Get(variant)
	if !ok {
		return nil, fmt.Errorf("%w: variant %q", ErrFormulaNotFound, variant)
	}

	t, err := TransformFormula(body, cleaned, operations)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", variant, err)
	}

	if err := ValidateExpression(t.Formula); err != nil {
		return nil, fmt.Errorf("compile %q: %w", variant, err)
	}

	return &CompiledFormula{
		Variant:     variant,
		Expression:  t.Formula,
		Aggregation: t.Aggregation,
		Operations:  t.Operations,
		Variables:   ExtractNames(t.Formula),
	}, nil
}
