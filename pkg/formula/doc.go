/*
Package formula compiles knowledge-base KPI formulas into evaluator-ready infix
expressions.

# Placeholder Notation

The knowledge base encodes formulas with ° separated tokens:

	°T°m°idle°             operation placeholder (machine level idle), removed
	°t°m°o°                decoration, removed
	R°name                 reference: replaced by the body of formula "name"
	D°name                 direct reference: replaced by "name"
	A°sum[ expr ]          aggregation call (sum, mean, max, min, var, std)
	S°+[ left ; right ]    binary operator call (/, *, +, -, **)
	C°100°                 constant: replaced by 100

# Pipeline

Compile runs the stages in order, each returning a new string:

	CleanPlaceholders   strip placeholders, collect Operations
	ResolveReferences   splice R° bodies (one pass, no rescan)
	RemoveAggregations  peel every A° call, keep the first kind
	ToEvaluable         S°op[a;b] -> (a op b), C°n° -> n
	ExtractNames        variables referenced by the result

Example:

	set := formula.NewFormulaSet(
	    "energy_per_unit", "A°sum[S°/[R°consumption;D°good_cycles]]",
	    "consumption", "°T°m°working°energy_kwh",
	)
	compiled, err := formula.Compile(set)
	// compiled.Expression  == "(energy_kwh / good_cycles)"
	// compiled.Aggregation == formula.AggregationSum
	// compiled.Operations  == [working]
	// compiled.Variables   == [energy_kwh good_cycles]

# Errors

Failures wrap one of ErrFormulaNotFound, ErrReferenceNotFound or
ErrMalformedFormula; use errors.Is to classify them. Unbalanced brackets, a
binary call without a top-level ';' and unregistered A° or S° markers are all
malformed. No stage returns a partially rewritten formula.

# Concurrency

Every function in this package is pure. FormulaSet values are not safe for
concurrent mutation, but compiling the same set from many goroutines is fine.
*/
package formula
