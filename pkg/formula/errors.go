package formula

import "errors"

var (
	// ErrFormulaNotFound means the knowledge base has no formula for a KPI
	ErrFormulaNotFound = errors.New("kpi formula not found")

	// ErrReferenceNotFound means a R° token names a key missing from the formula set
	ErrReferenceNotFound = errors.New("formula reference not found")

	// ErrMalformedFormula covers unbalanced calls, missing separators and
	// markers that are not registered
	ErrMalformedFormula = errors.New("malformed formula")
)
