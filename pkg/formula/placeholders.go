package formula

import "strings"

// operationPlaceholder pairs a knowledge-base placeholder with the flag it declares
type operationPlaceholder struct {
	token     string
	operation Operation
}

// operationPlaceholders is scanned in order; machine level (°m) before module level (°M)
var operationPlaceholders = []operationPlaceholder{
	{token: "°T°m°idle°", operation: OperationIdle},
	{token: "°T°m°working°", operation: OperationWorking},
	{token: "°T°m°offline°", operation: OperationOffline},
	{token: "°T°M°idle°", operation: OperationIdle},
	{token: "°T°M°working°", operation: OperationWorking},
	{token: "°T°M°offline°", operation: OperationOffline},
}

// decorationPlaceholders carry no flag and are dropped
var decorationPlaceholders = []string{
	"°t°m°o°",
	"°T°m°o°",
}

// CleanPlaceholders strips domain placeholders from every formula in the set.
// Operations found anywhere in the set are collected in discovery order; a
// placeholder contributes its flag once per formula that contains it.
func CleanPlaceholders(formulas *FormulaSet) (*FormulaSet, []Operation) {
	cleaned := &FormulaSet{}
	operations := []Operation{}

	for _, key := range formulas.Keys() {
		body, _ := formulas.Get(key)

		for _, p := range operationPlaceholders {
			if strings.Contains(body, p.token) {
				operations = append(operations, p.operation)
				body = strings.ReplaceAll(body, p.token, "")
			}
		}

		for _, token := range decorationPlaceholders {
			body = strings.ReplaceAll(body, token, "")
		}

		cleaned.Set(key, strings.TrimSpace(body))
	}

	return cleaned, operations
}
