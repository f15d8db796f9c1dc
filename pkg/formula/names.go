package formula

// ExtractNames returns the variable names referenced by expr in order of first
// appearance. Numeric literals and digit-led runs are never names.
func ExtractNames(expr string) []string {
	names := []string{}
	seen := make(map[string]bool)

	l := NewLexer(expr)
	for tok := l.NextToken(); tok.Type != TokenEOF; tok = l.NextToken() {
		if tok.Type != TokenIdentifier || seen[tok.Literal] {
			continue
		}
		seen[tok.Literal] = true
		names = append(names, tok.Literal)
	}

	return names
}
