package formula

import (
	"fmt"
	"regexp"
	"strings"
)

// aggregationMarker is the opening of an A° call after normalization
type aggregationMarker struct {
	open string
	kind Aggregation
}

// Names starting with "m" are capitalized by normalizeAggregations so that
// "°m" time markers can be removed without touching them.
var aggregationMarkers = []aggregationMarker{
	{open: "A°sum[", kind: AggregationSum},
	{open: "A°Mean[", kind: AggregationMean},
	{open: "A°Max[", kind: AggregationMax},
	{open: "A°Min[", kind: AggregationMin},
	{open: "A°var[", kind: AggregationVar},
	{open: "A°std[", kind: AggregationStd},
}

var unknownAggregationPattern = regexp.MustCompile(`A°(\p{L}+)\[`)

// normalizeAggregations drops time markers and protects A°m... names from the
// "°m" removal. Replacements are applied in sequence.
func normalizeAggregations(formula string) string {
	formula = strings.ReplaceAll(formula, "°t", "")
	formula = strings.ReplaceAll(formula, "°mo", "")
	formula = strings.ReplaceAll(formula, "A°m", "A°M")
	formula = strings.ReplaceAll(formula, "°m", "")
	return formula
}

// RemoveAggregations strips every A° call from the formula, outermost first.
// The kind of the first call removed becomes the result's aggregation unless
// the record already carries one; kinds of later calls are discarded.
func RemoveAggregations(t Transformation) (Transformation, error) {
	formula := normalizeAggregations(t.Formula)
	limit := passLimit(formula)

	opens := make([]string, len(aggregationMarkers))
	for i, m := range aggregationMarkers {
		opens[i] = m.open
	}

	for pass := 0; ; pass++ {
		if pass >= limit {
			return Transformation{}, fmt.Errorf("%w: aggregation extraction did not converge", ErrMalformedFormula)
		}

		pos, idx := leftmostMarker(formula, opens)
		if pos == -1 {
			if m := unknownAggregationPattern.FindStringSubmatch(formula); m != nil {
				return Transformation{}, fmt.Errorf("%w: unknown aggregation marker %q", ErrMalformedFormula, strings.ToLower(m[1]))
			}
			break
		}

		marker := aggregationMarkers[idx]
		c, err := scanCall(formula, pos, pos+len(marker.open))
		if err != nil {
			return Transformation{}, err
		}

		formula = stripWhitespace(splice(formula, c.start, c.close+1, formula[c.open:c.close]))

		if t.Aggregation == AggregationNone {
			t.Aggregation = marker.kind
		}
	}

	t.Formula = formula
	return t, nil
}

// leftmostMarker returns the offset and table index of the earliest marker in
// formula, or -1, -1. Markers starting at the same offset resolve to the longest.
func leftmostMarker(formula string, markers []string) (pos, idx int) {
	pos, idx = -1, -1
	for i, m := range markers {
		p := strings.Index(formula, m)
		if p == -1 {
			continue
		}
		if pos == -1 || p < pos || (p == pos && len(m) > len(markers[idx])) {
			pos, idx = p, i
		}
	}
	return pos, idx
}
