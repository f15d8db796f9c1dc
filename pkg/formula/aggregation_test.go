package formula

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveAggregations(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		want    string
		kind    Aggregation
	}{
		{name: "sum", formula: "A°sum[X+Y]", want: "X+Y", kind: AggregationSum},
		{name: "mean", formula: "A°mean[X]", want: "X", kind: AggregationMean},
		{name: "max", formula: "A°max[X]", want: "X", kind: AggregationMax},
		{name: "min", formula: "A°min[X]", want: "X", kind: AggregationMin},
		{name: "var", formula: "A°var[X]", want: "X", kind: AggregationVar},
		{name: "std", formula: "A°std[X]", want: "X", kind: AggregationStd},
		{name: "no aggregation", formula: "X+Y", want: "X+Y", kind: AggregationNone},
		{name: "outermost wins", formula: "A°max[A°sum[X]]", want: "X", kind: AggregationMax},
		{name: "outermost wins reversed", formula: "A°sum[A°max[X]]", want: "X", kind: AggregationSum},
		{name: "leftmost across markers", formula: "A°std[X]+A°sum[Y]", want: "X+Y", kind: AggregationStd},
		{name: "suffix kept", formula: "A°sum[X]/C°2°", want: "X/C°2°", kind: AggregationSum},
		{name: "prefix and suffix kept", formula: "Z+A°mean[X]*2", want: "Z+X*2", kind: AggregationMean},
		{name: "nested brackets", formula: "A°sum[S°+[A;B]]", want: "S°+[A;B]", kind: AggregationSum},
		{name: "whitespace stripped", formula: "A°sum[ X + Y ] ", want: "X+Y", kind: AggregationSum},
		{name: "time markers dropped", formula: "A°sum[X°t]", want: "X", kind: AggregationSum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RemoveAggregations(Transformation{Formula: tt.formula})
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Formula)
			require.Equal(t, tt.kind, got.Aggregation)
		})
	}
}

func TestRemoveAggregations_KeepsExistingKind(t *testing.T) {
	got, err := RemoveAggregations(Transformation{Formula: "A°max[X]", Aggregation: AggregationSum})
	require.NoError(t, err)
	require.Equal(t, "X", got.Formula)
	require.Equal(t, AggregationSum, got.Aggregation)
}

func TestRemoveAggregations_KeepsOperations(t *testing.T) {
	ops := []Operation{OperationOffline}
	got, err := RemoveAggregations(Transformation{Formula: "A°sum[X]", Operations: ops})
	require.NoError(t, err)
	require.Equal(t, ops, got.Operations)
}

func TestRemoveAggregations_Idempotent(t *testing.T) {
	inputs := []string{
		"A°sum[X+Y]",
		"A°max[A°sum[S°/[A;B]]]*C°100°",
		"plain_value",
	}

	for _, in := range inputs {
		first, err := RemoveAggregations(Transformation{Formula: in})
		require.NoError(t, err)

		second, err := RemoveAggregations(first)
		require.NoError(t, err)
		require.Equal(t, first, second, "input %q", in)
	}
}

func TestRemoveAggregations_Unbalanced(t *testing.T) {
	got, err := RemoveAggregations(Transformation{Formula: "A°sum[X+Y"})
	require.ErrorIs(t, err, ErrMalformedFormula)
	require.Equal(t, Transformation{}, got)
}

func TestRemoveAggregations_UnknownMarker(t *testing.T) {
	_, err := RemoveAggregations(Transformation{Formula: "A°median[X]"})
	require.ErrorIs(t, err, ErrMalformedFormula)
	require.Contains(t, err.Error(), "median")
}

func TestLeftmostMarker(t *testing.T) {
	opens := make([]string, len(operators))
	for i, op := range operators {
		opens[i] = op.open
	}

	pos, idx := leftmostMarker("xS°*[S°**[a;b];c]", opens)
	require.Equal(t, 1, pos)
	require.Equal(t, "S°*[", opens[idx])

	pos, idx = leftmostMarker("S°**[a;b]", opens)
	require.Equal(t, 0, pos)
	require.Equal(t, "S°**[", opens[idx])

	pos, idx = leftmostMarker("none", opens)
	require.Equal(t, -1, pos)
	require.Equal(t, -1, idx)
}

func TestRemoveAggregations_DeepNesting(t *testing.T) {
	const depth = 4200
	formula := strings.Repeat("A°sum[", depth) + "x" + strings.Repeat("]", depth)

	got, err := RemoveAggregations(Transformation{Formula: formula, Operations: []Operation{}})
	require.NoError(t, err)
	require.Equal(t, "x", got.Formula)
	require.Equal(t, AggregationSum, got.Aggregation)
}

func TestPassLimit(t *testing.T) {
	require.Equal(t, 1, passLimit("x"))
	require.Equal(t, 3, passLimit("A°sum[S°+[a;b]]"))
}
