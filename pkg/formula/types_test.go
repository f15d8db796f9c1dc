package formula

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormulaSet_Order(t *testing.T) {
	set := &FormulaSet{}
	set.Set("general", "a")
	set.Set("machine", "b")
	set.Set("general", "c")

	require.Equal(t, []string{"general", "machine"}, set.Keys())
	require.Equal(t, 2, set.Len())

	key, body, ok := set.First()
	require.True(t, ok)
	require.Equal(t, "general", key)
	require.Equal(t, "c", body)
}

func TestFormulaSet_NilAndEmpty(t *testing.T) {
	var set *FormulaSet
	require.Equal(t, 0, set.Len())
	require.Nil(t, set.Keys())

	_, ok := set.Get("x")
	require.False(t, ok)

	_, _, ok = (&FormulaSet{}).First()
	require.False(t, ok)
}

func TestFormulaSet_JSONKeepsOrder(t *testing.T) {
	input := `{"zeta":"R°alpha","alpha":"x + y","mid":"C°1°"}`

	var set FormulaSet
	require.NoError(t, json.Unmarshal([]byte(input), &set))
	require.Equal(t, []string{"zeta", "alpha", "mid"}, set.Keys())

	out, err := json.Marshal(&set)
	require.NoError(t, err)
	require.JSONEq(t, input, string(out))
	require.Equal(t, input, string(out))
}

func TestFormulaSet_JSONInStruct(t *testing.T) {
	var payload struct {
		Name     string      `json:"name"`
		Formulas *FormulaSet `json:"formulas"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"name":"oee","formulas":{"b":"1","a":"2"}}`), &payload))
	require.Equal(t, []string{"b", "a"}, payload.Formulas.Keys())
}

func TestFormulaSet_JSONRejectsNonObject(t *testing.T) {
	var set FormulaSet
	require.Error(t, json.Unmarshal([]byte(`["a"]`), &set))
	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &set))
}

func TestFormulaSet_Fingerprint(t *testing.T) {
	a := NewFormulaSet("x", "1", "y", "2")
	b := NewFormulaSet("x", "1", "y", "2")
	reordered := NewFormulaSet("y", "2", "x", "1")

	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.NotEqual(t, a.Fingerprint(), reordered.Fingerprint())

	b.Set("y", "3")
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestParseAggregation(t *testing.T) {
	for _, agg := range Aggregations {
		got, err := ParseAggregation(string(agg))
		require.NoError(t, err)
		require.Equal(t, agg, got)
	}

	_, err := ParseAggregation("median")
	require.Error(t, err)
}

func TestParseOperation(t *testing.T) {
	got, err := ParseOperation("working")
	require.NoError(t, err)
	require.Equal(t, OperationWorking, got)

	_, err = ParseOperation("sleeping")
	require.Error(t, err)
}
