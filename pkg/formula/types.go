package formula

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Operation is a machine operating state a formula is scoped to
type Operation string

const (
	OperationIdle    Operation = "idle"
	OperationWorking Operation = "working"
	OperationOffline Operation = "offline"
)

// Operations lists every known operation in declaration order
var Operations = []Operation{OperationIdle, OperationWorking, OperationOffline}

// ParseOperation returns the Operation named by s
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Aggregation is the reduction applied to the evaluated expression.
// The zero value means the formula has no aggregation wrapper.
type Aggregation string

const (
	AggregationNone Aggregation = ""
	AggregationSum  Aggregation = "sum"
	AggregationMean Aggregation = "mean"
	AggregationMax  Aggregation = "max"
	AggregationMin  Aggregation = "min"
	AggregationVar  Aggregation = "var"
	AggregationStd  Aggregation = "std"
)

// Aggregations lists every known aggregation kind
var Aggregations = []Aggregation{
	AggregationSum,
	AggregationMean,
	AggregationMax,
	AggregationMin,
	AggregationVar,
	AggregationStd,
}

// ParseAggregation returns the Aggregation named by s
func ParseAggregation(s string) (Aggregation, error) {
	for _, agg := range Aggregations {
		if string(agg) == s {
			return agg, nil
		}
	}
	return AggregationNone, fmt.Errorf("unknown aggregation %q (must be one of %v)", s, Aggregations)
}

// CompiledFormula is the evaluator-ready form of a KPI formula
type CompiledFormula struct {
	Variant     string      `json:"variant,omitempty"`
	Expression  string      `json:"expression"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	Operations  []Operation `json:"operations"`
	Variables   []string    `json:"variables"`
}

// Transformation is the intermediate record handed between compiler stages
type Transformation struct {
	Formula     string
	Operations  []Operation
	Aggregation Aggregation
}

// FormulaSet maps formula-variant keys to raw bodies, preserving insertion order.
// The first key is the most general variant of the KPI.
type FormulaSet struct {
	keys   []string
	bodies map[string]string
}

// NewFormulaSet creates a set from alternating key, body pairs
func NewFormulaSet(pairs ...string) *FormulaSet {
	s := &FormulaSet{}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Set(pairs[i], pairs[i+1])
	}
	return s
}

// Set stores body under key. Overwriting a key keeps its original position.
func (s *FormulaSet) Set(key, body string) {
	if s.bodies == nil {
		s.bodies = make(map[string]string)
	}
	if _, exists := s.bodies[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.bodies[key] = body
}

// Get returns the body stored under key
func (s *FormulaSet) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	body, ok := s.bodies[key]
	return body, ok
}

// Keys returns the variant keys in insertion order
func (s *FormulaSet) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Len returns the number of variants
func (s *FormulaSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// First returns the most general variant
func (s *FormulaSet) First() (key, body string, ok bool) {
	if s.Len() == 0 {
		return "", "", false
	}
	key = s.keys[0]
	return key, s.bodies[key], true
}

// Clone returns a copy that shares nothing with s
func (s *FormulaSet) Clone() *FormulaSet {
	c := &FormulaSet{}
	for _, key := range s.Keys() {
		c.Set(key, s.bodies[key])
	}
	return c
}

// Fingerprint hashes the ordered content of the set
func (s *FormulaSet) Fingerprint() uint64 {
	d := xxhash.New()
	for _, key := range s.Keys() {
		d.WriteString(key)
		d.Write([]byte{0})
		d.WriteString(s.bodies[key])
		d.Write([]byte{0})
	}
	return d.Sum64()
}

// MarshalJSON encodes the set as a JSON object with keys in insertion order
func (s *FormulaSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.bodies[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string bodies, keeping key order
func (s *FormulaSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("formula set must be a JSON object, got %v", tok)
	}

	*s = FormulaSet{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("formula set key must be a string, got %v", tok)
		}

		var body string
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("formula %q: %w", key, err)
		}
		s.Set(key, body)
	}

	// consume closing '}'
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
