package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nicktill/kpiengine/pkg/formula"
	"github.com/nicktill/kpiengine/pkg/kb"
)

// ErrSourceUnavailable is returned when the knowledge base fails for reasons
// other than not knowing the KPI
var ErrSourceUnavailable = errors.New("knowledge base unavailable")

// Monitor receives the outcome of every knowledge-base round trip
type Monitor interface {
	RecordSuccess()
	RecordFailure(err error)
}

// Engine resolves KPI names against a knowledge base and compiles their formulas
type Engine struct {
	source kb.Source

	mu      sync.RWMutex
	monitor Monitor
}

// New creates an engine reading from source
func New(source kb.Source) *Engine {
	return &Engine{source: source}
}

// SetMonitor registers m to observe knowledge-base health
func (e *Engine) SetMonitor(m Monitor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.monitor = m
}

// Plan is the compiled form of a knowledge-base KPI
type Plan struct {
	KPI         string                   `json:"kpi"`
	Matched     string                   `json:"matched"`
	Variables   []string                 `json:"variables"`
	Formula     *formula.CompiledFormula `json:"formula"`
	Fingerprint string                   `json:"fingerprint"`
}

// Prepare looks up name (falling back to the closest match) and compiles the
// requested variant, or the most general one when variant is empty
func (e *Engine) Prepare(ctx context.Context, name, variant string) (*Plan, error) {
	matched, set, err := e.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	var compiled *formula.CompiledFormula
	if variant == "" {
		compiled, err = formula.Compile(set)
	} else {
		compiled, err = formula.CompileVariant(set, variant)
	}
	if err != nil {
		return nil, fmt.Errorf("kpi %q: %w", matched, err)
	}

	return &Plan{
		KPI:         name,
		Matched:     matched,
		Variables:   compiled.Variables,
		Formula:     compiled,
		Fingerprint: fmt.Sprintf("%016x", set.Fingerprint()),
	}, nil
}

// PrepareForRealTime returns the variables and compiled formula of the most
// general variant of kpi. An unknown KPI yields an empty variable list, a nil
// formula and an error matching formula.ErrFormulaNotFound.
func (e *Engine) PrepareForRealTime(ctx context.Context, kpi string) ([]string, *formula.CompiledFormula, error) {
	plan, err := e.Prepare(ctx, kpi, "")
	if err != nil {
		return []string{}, nil, err
	}
	return plan.Variables, plan.Formula, nil
}

// resolve tries an exact lookup, then a closest-name lookup.
// Transport failures surface immediately.
func (e *Engine) resolve(ctx context.Context, name string) (string, *formula.FormulaSet, error) {
	set, err := e.source.Lookup(ctx, name)
	if err == nil && set.Len() > 0 {
		e.recordSuccess()
		return name, set, nil
	}
	if err != nil && !errors.Is(err, kb.ErrNotFound) {
		return "", nil, e.sourceFailure(err)
	}

	match, err := e.source.LookupClosest(ctx, name)
	if err != nil {
		if errors.Is(err, kb.ErrNotFound) {
			e.recordSuccess()
			return "", nil, fmt.Errorf("%w: %q", formula.ErrFormulaNotFound, name)
		}
		return "", nil, e.sourceFailure(err)
	}

	e.recordSuccess()
	if match == nil || match.Formulas.Len() == 0 {
		return "", nil, fmt.Errorf("%w: %q", formula.ErrFormulaNotFound, name)
	}
	return match.Name, match.Formulas, nil
}

func (e *Engine) sourceFailure(err error) error {
	// cancellation is the caller's doing, not a knowledge-base fault
	if errors.Is(err, context.Canceled) {
		return err
	}

	e.mu.RLock()
	m := e.monitor
	e.mu.RUnlock()
	if m != nil {
		m.RecordFailure(err)
	}
	return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
}

func (e *Engine) recordSuccess() {
	e.mu.RLock()
	m := e.monitor
	e.mu.RUnlock()
	if m != nil {
		m.RecordSuccess()
	}
}

// Fetch describes the data an evaluator must load to compute a KPI
type Fetch struct {
	Variables       []string            `json:"variables"`
	Machines        []string            `json:"machines"`
	Operations      []formula.Operation `json:"operations"`
	Start           time.Time           `json:"start"`
	End             time.Time           `json:"end"`
	Step            int                 `json:"step,omitempty"`
	Aggregation     formula.Aggregation `json:"aggregation,omitempty"`
	TimeAggregation formula.Aggregation `json:"time_aggregation"`
}

// RequestPlan pairs a validated request with its compiled plan
type RequestPlan struct {
	Request KPIRequest `json:"request"`
	Plan    *Plan      `json:"plan"`
	Fetch   Fetch      `json:"fetch"`
}

// PlanRequest validates req and works out what the evaluator has to fetch
func (e *Engine) PlanRequest(ctx context.Context, req KPIRequest) (*RequestPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	plan, err := e.Prepare(ctx, req.Name, "")
	if err != nil {
		return nil, err
	}

	return &RequestPlan{
		Request: req,
		Plan:    plan,
		Fetch: Fetch{
			Variables:       plan.Variables,
			Machines:        req.Machines,
			Operations:      mergeOperations(req.Operations, plan.Formula.Operations),
			Start:           req.StartDate.Time,
			End:             req.EndDate.Time,
			Step:            req.Step,
			Aggregation:     plan.Formula.Aggregation,
			TimeAggregation: req.TimeAggregation,
		},
	}, nil
}

// RealTimePlan pairs a validated real-time request with its compiled formula
type RealTimePlan struct {
	Request RealTimeKPIRequest       `json:"request"`
	Formula *formula.CompiledFormula `json:"formula"`
	Fetch   Fetch                    `json:"fetch"`
}

// PlanRealTime validates req and compiles its KPI for a streaming evaluator
func (e *Engine) PlanRealTime(ctx context.Context, req RealTimeKPIRequest) (*RealTimePlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	variables, compiled, err := e.PrepareForRealTime(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	return &RealTimePlan{
		Request: req,
		Formula: compiled,
		Fetch: Fetch{
			Variables:       variables,
			Machines:        req.Machines,
			Operations:      mergeOperations(req.Operations, compiled.Operations),
			Start:           req.StartDate.Time,
			Aggregation:     compiled.Aggregation,
			TimeAggregation: req.TimeAggregation,
		},
	}, nil
}

// mergeOperations returns requested followed by the formula's own operations, without duplicates
func mergeOperations(requested, fromFormula []formula.Operation) []formula.Operation {
	merged := make([]formula.Operation, 0, len(requested)+len(fromFormula))
	seen := make(map[formula.Operation]bool)
	for _, ops := range [][]formula.Operation{requested, fromFormula} {
		for _, op := range ops {
			if !seen[op] {
				seen[op] = true
				merged = append(merged, op)
			}
		}
	}
	return merged
}
