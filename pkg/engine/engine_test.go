package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nicktill/kpiengine/pkg/formula"
	"github.com/nicktill/kpiengine/pkg/kb"
	"github.com/nicktill/kpiengine/pkg/kb/memory"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("connection refused")

// failingSource returns err from Lookup, or from LookupClosest only if closestOnly
type failingSource struct {
	kb.Source
	err         error
	closestOnly bool
}

func (s *failingSource) Lookup(ctx context.Context, name string) (*formula.FormulaSet, error) {
	if s.closestOnly {
		return nil, kb.ErrNotFound
	}
	return nil, s.err
}

func (s *failingSource) LookupClosest(ctx context.Context, name string) (*kb.Match, error) {
	return nil, s.err
}

type recordingMonitor struct {
	mu        sync.Mutex
	successes int
	failures  []error
}

func (m *recordingMonitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
}

func (m *recordingMonitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, err)
}

func testSource() *memory.Source {
	src := memory.New()
	src.Add("availability", formula.NewFormulaSet(
		"general", "S°*[S°/[R°up;S°+[R°up;R°down]];C°100°]",
		"up", "°T°M°working°working_time",
		"down", "°T°M°offline°offline_time",
	))
	src.Add("energy_per_unit", formula.NewFormulaSet(
		"total", "A°sum[S°/[°T°m°working°energy_kwh;good_cycles]]",
		"raw", "S°/[energy_kwh;good_cycles]",
	))
	src.Add("broken", formula.NewFormulaSet("general", "S°+[a;R°missing]"))
	return src
}

func TestEngine_Prepare(t *testing.T) {
	e := New(testSource())

	plan, err := e.Prepare(context.Background(), "availability", "")
	require.NoError(t, err)

	require.Equal(t, "availability", plan.KPI)
	require.Equal(t, "availability", plan.Matched)
	require.Equal(t, "((working_time / (working_time + offline_time)) * 100)", plan.Formula.Expression)
	require.Equal(t, []string{"working_time", "offline_time"}, plan.Variables)
	require.Equal(t, []formula.Operation{formula.OperationWorking, formula.OperationOffline}, plan.Formula.Operations)
	require.Len(t, plan.Fingerprint, 16)
}

func TestEngine_PrepareVariant(t *testing.T) {
	e := New(testSource())

	plan, err := e.Prepare(context.Background(), "energy_per_unit", "raw")
	require.NoError(t, err)
	require.Equal(t, "raw", plan.Formula.Variant)
	require.Equal(t, "(energy_kwh / good_cycles)", plan.Formula.Expression)
	require.Equal(t, formula.AggregationNone, plan.Formula.Aggregation)

	_, err = e.Prepare(context.Background(), "energy_per_unit", "missing")
	require.ErrorIs(t, err, formula.ErrFormulaNotFound)
}

func TestEngine_PrepareClosestMatch(t *testing.T) {
	e := New(testSource())

	plan, err := e.Prepare(context.Background(), "Energy Per Unit", "")
	require.NoError(t, err)
	require.Equal(t, "Energy Per Unit", plan.KPI)
	require.Equal(t, "energy_per_unit", plan.Matched)
	require.Equal(t, formula.AggregationSum, plan.Formula.Aggregation)
	require.Equal(t, "(energy_kwh / good_cycles)", plan.Formula.Expression)
}

func TestEngine_PrepareCompileError(t *testing.T) {
	e := New(testSource())

	_, err := e.Prepare(context.Background(), "broken", "")
	require.ErrorIs(t, err, formula.ErrReferenceNotFound)
}

func TestEngine_PrepareForRealTime(t *testing.T) {
	e := New(testSource())

	variables, compiled, err := e.PrepareForRealTime(context.Background(), "availability")
	require.NoError(t, err)
	require.Equal(t, []string{"working_time", "offline_time"}, variables)
	require.NotNil(t, compiled)
	require.Equal(t, "general", compiled.Variant)
}

func TestEngine_PrepareForRealTimeNotFound(t *testing.T) {
	e := New(testSource())
	monitor := &recordingMonitor{}
	e.SetMonitor(monitor)

	variables, compiled, err := e.PrepareForRealTime(context.Background(), "throughput")
	require.ErrorIs(t, err, formula.ErrFormulaNotFound)
	require.NotNil(t, variables)
	require.Empty(t, variables)
	require.Nil(t, compiled)

	// not knowing a KPI is a healthy answer
	require.Equal(t, 1, monitor.successes)
	require.Empty(t, monitor.failures)
}

func TestEngine_SourceFailure(t *testing.T) {
	tests := []struct {
		name   string
		source *failingSource
	}{
		{name: "exact lookup fails", source: &failingSource{err: errBackend}},
		{name: "closest lookup fails", source: &failingSource{err: errBackend, closestOnly: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.source)
			monitor := &recordingMonitor{}
			e.SetMonitor(monitor)

			variables, compiled, err := e.PrepareForRealTime(context.Background(), "availability")
			require.ErrorIs(t, err, ErrSourceUnavailable)
			require.ErrorIs(t, err, errBackend)
			require.False(t, errors.Is(err, formula.ErrFormulaNotFound))
			require.Empty(t, variables)
			require.Nil(t, compiled)

			require.Len(t, monitor.failures, 1)
		})
	}
}

func TestEngine_CancelledIsNotAFailure(t *testing.T) {
	e := New(&failingSource{err: context.Canceled})
	monitor := &recordingMonitor{}
	e.SetMonitor(monitor)

	_, err := e.Prepare(context.Background(), "availability", "")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, monitor.failures)
}

func TestEngine_PlanRequest(t *testing.T) {
	e := New(testSource())

	req := validRequest()
	req.Operations = []formula.Operation{formula.OperationIdle, formula.OperationWorking}

	rp, err := e.PlanRequest(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, "availability", rp.Plan.Matched)
	require.Equal(t, []string{"working_time", "offline_time"}, rp.Fetch.Variables)
	require.Equal(t, []string{"m1", "m2"}, rp.Fetch.Machines)
	require.Equal(t, []formula.Operation{
		formula.OperationIdle,
		formula.OperationWorking,
		formula.OperationOffline,
	}, rp.Fetch.Operations)
	require.Equal(t, req.StartDate.Time, rp.Fetch.Start)
	require.Equal(t, req.EndDate.Time, rp.Fetch.End)
	require.Equal(t, 3600, rp.Fetch.Step)
	require.Equal(t, formula.AggregationMean, rp.Fetch.TimeAggregation)
}

func TestEngine_PlanRequestInvalid(t *testing.T) {
	e := New(testSource())

	req := validRequest()
	req.Step = 0

	_, err := e.PlanRequest(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEngine_PlanRealTime(t *testing.T) {
	e := New(testSource())

	rt := validRealTimeRequest()
	rt.Name = "energy_per_unit"

	plan, err := e.PlanRealTime(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, formula.AggregationSum, plan.Fetch.Aggregation)
	require.Equal(t, []formula.Operation{formula.OperationWorking}, plan.Fetch.Operations)
	require.Equal(t, []string{"energy_kwh", "good_cycles"}, plan.Fetch.Variables)

	rt.Name = "unknown_kpi"
	_, err = e.PlanRealTime(context.Background(), rt)
	require.ErrorIs(t, err, formula.ErrFormulaNotFound)
}

func TestMergeOperations(t *testing.T) {
	got := mergeOperations(
		[]formula.Operation{formula.OperationOffline, formula.OperationOffline},
		[]formula.Operation{formula.OperationWorking, formula.OperationOffline},
	)
	require.Equal(t, []formula.Operation{formula.OperationOffline, formula.OperationWorking}, got)

	require.NotNil(t, mergeOperations(nil, nil))
}

func TestEngine_ConcurrentPrepare(t *testing.T) {
	e := New(testSource())
	e.SetMonitor(&recordingMonitor{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plan, err := e.Prepare(context.Background(), "availability", "")
			if err != nil {
				t.Errorf("Prepare() error = %v", err)
				return
			}
			if plan.Matched != "availability" {
				t.Errorf("matched = %q", plan.Matched)
			}
		}()
	}
	wg.Wait()
}
