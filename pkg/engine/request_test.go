package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nicktill/kpiengine/pkg/formula"
	"github.com/stretchr/testify/require"
)

func validRequest() KPIRequest {
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	return KPIRequest{
		Name:            "availability",
		Machines:        []string{"m1", "m2"},
		Operations:      []formula.Operation{},
		TimeAggregation: formula.AggregationMean,
		StartDate:       Timestamp{start},
		EndDate:         Timestamp{start.Add(24 * time.Hour)},
		Step:            3600,
	}
}

func validRealTimeRequest() RealTimeKPIRequest {
	return RealTimeKPIRequest{
		Name:            "availability",
		Machines:        []string{"m1"},
		Operations:      []formula.Operation{},
		TimeAggregation: formula.AggregationSum,
		StartDate:       Timestamp{time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)},
	}
}

func TestKPIRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *KPIRequest)
		valid  bool
	}{
		{name: "valid", mutate: func(r *KPIRequest) {}, valid: true},
		{name: "empty machines list is allowed", mutate: func(r *KPIRequest) { r.Machines = []string{} }, valid: true},
		{name: "blank name", mutate: func(r *KPIRequest) { r.Name = "  " }},
		{name: "missing machines", mutate: func(r *KPIRequest) { r.Machines = nil }},
		{name: "missing operations", mutate: func(r *KPIRequest) { r.Operations = nil }},
		{name: "unknown operation", mutate: func(r *KPIRequest) { r.Operations = []formula.Operation{"sleeping"} }},
		{name: "unknown aggregation", mutate: func(r *KPIRequest) { r.TimeAggregation = "median" }},
		{name: "missing aggregation", mutate: func(r *KPIRequest) { r.TimeAggregation = formula.AggregationNone }},
		{name: "missing start", mutate: func(r *KPIRequest) { r.StartDate = Timestamp{} }},
		{name: "missing end", mutate: func(r *KPIRequest) { r.EndDate = Timestamp{} }},
		{name: "end before start", mutate: func(r *KPIRequest) { r.EndDate = Timestamp{r.StartDate.Add(-time.Hour)} }},
		{name: "end equals start", mutate: func(r *KPIRequest) { r.EndDate = r.StartDate }},
		{name: "zero step", mutate: func(r *KPIRequest) { r.Step = 0 }},
		{name: "negative step", mutate: func(r *KPIRequest) { r.Step = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := req.Validate()
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestRealTimeKPIRequest_Validate(t *testing.T) {
	require.NoError(t, validRealTimeRequest().Validate())

	req := validRealTimeRequest()
	req.Operations = []formula.Operation{formula.OperationIdle, "broken"}
	require.ErrorIs(t, req.Validate(), ErrInvalidRequest)

	req = validRealTimeRequest()
	req.StartDate = Timestamp{}
	require.ErrorIs(t, req.Validate(), ErrInvalidRequest)
}

func TestKPIRequest_DecodeJSON(t *testing.T) {
	body := `{
		"name": "availability",
		"machines": ["Large Capacity Cutting Machine 1"],
		"operations": ["working", "idle"],
		"time_aggregation": "sum",
		"start_date": "2024-10-01 00:00:00",
		"end_date": "2024-10-02T00:00:00Z",
		"step": 1
	}`

	var req KPIRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.NoError(t, req.Validate())

	require.Equal(t, []formula.Operation{formula.OperationWorking, formula.OperationIdle}, req.Operations)
	require.Equal(t, formula.AggregationSum, req.TimeAggregation)
	require.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), req.StartDate.Time)
	require.Equal(t, 24*time.Hour, req.EndDate.Sub(req.StartDate.Time))
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: `"2024-10-01T12:30:00Z"`, want: time.Date(2024, 10, 1, 12, 30, 0, 0, time.UTC)},
		{input: `"2024-10-01 12:30:00"`, want: time.Date(2024, 10, 1, 12, 30, 0, 0, time.UTC)},
		{input: `"2024-10-01T12:30:00"`, want: time.Date(2024, 10, 1, 12, 30, 0, 0, time.UTC)},
		{input: `"2024-10-01"`, want: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)},
		{input: `"01/10/2024"`, wantErr: true},
		{input: `1727740800`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var ts Timestamp
			err := json.Unmarshal([]byte(tt.input), &ts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, tt.want.Equal(ts.Time), "got %v", ts.Time)
		})
	}
}

func TestTimestamp_MarshalJSON(t *testing.T) {
	ts := Timestamp{time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)}
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	require.Equal(t, `"2024-10-01T08:00:00Z"`, string(data))
}
