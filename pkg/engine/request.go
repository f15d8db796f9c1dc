package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nicktill/kpiengine/pkg/formula"
)

// ErrInvalidRequest is returned when a KPI request fails validation
var ErrInvalidRequest = errors.New("invalid kpi request")

// timestampLayouts are tried in order when decoding request dates
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp accepts RFC 3339 as well as "YYYY-MM-DD HH:MM:SS" dates
type Timestamp struct {
	time.Time
}

// UnmarshalJSON decodes a date string in any supported layout
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}

	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid date %q (use RFC 3339 or YYYY-MM-DD HH:MM:SS)", s)
}

// MarshalJSON encodes the date as RFC 3339
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// KPIRequest asks for a KPI over a historical window
type KPIRequest struct {
	Name            string              `json:"name"`
	Machines        []string            `json:"machines"`
	Operations      []formula.Operation `json:"operations"`
	TimeAggregation formula.Aggregation `json:"time_aggregation"`
	StartDate       Timestamp           `json:"start_date"`
	EndDate         Timestamp           `json:"end_date"`
	Step            int                 `json:"step"`
}

// Validate checks the request fields
func (r KPIRequest) Validate() error {
	if err := validateCommon(r.Name, r.Machines, r.Operations, r.TimeAggregation, r.StartDate); err != nil {
		return err
	}
	if r.EndDate.IsZero() {
		return fmt.Errorf("%w: end_date is required", ErrInvalidRequest)
	}
	if !r.EndDate.After(r.StartDate.Time) {
		return fmt.Errorf("%w: end_date must be after start_date", ErrInvalidRequest)
	}
	if r.Step <= 0 {
		return fmt.Errorf("%w: step must be a positive integer", ErrInvalidRequest)
	}
	return nil
}

// RealTimeKPIRequest asks for a KPI computed continuously from StartDate onwards
type RealTimeKPIRequest struct {
	Name            string              `json:"name"`
	Machines        []string            `json:"machines"`
	Operations      []formula.Operation `json:"operations"`
	TimeAggregation formula.Aggregation `json:"time_aggregation"`
	StartDate       Timestamp           `json:"start_date"`
}

// Validate checks the request fields
func (r RealTimeKPIRequest) Validate() error {
	return validateCommon(r.Name, r.Machines, r.Operations, r.TimeAggregation, r.StartDate)
}

func validateCommon(name string, machines []string, ops []formula.Operation, agg formula.Aggregation, start Timestamp) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if machines == nil {
		return fmt.Errorf("%w: machines must be a list", ErrInvalidRequest)
	}
	if ops == nil {
		return fmt.Errorf("%w: operations must be a list", ErrInvalidRequest)
	}
	for _, op := range ops {
		if _, err := formula.ParseOperation(string(op)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if _, err := formula.ParseAggregation(string(agg)); err != nil {
		return fmt.Errorf("%w: time_aggregation: %v", ErrInvalidRequest, err)
	}
	if start.IsZero() {
		return fmt.Errorf("%w: start_date is required", ErrInvalidRequest)
	}
	return nil
}
