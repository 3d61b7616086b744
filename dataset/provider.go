// Package dataset resolves the CONUS404 cloud asset and produces daily
// aggregate files through an external aggregation tool.
//
// The orchestration core treats data access as an opaque, possibly slow,
// possibly failing collaborator: everything in this package runs inside a
// worker process, never in the coordinator.
package dataset

import (
	"context"
	"time"
)

// VarStats summarizes one aggregated variable for QC
type VarStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DayAggregate is the product of one worker: a daily NetCDF file plus the
// summary statistics the validation predicate needs.
type DayAggregate struct {
	Date          time.Time
	Path          string
	HourlyRecords int
	Stats         map[string]VarStats

	// DewpointExceedsTemp is computed element-wise by the aggregation tool
	// (TD2 > T2 beyond float tolerance), since min/max summaries cannot
	// express the pointwise consistency check.
	DewpointExceedsTemp bool
}

// Provider produces the daily aggregate for one date.
type Provider interface {
	FetchAndAggregate(ctx context.Context, date time.Time) (*DayAggregate, error)
}
