// Package qc applies sanity rules to a daily aggregate before it is
// accepted. A day that fails any rule is discarded and re-downloaded by the
// retry pass rather than poisoning the combined archive.
package qc

import (
	"fmt"

	"github.com/hydrostat/conusflow/dataset"
)

// Rule bounds one variable's aggregated values
type Rule struct {
	Variable string
	Min      *float64
	Max      *float64
}

func f(v float64) *float64 { return &v }

// DefaultRules returns the common-sense bounds for CONUS404 daily aggregates.
// Near-zero quantities get a -1 floor to allow for aggregation noise.
func DefaultRules() []Rule {
	return []Rule{
		{Variable: "T2", Min: f(220), Max: f(330)}, // -53C to 57C
		{Variable: "ACRAINLSM", Min: f(-1)},
		{Variable: "Q2", Min: f(-1)},
		{Variable: "W", Min: f(-1)},
		{Variable: "LAI", Min: f(-1)},
	}
}

// Validate checks agg against rules plus the dewpoint/temperature
// consistency flag. Returns a human-readable violation per failed rule;
// an empty slice means the day passes.
//
// Variables absent from the aggregate are skipped: a configured-but-missing
// variable is already surfaced by the aggregation tool, not a QC concern.
func Validate(agg *dataset.DayAggregate, rules []Rule) []string {
	var violations []string

	for _, rule := range rules {
		stats, ok := agg.Stats[rule.Variable]
		if !ok {
			continue
		}
		if rule.Min != nil && stats.Min < *rule.Min {
			violations = append(violations, fmt.Sprintf(
				"%s min value %.6f is below threshold %.6f", rule.Variable, stats.Min, *rule.Min))
		}
		if rule.Max != nil && stats.Max > *rule.Max {
			violations = append(violations, fmt.Sprintf(
				"%s max value %.2f is above threshold %.2f", rule.Variable, stats.Max, *rule.Max))
		}
	}

	if agg.DewpointExceedsTemp {
		violations = append(violations, "internal consistency error: found TD2 > T2")
	}

	return violations
}
