/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

// Percentile computes the q-quantile (q in [0,1]) with linear interpolation between the
// two order statistics around the virtual index q*(n-1). values is not modified.
func Percentile(values []time.Duration, q float64) (time.Duration, error) {
	if len(values) == 0 {
		return 0, ErrEmptyAggregation
	}
	if math.IsNaN(q) || q < 0 || q > 1 {
		return 0, fmt.Errorf("metrics: percentile fraction %v outside [0,1]", q)
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if len(sorted) == 1 {
		return sorted[0], nil
	}
	rank := q * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower], nil
	}
	weight := rank - float64(lower)
	span := float64(sorted[upper] - sorted[lower])
	return sorted[lower] + time.Duration(math.Round(span*weight)), nil
}

// Percentiles returns the 50th/80th/90th triple reports print for a dimension.
func Percentiles(values []time.Duration) (domain.PercentileTriple, error) {
	out := domain.PercentileTriple{Count: len(values)}
	if len(values) == 0 {
		return out, ErrEmptyAggregation
	}
	var err error
	if out.P50, err = Percentile(values, 0.5); err != nil {
		return out, err
	}
	if out.P80, err = Percentile(values, 0.8); err != nil {
		return out, err
	}
	if out.P90, err = Percentile(values, 0.9); err != nil {
		return out, err
	}
	return out, nil
}
