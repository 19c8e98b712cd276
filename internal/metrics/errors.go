/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
	"errors"
	"fmt"
)

// ErrEmptyAggregation is returned when a percentile is requested over no samples.
var ErrEmptyAggregation = errors.New("metrics: percentile over zero samples")

// TaxonomyGapError reports a status the taxonomy does not classify.
// It is fatal for a run: totals computed without the status would understate lead time.
type TaxonomyGapError struct {
	IssueKey string
	Status   string
}

func (e *TaxonomyGapError) Error() string {
	if e.IssueKey == "" {
		return fmt.Sprintf("taxonomy does not classify status %q", e.Status)
	}
	return fmt.Sprintf("%s: was in status %q which the taxonomy does not classify", e.IssueKey, e.Status)
}
