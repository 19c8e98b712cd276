/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package metrics turns issue changelogs into time-in-status accounting,
// category rollups, sprint membership history and percentile summaries.
// Everything here is pure and safe to call from many goroutines at once.
package metrics

import (
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

// StatusDurations maps a status name to the time spent in it.
type StatusDurations map[string]time.Duration

// Total sums all durations.
func (d StatusDurations) Total() time.Duration {
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum
}

// Accumulate credits each status with the time the issue spent in it before leaving.
//
// The boundary starts at createdAt; every status transition credits the interval since
// the previous boundary to the status being left and then moves the boundary. Time after
// the last transition is not credited, so an open issue's current status accrues nothing.
// Transitions whose from and to are equal still count as boundaries.
func Accumulate(createdAt time.Time, log domain.EventLog) StatusDurations {
	out := StatusDurations{}
	boundary := createdAt
	for _, e := range log {
		if e.Field != domain.FieldStatus {
			continue
		}
		out[e.FromVal] += e.At.Sub(boundary)
		boundary = e.At
	}
	return out
}
