/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

// Analyze runs the full per-issue pipeline: taxonomy check on every status in the log,
// time-in-status accounting, category rollup and sprint membership.
func Analyze(il domain.IssueLog, tax *Taxonomy) (domain.IssueMetrics, error) {
	iss := il.Issue
	if err := tax.CheckLog(iss.Key, il.Log); err != nil {
		return domain.IssueMetrics{}, err
	}
	durations := Accumulate(iss.CreatedAt, il.Log)
	roll, err := tax.Rollup(iss.Key, durations)
	if err != nil {
		return domain.IssueMetrics{}, err
	}
	return domain.IssueMetrics{
		Issue:      iss,
		Key:        iss.Key,
		Type:       iss.Type,
		Summary:    iss.Summary,
		Statuses:   map[string]time.Duration(durations),
		LeadTime:   roll.LeadTime,
		CycleTime:  roll.CycleTime,
		InReview:   roll.InReview,
		Sprints:    SprintMemberships(il.Log).Sorted(),
		Incomplete: iss.Incomplete,
	}, nil
}
