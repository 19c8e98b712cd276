/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "time"

// IssueMetrics is the per-issue output of the accounting engine.
type IssueMetrics struct {
	Issue     Issue                    `json:"-"`
	Key       string                   `json:"key"`
	Type      string                   `json:"type"`
	Summary   string                   `json:"summary"`
	Statuses  map[string]time.Duration `json:"statuses"`
	LeadTime  time.Duration            `json:"lead_time"`
	CycleTime time.Duration            `json:"cycle_time"`
	InReview  time.Duration            `json:"in_review"`
	Sprints   []string                 `json:"sprints"`
	// Incomplete metrics are reported but kept out of aggregates.
	Incomplete bool `json:"incomplete,omitempty"`
}

// PercentileTriple holds the 50th/80th/90th percentiles of a duration dimension.
// Count is the number of samples; zero means the triple is undefined.
type PercentileTriple struct {
	P50   time.Duration `json:"p50"`
	P80   time.Duration `json:"p80"`
	P90   time.Duration `json:"p90"`
	Count int           `json:"count"`
}

// TimeSection is one development-time dimension of a sprint report.
type TimeSection struct {
	Title       string           `json:"title"`
	JQL         string           `json:"jql"`
	Percentiles PercentileTriple `json:"percentiles"`
	Rows        []TimeRow        `json:"rows"`
}

type TimeRow struct {
	Key        string        `json:"key"`
	Type       string        `json:"type"`
	Summary    string        `json:"summary"`
	Value      time.Duration `json:"value"`
	Incomplete bool          `json:"incomplete,omitempty"`
}

// IssueGroup is a titled list of issues with a story point total.
type IssueGroup struct {
	Title       string      `json:"title"`
	JQL         string      `json:"jql,omitempty"`
	Issues      []IssueLine `json:"issues"`
	StoryPoints float64     `json:"story_points"`
}

type IssueLine struct {
	Key         string   `json:"key"`
	Type        string   `json:"type"`
	Summary     string   `json:"summary"`
	StoryPoints float64  `json:"story_points"`
	LinkedRefs  []string `json:"linked_refs,omitempty"`
}

type GoalsSection struct {
	Planned   IssueGroup `json:"planned"`
	Completed IssueGroup `json:"completed"`
}

type VelocitySection struct {
	Committed    IssueGroup `json:"committed"`
	Completed    IssueGroup `json:"completed"`
	NotCompleted IssueGroup `json:"not_completed"`
	Removed      IssueGroup `json:"removed"`
	// Ratio is completed/committed story points in percent; nil when nothing was committed.
	Ratio *float64 `json:"ratio,omitempty"`
}

type UnplannedSection struct {
	Unplanned            IssueGroup `json:"unplanned"`
	CompletedStoryPoints float64    `json:"completed_story_points"`
	Ratio                *float64   `json:"ratio,omitempty"`
}

type FocusSection struct {
	Completed IssueGroup `json:"completed"`
	Unplanned IssueGroup `json:"unplanned"`
	Roadmap   IssueGroup `json:"roadmap"`
	Bugs      IssueGroup `json:"bugs"`
	TechDebt  IssueGroup `json:"tech_debt"`
	Other     IssueGroup `json:"other"`
}

type DefectSection struct {
	Closed    int `json:"closed"`
	Remaining int `json:"remaining"`
}

// SprintReport is everything the presenters render for one sprint.
type SprintReport struct {
	RunID       string           `json:"run_id"`
	Project     string           `json:"project"`
	Sprint      Sprint           `json:"sprint"`
	GeneratedAt time.Time        `json:"generated_at"`
	Goals       GoalsSection     `json:"goals"`
	LeadTime    TimeSection      `json:"lead_time"`
	CycleTime   TimeSection      `json:"cycle_time"`
	InReview    TimeSection      `json:"in_review"`
	Velocity    VelocitySection  `json:"velocity"`
	Unplanned   UnplannedSection `json:"unplanned"`
	Focus       FocusSection     `json:"focus"`
	Defects     DefectSection    `json:"defects"`
	Incomplete  []string         `json:"incomplete,omitempty"`
	// Issues holds the per-issue metrics behind the development time sections.
	Issues []IssueMetrics `json:"issues,omitempty"`
}
