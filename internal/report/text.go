/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

const (
	banner    = 100
	summaryAt = 20
)

type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *textWriter) section(title string) {
	t.printf("\n%s\n%s:\n", strings.Repeat("-", banner), title)
}

func (t *textWriter) line(l domain.IssueLine) {
	t.printf("    %s (%s), SP=%s '%s'\n", l.Key, l.Type, FormatPoints(l.StoryPoints), l.Summary)
}

func (t *textWriter) group(label string, g domain.IssueGroup, withJQL bool) {
	if withJQL && g.JQL != "" {
		t.printf("%s: %s\n    count=%d, SP=%s\n", label, g.JQL, len(g.Issues), FormatPoints(g.StoryPoints))
	} else {
		t.printf("%s:\n    count=%d, SP=%s\n", label, len(g.Issues), FormatPoints(g.StoryPoints))
	}
	for _, l := range g.Issues {
		t.line(l)
	}
}

func (t *textWriter) timeSection(s domain.TimeSection, column string) {
	t.printf("\n%s (%s),\n50th, 80th, 90th percentiles: %s\n", s.Title, s.JQL, FormatPercentiles(s.Percentiles))
	if len(s.Rows) == 0 || t.err != nil {
		return
	}
	tw := tabwriter.NewWriter(t.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "    KEY\tTYPE\tSUMMARY\t%s\n", column)
	for _, r := range s.Rows {
		mark := ""
		if r.Incomplete {
			mark = " *"
		}
		fmt.Fprintf(tw, "    %s%s\t%s\t%s\t%s\n", r.Key, mark, r.Type, truncate(r.Summary, summaryAt), FormatDuration(r.Value))
	}
	t.err = tw.Flush()
}

// Text writes the full plain-text sprint report.
func Text(w io.Writer, r domain.SprintReport) error {
	t := &textWriter{w: w}
	t.printf("\n%s\n'%s' PROJECT STATISTICS FOR SPRINT %s '%s' (generated %s, run %s):\n",
		strings.Repeat("*", banner), r.Project, r.Sprint.ID, r.Sprint.Name, r.GeneratedAt.Format(time.DateTime), r.RunID)
	t.printf("Sprint window: %s .. %s\n", r.Sprint.StartAt.Format(time.DateTime), r.Sprint.CompleteAt.Format(time.DateTime))

	t.section("SPRINT GOALS COMPLETION")
	t.printf("%d planned sprint goal(s):\n", len(r.Goals.Planned.Issues))
	for _, l := range r.Goals.Planned.Issues {
		t.line(l)
	}
	t.printf("%d completed sprint goal(s):\n", len(r.Goals.Completed.Issues))
	for _, l := range r.Goals.Completed.Issues {
		t.line(l)
	}

	t.section("DEVELOPMENT TIME")
	t.timeSection(r.LeadTime, "LEAD_TIME")
	t.timeSection(r.CycleTime, "CYCLE_TIME")
	t.timeSection(r.InReview, "IN_REVIEW")

	v := r.Velocity
	t.section("TEAM VELOCITY")
	t.printf("Issues committed:\n")
	for _, l := range v.Committed.Issues {
		t.line(l)
	}
	t.printf("Issues completed: %s\n", v.Completed.JQL)
	for _, l := range v.Completed.Issues {
		t.line(l)
	}
	t.printf("Issues not completed:\n")
	for _, l := range v.NotCompleted.Issues {
		t.line(l)
	}
	if len(v.Removed.Issues) > 0 {
		t.printf("Issues removed from the sprint:\n")
		for _, l := range v.Removed.Issues {
			t.line(l)
		}
	}
	t.printf("Committed story points: %s\n", FormatPoints(v.Committed.StoryPoints))
	t.printf("Completed story points: %s\n", FormatPoints(v.Completed.StoryPoints))
	if v.Ratio != nil {
		t.printf("Completed/committed ratio: %s\n", formatRatio(v.Ratio))
	}

	u := r.Unplanned
	t.section("UNPLANNED WORK")
	for _, l := range u.Unplanned.Issues {
		t.printf("    Issue %s (%s) '%s'\n        has linked ticket(s): %s\n", l.Key, l.Type, l.Summary, strings.Join(l.LinkedRefs, ", "))
	}
	t.printf("All completed issues story points: %s\n", FormatPoints(u.CompletedStoryPoints))
	t.printf("Unplanned work story points: %s\n", FormatPoints(u.Unplanned.StoryPoints))
	if u.Ratio != nil {
		t.printf("Unplanned/completed ratio: %s\n", formatRatio(u.Ratio))
	}

	f := r.Focus
	t.section("FOCUS STRUCTURE")
	t.group("All completed issues", f.Completed, true)
	t.group("Unplanned issues", f.Unplanned, false)
	t.group("Roadmap issues completed", f.Roadmap, true)
	t.group("Bugs resolved (without linked tickets)", f.Bugs, true)
	t.group("Tech debt closed", f.TechDebt, true)
	t.group("Other issues closed", f.Other, false)

	t.section("DEFECT DYNAMICS")
	t.printf("    Closed (Medium+): %d\n    Remaining (Medium+): %d\n", r.Defects.Closed, r.Defects.Remaining)

	if len(r.Incomplete) > 0 {
		t.printf("\n* incomplete changelog, excluded from percentiles: %s\n", strings.Join(r.Incomplete, ", "))
	}
	return t.err
}
