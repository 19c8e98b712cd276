/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/HamedShams/sprint-pulse/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JQLTimeFormat is the minute precision JQL accepts in date comparisons.
const JQLTimeFormat = "2006-01-02 15:04"

const scopeBatch = 100

var (
	leadPriorities = []string{"Critical", "High"}
	techDebtLabels = []string{"techdebt", "tech_debt", "tech"}
	techWord       = regexp.MustCompile(`(?i)\btech\b`)
)

type queries struct {
	inSprint   string
	completed  string
	goals      string
	lead       string
	done       string
	bugsClosed string
	bugsOpen   string
}

// newQueries builds the JQL for a sprint. An active sprint is cut off at now.
func newQueries(project string, sp domain.Sprint, now time.Time) queries {
	end := sp.CompleteAt
	if end.IsZero() {
		end = now
	}
	inSprint := fmt.Sprintf("project = %s and sprint = %s", project, sp.ID)
	window := fmt.Sprintf("resolved >= '%s' and resolved < '%s'", sp.StartAt.Format(JQLTimeFormat), end.Format(JQLTimeFormat))
	bugs := fmt.Sprintf("project = %s and type = bug and priority != low", project)
	return queries{
		inSprint:   inSprint,
		completed:  inSprint + " and " + window,
		goals:      inSprint + " and labels = sprint_goals",
		lead:       inSprint + " and priority in (Critical,High) and type = Story and " + window + " and statusCategory = Done",
		done:       inSprint + " and " + window + " and statusCategory = Done",
		bugsClosed: bugs + " and statusCategory = Done",
		bugsOpen:   bugs + " and statusCategory != Done",
	}
}

// SprintReport builds every report section for one sprint.
func (s *Service) SprintReport(ctx context.Context, project, sprintID string) (domain.SprintReport, error) {
	var rep domain.SprintReport
	if project == "" {
		project = s.cfg.JiraProject
	}
	if strings.TrimSpace(project) == "" || strings.TrimSpace(sprintID) == "" {
		return rep, errors.New("services: project and sprint are required")
	}
	sp, err := s.sprints.Sprint(ctx, sprintID)
	if err != nil {
		return rep, fmt.Errorf("load sprint %s: %w", sprintID, err)
	}
	if sp.StartAt.IsZero() {
		return rep, fmt.Errorf("sprint %s has not started", sprintID)
	}
	rep = domain.SprintReport{RunID: uuid.NewString(), Project: project, Sprint: sp, GeneratedAt: s.now()}
	log := s.log.With().Str("run_id", rep.RunID).Str("project", project).Str("sprint", sp.ID).Logger()
	q := newQueries(project, sp, rep.GeneratedAt)

	completed, err := s.Collect(ctx, q.completed)
	if err != nil {
		return rep, fmt.Errorf("completed issues: %w", err)
	}
	planned, err := s.Collect(ctx, q.goals)
	if err != nil {
		return rep, fmt.Errorf("sprint goals: %w", err)
	}
	committed, err := s.committed(ctx, log, sp, q, completed)
	if err != nil {
		return rep, fmt.Errorf("committed issues: %w", err)
	}

	var done []domain.IssueLog
	for _, il := range completed.Issues {
		if il.Issue.Done() {
			done = append(done, il)
		}
	}
	ms, err := s.Analyze(ctx, done)
	if err != nil {
		return rep, fmt.Errorf("analyze sprint %s: %w", sp.ID, err)
	}
	rep.Issues = ms

	completedIssues := issuesOf(completed.Issues)
	rep.Goals = domain.GoalsSection{
		Planned:   group("Planned sprint goals", q.goals, issuesOf(planned.Issues)),
		Completed: group("Completed sprint goals", q.completed+" and labels = sprint_goals", filter(completedIssues, func(i domain.Issue) bool { return i.HasLabel("sprint_goals") })),
	}
	leadMs := filterMetrics(ms, func(m domain.IssueMetrics) bool { return isLeadCandidate(m.Issue) })
	rep.LeadTime = timeSection("Lead time", q.lead, leadMs, func(m domain.IssueMetrics) time.Duration { return m.LeadTime })
	rep.CycleTime = timeSection("Cycle time", q.done, ms, func(m domain.IssueMetrics) time.Duration { return m.CycleTime })
	rep.InReview = timeSection("In Review time", q.done, ms, func(m domain.IssueMetrics) time.Duration { return m.InReview })
	rep.Velocity = velocity(sp.ID, q, committed, completedIssues)
	rep.Unplanned = unplanned(completedIssues)
	rep.Focus = focus(q, completedIssues)

	if rep.Defects.Closed, err = s.count(ctx, q.bugsClosed); err != nil {
		return rep, fmt.Errorf("closed bugs: %w", err)
	}
	if rep.Defects.Remaining, err = s.count(ctx, q.bugsOpen); err != nil {
		return rep, fmt.Errorf("open bugs: %w", err)
	}

	rep.Incomplete = incomplete(completed, planned, committed)
	log.Info().Int("completed", len(completed.Issues)).Int("analyzed", len(ms)).Int("incomplete", len(rep.Incomplete)).Msg("sprint report built")
	return rep, nil
}

func isLeadCandidate(i domain.Issue) bool {
	if !strings.EqualFold(i.Type, "Story") {
		return false
	}
	for _, p := range leadPriorities {
		if strings.EqualFold(i.Priority, p) {
			return true
		}
	}
	return false
}

// committed returns every issue that was in scope of the sprint. The Greenhopper scope
// report includes issues removed mid-sprint; when it is unavailable the current sprint
// content is used instead.
func (s *Service) committed(ctx context.Context, log zerolog.Logger, sp domain.Sprint, q queries, completed Collection) (Collection, error) {
	keys, err := s.sprints.SprintScope(ctx, sp.BoardID, sp.ID)
	if err != nil || len(keys) == 0 {
		log.Warn().Err(err).Msg("sprint scope unavailable, falling back to current sprint content")
		c, err := s.Collect(ctx, q.inSprint)
		if err != nil {
			return c, err
		}
		seen := map[string]struct{}{}
		var out Collection
		out.Skipped = c.Skipped
		for _, il := range slices.Concat(c.Issues, completed.Issues) {
			if _, ok := seen[il.Issue.Key]; ok || !everInSprint(il, sp.ID) {
				continue
			}
			seen[il.Issue.Key] = struct{}{}
			out.Issues = append(out.Issues, il)
		}
		sort.Slice(out.Issues, func(i, j int) bool { return out.Issues[i].Issue.Key < out.Issues[j].Issue.Key })
		return out, nil
	}
	var out Collection
	for batch := range slices.Chunk(keys, scopeBatch) {
		c, err := s.Collect(ctx, "issue in ("+strings.Join(batch, ", ")+")")
		if err != nil {
			return out, err
		}
		out.Issues = append(out.Issues, c.Issues...)
		out.Skipped = append(out.Skipped, c.Skipped...)
	}
	return out, nil
}

func everInSprint(il domain.IssueLog, sprintID string) bool {
	return slices.Contains(il.Issue.Sprints, sprintID) || metrics.SprintMemberships(il.Log).Has(sprintID)
}

// removedFromSprint reports an issue whose history shows the sprint but whose sprint
// field no longer does.
func removedFromSprint(il domain.IssueLog, sprintID string) bool {
	return !slices.Contains(il.Issue.Sprints, sprintID) && metrics.SprintMemberships(il.Log).Has(sprintID)
}

func (s *Service) count(ctx context.Context, jql string) (int, error) {
	n := 0
	for _, err := range s.issues.Query(ctx, jql) {
		var me *domain.MalformedEventError
		if err != nil && !errors.As(err, &me) {
			return n, err
		}
		n++
	}
	return n, nil
}

func issuesOf(logs []domain.IssueLog) []domain.Issue {
	out := make([]domain.Issue, 0, len(logs))
	for _, il := range logs {
		out = append(out, il.Issue)
	}
	return out
}

func filter(issues []domain.Issue, keep func(domain.Issue) bool) []domain.Issue {
	var out []domain.Issue
	for _, i := range issues {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}

func filterMetrics(ms []domain.IssueMetrics, keep func(domain.IssueMetrics) bool) []domain.IssueMetrics {
	var out []domain.IssueMetrics
	for _, m := range ms {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func line(i domain.Issue) domain.IssueLine {
	return domain.IssueLine{Key: i.Key, Type: i.Type, Summary: i.Summary, StoryPoints: i.StoryPoints, LinkedRefs: i.LinkedRefs}
}

func group(title, jql string, issues []domain.Issue) domain.IssueGroup {
	g := domain.IssueGroup{Title: title, JQL: jql, Issues: make([]domain.IssueLine, 0, len(issues))}
	for _, i := range issues {
		g.Issues = append(g.Issues, line(i))
		g.StoryPoints += i.StoryPoints
	}
	return g
}

func percent(part, whole float64) *float64 {
	if whole == 0 {
		return nil
	}
	r := math.Round(part/whole*100*100) / 100
	return &r
}

// timeSection lists every analysed issue, longest first, and aggregates the complete ones.
func timeSection(title, jql string, ms []domain.IssueMetrics, value func(domain.IssueMetrics) time.Duration) domain.TimeSection {
	sec := domain.TimeSection{Title: title, JQL: jql, Rows: make([]domain.TimeRow, 0, len(ms))}
	var samples []time.Duration
	for _, m := range ms {
		v := value(m)
		sec.Rows = append(sec.Rows, domain.TimeRow{Key: m.Key, Type: m.Type, Summary: m.Summary, Value: v, Incomplete: m.Incomplete})
		if !m.Incomplete {
			samples = append(samples, v)
		}
	}
	sort.SliceStable(sec.Rows, func(i, j int) bool { return sec.Rows[i].Value > sec.Rows[j].Value })
	if p, err := metrics.Percentiles(samples); err == nil {
		sec.Percentiles = p
	}
	return sec
}

func velocity(sprintID string, q queries, committed Collection, completed []domain.Issue) domain.VelocitySection {
	done := map[string]struct{}{}
	for _, i := range completed {
		done[i.Key] = struct{}{}
	}
	var removed, notCompleted []domain.Issue
	for _, il := range committed.Issues {
		if _, ok := done[il.Issue.Key]; ok {
			continue
		}
		if removedFromSprint(il, sprintID) {
			removed = append(removed, il.Issue)
		} else {
			notCompleted = append(notCompleted, il.Issue)
		}
	}
	v := domain.VelocitySection{
		Committed:    group("Issues committed", "", issuesOf(committed.Issues)),
		Completed:    group("Issues completed", q.completed, completed),
		NotCompleted: group("Issues not completed", "", notCompleted),
		Removed:      group("Issues removed from the sprint", "", removed),
	}
	v.Ratio = percent(v.Completed.StoryPoints, v.Committed.StoryPoints)
	return v
}

func unplanned(completed []domain.Issue) domain.UnplannedSection {
	u := domain.UnplannedSection{Unplanned: group("Unplanned work", "", filter(completed, domain.Issue.Unplanned))}
	for _, i := range completed {
		u.CompletedStoryPoints += i.StoryPoints
	}
	u.Ratio = percent(u.Unplanned.StoryPoints, u.CompletedStoryPoints)
	return u
}

func isTechDebt(i domain.Issue) bool {
	return i.HasLabel(techDebtLabels...) || techWord.MatchString(i.Summary)
}

// focus splits completed work by kind. Bugs already counted as unplanned are left out of
// the bug group; an issue matching no group lands in Other.
func focus(q queries, completed []domain.Issue) domain.FocusSection {
	isBug := func(i domain.Issue) bool { return strings.EqualFold(i.Type, "Bug") && !i.Unplanned() }
	isRoadmap := func(i domain.Issue) bool { return i.HasLabel("roadmap") }
	return domain.FocusSection{
		Completed: group("All completed issues", q.completed, completed),
		Unplanned: group("Unplanned issues", "", filter(completed, domain.Issue.Unplanned)),
		Roadmap:   group("Roadmap issues completed", q.completed+" and labels = roadmap", filter(completed, isRoadmap)),
		Bugs:      group("Bugs resolved", q.completed+" and type = bug", filter(completed, isBug)),
		TechDebt:  group("Tech debt closed", q.completed+" and (labels in (techdebt, tech_debt, tech) or summary ~ 'tech')", filter(completed, isTechDebt)),
		Other: group("Other issues closed", "", filter(completed, func(i domain.Issue) bool {
			return !i.Unplanned() && !isBug(i) && !isRoadmap(i) && !isTechDebt(i)
		})),
	}
}

func incomplete(cs ...Collection) []string {
	seen := map[string]struct{}{}
	for _, c := range cs {
		for _, k := range c.Skipped {
			seen[k] = struct{}{}
		}
		for _, il := range c.Issues {
			if il.Issue.Incomplete {
				seen[il.Issue.Key] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
