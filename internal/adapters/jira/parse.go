/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseTime reads a Jira timestamp as a naive local value: the wall clock as written is
// kept, the offset dropped and sub-second precision truncated.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Fields names the instance specific custom fields and the linked-project heuristic.
type Fields struct {
	StoryPoints    string
	Sprint         string
	LinkedProjects []string
}

type rawItem struct {
	Field      string `json:"field"`
	FieldID    string `json:"fieldId"`
	From       string `json:"from"`
	FromString string `json:"fromString"`
	To         string `json:"to"`
	ToString   string `json:"toString"`
}

type rawHistory struct {
	ID      string    `json:"id"`
	Created string    `json:"created"`
	Items   []rawItem `json:"items"`
}

type rawChangelog struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	Histories  []rawHistory `json:"histories"`
}

type named struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

type rawStatus struct {
	Name           string `json:"name"`
	StatusCategory struct {
		Key string `json:"key"`
	} `json:"statusCategory"`
}

type rawFields struct {
	Summary        string    `json:"summary"`
	IssueType      named     `json:"issuetype"`
	Priority       *named    `json:"priority"`
	Status         rawStatus `json:"status"`
	Project        named     `json:"project"`
	Labels         []string  `json:"labels"`
	Created        string    `json:"created"`
	ResolutionDate *string   `json:"resolutiondate"`
}

type rawIssue struct {
	Key       string                     `json:"key"`
	Fields    map[string]json.RawMessage `json:"fields"`
	Changelog *rawChangelog              `json:"changelog"`
}

// Parser converts raw tracker payloads into the typed model once, at the boundary.
type Parser struct {
	fields Fields
	linked *regexp.Regexp
}

func NewParser(f Fields) *Parser {
	p := &Parser{fields: f}
	var alts []string
	for _, prefix := range f.LinkedProjects {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			alts = append(alts, regexp.QuoteMeta(prefix))
		}
	}
	if len(alts) > 0 {
		p.linked = regexp.MustCompile(`"key"\s*:\s*"((?:` + strings.Join(alts, "|") + `)-\d{3})"`)
	}
	return p
}

// LinkedRefs scans the serialized issue for keys of the linked projects followed by exactly
// three digits. This is a pattern match over the whole payload, not a walk of issue links,
// so references in any nested object count. The issue's own key is excluded.
func (p *Parser) LinkedRefs(self string, raw []byte) []string {
	if p.linked == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, m := range p.linked.FindAllSubmatch(raw, -1) {
		k := string(m[1])
		if k == self {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ParsedIssue is the result of parsing one search hit. ChangelogTotal and ChangelogSeen tell
// the caller whether the search expand truncated the changelog.
type ParsedIssue struct {
	domain.IssueLog
	ChangelogTotal int
	ChangelogSeen  int
	// Warnings are the recoverable problems; each skipped a single changelog entry.
	Warnings []error
}

// Parse converts one raw search hit. A returned error means the issue itself is unusable.
func (p *Parser) Parse(raw json.RawMessage) (ParsedIssue, error) {
	var out ParsedIssue
	var ri rawIssue
	if err := json.Unmarshal(raw, &ri); err != nil {
		return out, fmt.Errorf("decode issue: %w", err)
	}
	if ri.Key == "" {
		return out, errors.New("decode issue: missing key")
	}
	iss, err := p.issue(ri, raw)
	if err != nil {
		return out, &domain.MalformedEventError{IssueKey: ri.Key, Reason: err.Error()}
	}
	var histories []rawHistory
	if ri.Changelog != nil {
		histories = ri.Changelog.Histories
		out.ChangelogTotal = ri.Changelog.Total
		out.ChangelogSeen = ri.Changelog.StartAt + len(histories)
	}
	groups, warnings := p.Events(ri.Key, histories)
	out.Warnings = warnings
	iss.Incomplete = len(warnings) > 0
	out.Issue = iss
	out.Log = domain.FromHistories(groups)
	return out, nil
}

func (p *Parser) issue(ri rawIssue, raw []byte) (domain.Issue, error) {
	var f rawFields
	if len(ri.Fields) > 0 {
		b, _ := json.Marshal(ri.Fields)
		if err := json.Unmarshal(b, &f); err != nil {
			return domain.Issue{}, fmt.Errorf("fields: %w", err)
		}
	}
	created, err := ParseTime(f.Created)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("created: %w", err)
	}
	iss := domain.Issue{
		Key:            ri.Key,
		Project:        f.Project.Key,
		Summary:        f.Summary,
		Type:           f.IssueType.Name,
		Status:         f.Status.Name,
		StatusCategory: f.Status.StatusCategory.Key,
		Labels:         f.Labels,
		CreatedAt:      created,
		LinkedRefs:     p.LinkedRefs(ri.Key, raw),
	}
	if iss.Project == "" {
		iss.Project, _, _ = strings.Cut(ri.Key, "-")
	}
	if f.Priority != nil {
		iss.Priority = f.Priority.Name
	}
	if f.ResolutionDate != nil && *f.ResolutionDate != "" {
		if t, err := ParseTime(*f.ResolutionDate); err == nil {
			iss.ResolvedAt = &t
		}
	}
	if v, ok := ri.Fields[p.fields.StoryPoints]; ok {
		iss.StoryPoints = storyPoints(v)
	}
	if v, ok := ri.Fields[p.fields.Sprint]; ok {
		iss.Sprints = sprintIDs(v)
	}
	return iss, nil
}

// storyPoints accepts a number, a numeric string or null; anything else counts as unset.
func storyPoints(v json.RawMessage) float64 {
	var n float64
	if err := json.Unmarshal(v, &n); err == nil && n > 0 {
		return n
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

var serverSprintID = regexp.MustCompile(`\bid=(\d+)`)

// sprintIDs reads the current sprint field: objects with an id on Cloud, serialized
// "com.atlassian.greenhopper.service.sprint.Sprint@...[id=12,...]" strings on Server.
func sprintIDs(v json.RawMessage) []string {
	if len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil
	}
	var objs []struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(v, &objs); err == nil {
		var out []string
		for _, o := range objs {
			if o.ID != "" {
				out = append(out, o.ID.String())
			}
		}
		return out
	}
	var strs []string
	if err := json.Unmarshal(v, &strs); err == nil {
		var out []string
		for _, s := range strs {
			if m := serverSprintID.FindStringSubmatch(s); m != nil {
				out = append(out, m[1])
			}
		}
		return out
	}
	return nil
}

// Events converts each history into its events, one group per history in source order.
// Histories with an unreadable timestamp and items of an unexpected shape are skipped and
// reported as warnings.
func (p *Parser) Events(key string, histories []rawHistory) ([][]domain.Event, []error) {
	out := make([][]domain.Event, 0, len(histories))
	var warnings []error
	for _, h := range histories {
		at, err := ParseTime(h.Created)
		if err != nil {
			warnings = append(warnings, &domain.MalformedEventError{IssueKey: key, Reason: fmt.Sprintf("history %s: %v", h.ID, err)})
			continue
		}
		var group []domain.Event
		for _, it := range h.Items {
			ev, err := event(it, at)
			if err != nil {
				warnings = append(warnings, &domain.MalformedEventError{IssueKey: key, Reason: fmt.Sprintf("history %s: %v", h.ID, err)})
				continue
			}
			group = append(group, ev)
		}
		out = append(out, group)
	}
	return out, warnings
}

func event(it rawItem, at time.Time) (domain.Event, error) {
	field := it.Field
	if field == "" {
		field = it.FieldID
	}
	switch {
	case field == "":
		return domain.Event{}, errors.New("item without field name")
	case strings.EqualFold(field, "status"):
		from, to := strings.TrimSpace(it.FromString), strings.TrimSpace(it.ToString)
		if from == "" || to == "" {
			return domain.Event{}, fmt.Errorf("status item without a name (%q -> %q)", it.FromString, it.ToString)
		}
		return domain.Event{Field: domain.FieldStatus, FromVal: from, ToVal: to, At: at}, nil
	case strings.EqualFold(field, "sprint"):
		return domain.Event{Field: domain.FieldSprint, FromVal: strings.TrimSpace(it.From), ToVal: strings.TrimSpace(it.To), At: at}, nil
	default:
		return domain.Event{Field: field, FromVal: it.FromString, ToVal: it.ToString, At: at}, nil
	}
}
