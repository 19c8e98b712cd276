/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Changelog field names the engine understands. Anything else is carried but ignored.
const (
	FieldStatus = "status"
	FieldSprint = "sprint"
)

// Issue is the immutable snapshot of a tracker ticket taken at fetch time.
type Issue struct {
	Key      string
	Project  string
	Summary  string
	Type     string
	Priority string
	Status   string
	// StatusCategory is the workflow category key: "new", "indeterminate" or "done".
	StatusCategory string
	Labels         []string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
	StoryPoints    float64
	Sprints        []string
	LinkedRefs     []string
	// Incomplete is set when the changelog had items that could not be parsed.
	Incomplete bool
}

// Done reports whether the current status belongs to the done category.
func (i Issue) Done() bool { return strings.EqualFold(i.StatusCategory, "done") }

// Unplanned reports whether the issue references a linked unplanned-work ticket.
func (i Issue) Unplanned() bool { return len(i.LinkedRefs) > 0 }

// HasLabel matches labels case-insensitively, as JQL does.
func (i Issue) HasLabel(names ...string) bool {
	for _, l := range i.Labels {
		for _, n := range names {
			if strings.EqualFold(l, n) {
				return true
			}
		}
	}
	return false
}

// Event is one field transition from an issue changelog.
type Event struct {
	Field   string
	FromVal string
	ToVal   string
	At      time.Time
}

// IssueLog pairs an issue with its chronological changelog.
type IssueLog struct {
	Issue Issue
	Log   EventLog
}

// Sprint is sprint metadata from the agile API.
type Sprint struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	BoardID    int64     `json:"board_id"`
	State      string    `json:"state"`
	StartAt    time.Time `json:"start_at"`
	CompleteAt time.Time `json:"complete_at"`
}

// MalformedEventError marks a changelog entry that could not be converted into an Event.
// It is recoverable: the entry is skipped and the issue flagged incomplete.
type MalformedEventError struct {
	IssueKey string
	Reason   string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed changelog event on %s: %s", e.IssueKey, e.Reason)
}
