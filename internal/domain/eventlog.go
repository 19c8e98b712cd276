/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
	"slices"
	"sort"
)

// EventLog is an issue changelog in ascending time order. Treat it as read-only.
type EventLog []Event

// FromSource builds an EventLog from events in tracker delivery order (newest first).
// The order is inverted; if the source was not strictly newest-first the result is
// stable-sorted so the ascending invariant always holds.
func FromSource(events []Event) EventLog {
	return EventLog(events).Reversed().ascending()
}

// FromHistories builds an EventLog from changelog histories in delivery order (newest first),
// one event group per history. Histories are inverted; items keep their order within one.
func FromHistories(groups [][]Event) EventLog {
	var out EventLog
	for i := len(groups) - 1; i >= 0; i-- {
		out = append(out, groups[i]...)
	}
	return out.ascending()
}

// ascending stable-sorts l in place when needed, so equal timestamps keep their order.
func (l EventLog) ascending() EventLog {
	if !l.Sorted() {
		sort.SliceStable(l, func(i, j int) bool { return l[i].At.Before(l[j].At) })
	}
	return l
}

// Reversed returns a copy in the opposite order. Applying it twice yields the original order.
func (l EventLog) Reversed() EventLog {
	out := slices.Clone(l)
	slices.Reverse(out)
	return out
}

// Sorted reports whether events are non-decreasing in time.
func (l EventLog) Sorted() bool {
	for i := 1; i < len(l); i++ {
		if l[i].At.Before(l[i-1].At) {
			return false
		}
	}
	return true
}

// Field returns the events touching field, preserving order.
func (l EventLog) Field(field string) EventLog {
	var out EventLog
	for _, e := range l {
		if e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

// Statuses lists every status name appearing on either side of a status transition.
func (l EventLog) Statuses() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range l.Field(FieldStatus) {
		for _, s := range []string{e.FromVal, e.ToVal} {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Append returns a new log with events added, re-sorted if they arrived out of order.
func (l EventLog) Append(events ...Event) EventLog {
	return append(slices.Clone(l), events...).ascending()
}
