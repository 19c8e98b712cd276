/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
	"sort"
	"strings"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

// SprintSet is the set of sprint ids an issue was ever associated with.
type SprintSet map[string]struct{}

// Has reports membership.
func (s SprintSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order, numeric ids compared numerically.
func (s SprintSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// SprintMemberships collects sprint ids from both sides of every sprint transition,
// so sprints the issue was later removed from are still reported.
func SprintMemberships(log domain.EventLog) SprintSet {
	out := SprintSet{}
	for _, e := range log {
		if e.Field != domain.FieldSprint {
			continue
		}
		for _, id := range ParseSprintIDs(e.ToVal) {
			out[id] = struct{}{}
		}
		for _, id := range ParseSprintIDs(e.FromVal) {
			out[id] = struct{}{}
		}
	}
	return out
}

// ParseSprintIDs splits a sprint field value: empty means none, a bare number is one id,
// anything else is a ", " separated list from a bulk move.
func ParseSprintIDs(v string) []string {
	if v == "" {
		return nil
	}
	if isDigits(v) {
		return []string{v}
	}
	var out []string
	for _, p := range strings.Split(v, ", ") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
