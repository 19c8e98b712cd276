/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultPageSize is the search page size; a shorter page ends the query.
const DefaultPageSize = 100

// Repository yields parsed issues with their full changelog for a JQL query.
type Repository struct {
	client   *Client
	parser   *Parser
	pageSize int
	log      zerolog.Logger
}

func NewRepository(c *Client, fields Fields, pageSize int, log zerolog.Logger) *Repository {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Repository{client: c, parser: NewParser(fields), pageSize: pageSize, log: log}
}

// Query lazily pages through the search results. Each call starts a fresh query.
//
// A *domain.MalformedEventError is yielded with the key of an issue that could not be
// parsed and iteration continues; any other error ends the sequence.
func (r *Repository) Query(ctx context.Context, jql string) iter.Seq2[domain.IssueLog, error] {
	return func(yield func(domain.IssueLog, error) bool) {
		startAt := 0
		for {
			page, err := r.client.Search(ctx, jql, startAt, r.pageSize, "changelog")
			if err != nil {
				yield(domain.IssueLog{}, fmt.Errorf("search at %d: %w", startAt, err))
				return
			}
			for _, raw := range page.Issues {
				il, err := r.issue(ctx, raw)
				var me *domain.MalformedEventError
				if err != nil && !errors.As(err, &me) {
					yield(domain.IssueLog{}, err)
					return
				}
				if !yield(il, err) {
					return
				}
			}
			if len(page.Issues) < r.pageSize {
				return
			}
			startAt += len(page.Issues)
		}
	}
}

func (r *Repository) issue(ctx context.Context, raw []byte) (domain.IssueLog, error) {
	pi, err := r.parser.Parse(raw)
	if err != nil {
		var me *domain.MalformedEventError
		if errors.As(err, &me) {
			r.log.Warn().Str("issue", me.IssueKey).Str("reason", me.Reason).Msg("skipping unparsable issue")
			return domain.IssueLog{Issue: domain.Issue{Key: me.IssueKey, Incomplete: true}}, err
		}
		return domain.IssueLog{}, err
	}
	warnings := pi.Warnings
	if pi.ChangelogTotal > pi.ChangelogSeen {
		// The expand holds only the newest histories; the full changelog replaces it.
		log, w, err := r.fullHistory(ctx, pi.Issue.Key)
		if err != nil {
			return domain.IssueLog{}, fmt.Errorf("changelog %s: %w", pi.Issue.Key, err)
		}
		pi.Log, warnings = log, w
	}
	for _, w := range warnings {
		r.log.Warn().Err(w).Str("issue", pi.Issue.Key).Msg("skipped changelog entry")
	}
	pi.Issue.Incomplete = len(warnings) > 0
	return pi.IssueLog, nil
}

// fullHistory reads an issue's whole changelog, which /changelog returns oldest first.
func (r *Repository) fullHistory(ctx context.Context, key string) (domain.EventLog, []error, error) {
	var events []domain.Event
	var warnings []error
	startAt := 0
	for {
		page, err := r.client.Changelog(ctx, key, startAt, r.pageSize)
		if err != nil {
			return nil, nil, err
		}
		groups, w := r.parser.Events(key, page.Values)
		events = append(events, slices.Concat(groups...)...)
		warnings = append(warnings, w...)
		startAt += len(page.Values)
		if page.IsLast || len(page.Values) == 0 || (page.Total > 0 && startAt >= page.Total) {
			return domain.EventLog(nil).Append(events...), warnings, nil
		}
	}
}
