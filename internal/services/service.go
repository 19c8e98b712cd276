/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/HamedShams/sprint-pulse/internal/metrics"
	"github.com/rs/zerolog"
)

type IssueRepository interface {
	Query(ctx context.Context, jql string) iter.Seq2[domain.IssueLog, error]
}

type SprintRepository interface {
	Sprint(ctx context.Context, id string) (domain.Sprint, error)
	SprintScope(ctx context.Context, boardID int64, sprintID string) ([]string, error)
	BoardSprints(ctx context.Context, boardID int64, state string) ([]domain.Sprint, error)
}

type Notifier interface {
	Enabled() bool
	Broadcast(ctx context.Context, chunks []string) error
}

type Store interface {
	SaveReport(ctx context.Context, r domain.SprintReport) error
}

type Service struct {
	cfg     config.Config
	log     zerolog.Logger
	issues  IssueRepository
	sprints SprintRepository
	tax     *metrics.Taxonomy
	store   Store
	tg      Notifier
	now     func() time.Time
}

// New wires the report service. store and tg may be nil when persistence or delivery is off.
func New(cfg config.Config, log zerolog.Logger, issues IssueRepository, sprints SprintRepository, tax *metrics.Taxonomy, store Store, tg Notifier) *Service {
	if tax == nil {
		tax = metrics.DefaultTaxonomy()
	}
	return &Service{cfg: cfg, log: log, issues: issues, sprints: sprints, tax: tax, store: store, tg: tg, now: time.Now}
}

// Collection is the parsed result of one query. Skipped lists issues that could not be
// parsed at all.
type Collection struct {
	Issues  []domain.IssueLog
	Skipped []string
}

// Collect drains a query. Unparsable issues are recorded and skipped; any other error aborts.
func (s *Service) Collect(ctx context.Context, jql string) (Collection, error) {
	var c Collection
	for il, err := range s.issues.Query(ctx, jql) {
		if err != nil {
			var me *domain.MalformedEventError
			if errors.As(err, &me) {
				c.Skipped = append(c.Skipped, me.IssueKey)
				continue
			}
			return c, err
		}
		c.Issues = append(c.Issues, il)
	}
	return c, nil
}

// Analyze computes per-issue metrics with a bounded worker pool. A taxonomy gap on any
// issue fails the whole batch. Results are ordered by issue key.
func (s *Service) Analyze(ctx context.Context, logs []domain.IssueLog) ([]domain.IssueMetrics, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerCount := s.cfg.WorkersJira
	if workerCount <= 0 {
		workerCount = 6
	}
	jobs := make(chan domain.IssueLog)
	var (
		mu       sync.Mutex
		out      = make([]domain.IssueMetrics, 0, len(logs))
		firstErr error
		wg       sync.WaitGroup
	)
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for il := range jobs {
				m, err := metrics.Analyze(il, s.tax)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
						cancel()
					}
				} else {
					out = append(out, m)
				}
				mu.Unlock()
			}
		}()
	}
feed:
	for _, il := range logs {
		select {
		case jobs <- il:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		var gap *metrics.TaxonomyGapError
		if errors.As(firstErr, &gap) {
			s.log.Error().Str("issue", gap.IssueKey).Str("status", gap.Status).Msg("status missing from taxonomy")
		}
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
