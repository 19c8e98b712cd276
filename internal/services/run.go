/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/HamedShams/sprint-pulse/internal/report"
)

// ErrNoClosedSprint is returned when a board has no closed sprint to report on.
var ErrNoClosedSprint = errors.New("services: board has no closed sprint")

// Run builds a report, persists it when a store is configured and optionally delivers the
// digest. A delivery failure is returned alongside the built report.
func (s *Service) Run(ctx context.Context, project, sprintID string, notify bool) (domain.SprintReport, error) {
	rep, err := s.SprintReport(ctx, project, sprintID)
	if err != nil {
		return rep, err
	}
	if s.store != nil {
		if err := s.store.SaveReport(ctx, rep); err != nil {
			return rep, fmt.Errorf("save report %s: %w", rep.RunID, err)
		}
	}
	if notify {
		if err := s.Notify(ctx, rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// Notify sends the Markdown digest of rep to the configured chats.
func (s *Service) Notify(ctx context.Context, rep domain.SprintReport) error {
	if s.tg == nil || !s.tg.Enabled() {
		s.log.Warn().Str("run_id", rep.RunID).Msg("telegram not configured, digest not sent")
		return nil
	}
	if err := s.tg.Broadcast(ctx, report.Markdown(rep)); err != nil {
		return fmt.Errorf("deliver digest %s: %w", rep.RunID, err)
	}
	s.log.Info().Str("run_id", rep.RunID).Msg("digest delivered")
	return nil
}

// LatestClosedSprint picks the most recently completed sprint of a board.
func (s *Service) LatestClosedSprint(ctx context.Context, boardID int64) (domain.Sprint, error) {
	sprints, err := s.sprints.BoardSprints(ctx, boardID, "closed")
	if err != nil {
		return domain.Sprint{}, fmt.Errorf("list sprints of board %d: %w", boardID, err)
	}
	var latest domain.Sprint
	for _, sp := range sprints {
		if sp.CompleteAt.After(latest.CompleteAt) {
			latest = sp
		}
	}
	if latest.ID == "" {
		return latest, ErrNoClosedSprint
	}
	return latest, nil
}

// RunLatest reports on the latest closed sprint of the configured board and delivers it.
func (s *Service) RunLatest(ctx context.Context) (domain.SprintReport, error) {
	sp, err := s.LatestClosedSprint(ctx, s.cfg.JiraBoardID)
	if err != nil {
		return domain.SprintReport{}, err
	}
	return s.Run(ctx, s.cfg.JiraProject, sp.ID, true)
}
