/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// LockKey guards report runs across replicas.
const LockKey int64 = 424242

const runTimeout = 10 * time.Minute

type service interface {
	RunLatest(ctx context.Context) (domain.SprintReport, error)
	Run(ctx context.Context, project, sprintID string, notify bool) (domain.SprintReport, error)
}

type store interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error)
	RecordFailure(ctx context.Context, runID, project, sprintID string, runErr error) error
}

type Cron struct {
	cfg   config.Config
	log   zerolog.Logger
	svc   service
	store store
	c     *cron.Cron
	wg    sync.WaitGroup
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, st store) (*Cron, error) {
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, svc: svc, store: st, c: c}
	if _, err := c.AddFunc(cfg.ReportCron, func() { _ = cr.RunOnce(context.Background(), "", "") }); err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", cfg.ReportCron, err)
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop halts scheduling and waits for running reports to finish.
func (cr *Cron) Stop() {
	<-cr.c.Stop().Done()
	cr.wg.Wait()
}

// Trigger runs a report in the background, detached from the caller's context.
func (cr *Cron) Trigger(project, sprintID string) {
	cr.wg.Add(1)
	go func() {
		defer cr.wg.Done()
		_ = cr.RunOnce(context.Background(), project, sprintID)
	}()
}

// RunOnce reports on sprintID, or on the board's latest closed sprint when it is empty.
// Only one run proceeds at a time across all replicas sharing the database.
func (cr *Cron) RunOnce(ctx context.Context, project, sprintID string) error {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	log := cr.log.With().Str("project", project).Str("sprint", sprintID).Logger()
	ran, err := cr.store.WithAdvisoryLock(ctx, LockKey, func(ctx context.Context) error {
		var rep domain.SprintReport
		var err error
		if sprintID == "" {
			rep, err = cr.svc.RunLatest(ctx)
		} else {
			rep, err = cr.svc.Run(ctx, project, sprintID, true)
		}
		if err != nil {
			sp := sprintID
			if sp == "" {
				sp = rep.Sprint.ID
			}
			proj := project
			if proj == "" {
				proj = cr.cfg.JiraProject
			}
			if rerr := cr.store.RecordFailure(context.WithoutCancel(ctx), uuid.NewString(), proj, sp, err); rerr != nil {
				log.Error().Err(rerr).Msg("cron: record failure")
			}
			return err
		}
		log.Info().Str("run_id", rep.RunID).Str("sprint", rep.Sprint.ID).Msg("cron: report delivered")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("cron: report failed")
		return err
	}
	if !ran {
		log.Info().Msg("cron: already running elsewhere")
	}
	return nil
}
