/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	PoolMaxConns          = int32(10)
	PoolMinConns          = int32(1)
	PoolMaxConnLifetime   = 30 * time.Minute
	PoolMaxConnIdleTime   = 5 * time.Minute
	PoolHealthCheckPeriod = 1 * time.Minute
)

// ErrNotFound is returned when no stored report matches.
var ErrNotFound = errors.New("repo: not found")

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func Open(ctx context.Context, dsn string, log zerolog.Logger) (*DB, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing db config failed: %w", err)
	}
	pcfg.MaxConns = PoolMaxConns
	pcfg.MinConns = PoolMinConns
	pcfg.MaxConnLifetime = PoolMaxConnLifetime
	pcfg.MaxConnIdleTime = PoolMaxConnIdleTime
	pcfg.HealthCheckPeriod = PoolHealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool failed: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return &DB{Pool: pool, log: log}, nil
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	db, err := Open(ctx, cfg.DBDSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	return db
}

func (d *DB) Close() { d.Pool.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS report_runs (
		id          BIGSERIAL PRIMARY KEY,
		run_id      UUID NOT NULL UNIQUE,
		project     TEXT NOT NULL,
		sprint_id   TEXT NOT NULL,
		sprint_name TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		success     BOOLEAN NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		incomplete  INTEGER NOT NULL DEFAULT 0,
		report      JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS report_runs_sprint_idx ON report_runs(sprint_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS issue_metrics (
		run_id         UUID NOT NULL REFERENCES report_runs(run_id) ON DELETE CASCADE,
		issue_key      TEXT NOT NULL,
		issue_type     TEXT NOT NULL DEFAULT '',
		lead_seconds   BIGINT NOT NULL,
		cycle_seconds  BIGINT NOT NULL,
		review_seconds BIGINT NOT NULL,
		statuses       JSONB NOT NULL,
		sprints        TEXT[] NOT NULL DEFAULT '{}',
		incomplete     BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (run_id, issue_key)
	)`,
}

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// EnsureSchema creates the tables if they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := r.db.Pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// WithAdvisoryLock runs fn while holding a session advisory lock on a dedicated connection.
// It reports false without calling fn when another session holds the lock.
func (r *Repository) WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error) {
	conn, err := r.db.Pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		var unlocked bool
		// the caller's context may already be cancelled
		if err := conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", key).Scan(&unlocked); err != nil || !unlocked {
			r.log.Error().Err(err).Int64("key", key).Msg("advisory unlock failed")
		}
	}()
	return true, fn(ctx)
}

// SaveReport stores the rendered report and its per-issue metrics in one transaction.
func (r *Repository) SaveReport(ctx context.Context, rep domain.SprintReport) error {
	runID, err := uuid.Parse(rep.RunID)
	if err != nil {
		return fmt.Errorf("run id %q: %w", rep.RunID, err)
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const qRun = `INSERT INTO report_runs(run_id, project, sprint_id, sprint_name, created_at, success, incomplete, report)
		VALUES($1,$2,$3,$4,$5,true,$6,$7)`
	if _, err := tx.Exec(ctx, qRun, runID, rep.Project, rep.Sprint.ID, rep.Sprint.Name, rep.GeneratedAt, len(rep.Incomplete), body); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if len(rep.Issues) > 0 {
		batch := &pgx.Batch{}
		const qIssue = `INSERT INTO issue_metrics(run_id, issue_key, issue_type, lead_seconds, cycle_seconds, review_seconds, statuses, sprints, incomplete)
			VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`
		for _, m := range rep.Issues {
			statuses := make(map[string]int64, len(m.Statuses))
			for k, v := range m.Statuses {
				statuses[k] = int64(v / time.Second)
			}
			sb, _ := json.Marshal(statuses)
			sprints := m.Sprints
			if sprints == nil {
				sprints = []string{}
			}
			batch.Queue(qIssue, runID, m.Key, m.Type, int64(m.LeadTime/time.Second), int64(m.CycleTime/time.Second),
				int64(m.InReview/time.Second), sb, sprints, m.Incomplete)
		}
		br := tx.SendBatch(ctx, batch)
		for range rep.Issues {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert issue metrics: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// RecordFailure stores a failed run so /admin/last-run can surface it.
func (r *Repository) RecordFailure(ctx context.Context, runID, project, sprintID string, runErr error) error {
	const q = `INSERT INTO report_runs(run_id, project, sprint_id, success, error) VALUES($1,$2,$3,false,$4)`
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("run id %q: %w", runID, err)
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err = r.db.Pool.Exec(ctx, q, id, project, sprintID, msg)
	return err
}

type LastRun struct {
	RunID      string    `json:"run_id"`
	Project    string    `json:"project"`
	SprintID   string    `json:"sprint_id"`
	SprintName string    `json:"sprint_name"`
	CreatedAt  time.Time `json:"created_at"`
	Success    bool      `json:"success"`
	Error      string    `json:"error"`
	Incomplete int       `json:"incomplete"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
	const q = `SELECT run_id::text, project, sprint_id, sprint_name, created_at, success, error, incomplete
		FROM report_runs ORDER BY id DESC LIMIT 1`
	lr := &LastRun{}
	err := r.db.Pool.QueryRow(ctx, q).Scan(&lr.RunID, &lr.Project, &lr.SprintID, &lr.SprintName, &lr.CreatedAt, &lr.Success, &lr.Error, &lr.Incomplete)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return lr, nil
}

// ReportBySprint returns the latest successful report stored for a sprint.
func (r *Repository) ReportBySprint(ctx context.Context, sprintID string) (domain.SprintReport, error) {
	const q = `SELECT report FROM report_runs WHERE sprint_id = $1 AND success ORDER BY id DESC LIMIT 1`
	var rep domain.SprintReport
	var body []byte
	err := r.db.Pool.QueryRow(ctx, q, sprintID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(body, &rep); err != nil {
		return rep, fmt.Errorf("decode report: %w", err)
	}
	return rep, nil
}
