/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/HamedShams/sprint-pulse/internal/repo"
	"github.com/HamedShams/sprint-pulse/internal/report"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type runner interface {
	Trigger(project, sprintID string)
}

type store interface {
	GetLastRun(ctx context.Context) (*repo.LastRun, error)
	ReportBySprint(ctx context.Context, sprintID string) (domain.SprintReport, error)
}

type Handlers struct {
	cfg   config.Config
	log   zerolog.Logger
	run   runner
	store store
}

func NewHandlers(cfg config.Config, log zerolog.Logger, run runner, st store) *Handlers {
	return &Handlers{cfg: cfg, log: log, run: run, store: st}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
	lr, err := h.store.GetLastRun(c.Request.Context())
	if errors.Is(err, repo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, lr)
}

// RunNow queues a report run. Without a sprint query parameter the board's latest closed
// sprint is reported.
func (h *Handlers) RunNow(c *gin.Context) {
	sprint := strings.TrimSpace(c.Query("sprint"))
	project := strings.TrimSpace(c.DefaultQuery("project", h.cfg.JiraProject))
	if sprint == "" && h.cfg.JiraBoardID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sprint is required when no board is configured"})
		return
	}
	h.run.Trigger(project, sprint)
	h.log.Info().Str("ip", c.ClientIP()).Str("sprint", sprint).Msg("report run queued")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// Report serves the latest stored report of a sprint as JSON, or as text with ?format=text.
func (h *Handlers) Report(c *gin.Context) {
	rep, err := h.store.ReportBySprint(c.Request.Context(), c.Param("sprint"))
	if errors.Is(err, repo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report for sprint"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "text" {
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Status(http.StatusOK)
		if err := report.Text(c.Writer, rep); err != nil {
			h.log.Error().Err(err).Str("sprint", rep.Sprint.ID).Msg("render report")
		}
		return
	}
	c.JSON(http.StatusOK, rep)
}
