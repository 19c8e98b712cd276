/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/HamedShams/sprint-pulse/internal/http"
	"github.com/HamedShams/sprint-pulse/internal/jobs"
	"github.com/HamedShams/sprint-pulse/internal/logger"
	"github.com/HamedShams/sprint-pulse/internal/repo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled reporter with its admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig(v)
			log := logger.New(cfg)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			db := repo.MustOpen(ctx, cfg, log)
			defer db.Close()
			repository := repo.NewRepository(db, log)
			if err := repository.EnsureSchema(ctx); err != nil {
				return err
			}

			svc, err := buildService(cfg, log, repository)
			if err != nil {
				return err
			}

			cron, err := jobs.NewCron(cfg, log, svc, repository)
			if err != nil {
				return err
			}
			cron.Start()
			defer cron.Stop()

			srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.NewRouter(cfg, log, cron, repository)}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.Info().Str("addr", cfg.HTTPAddr).Str("cron", cfg.ReportCron).Msg("sprintpulse serving")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case <-sigCh:
				log.Info().Msg("shutting down...")
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server error")
					return err
				}
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
