/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/HamedShams/sprint-pulse/internal/logger"
	"github.com/HamedShams/sprint-pulse/internal/repo"
	"github.com/HamedShams/sprint-pulse/internal/report"
	"github.com/HamedShams/sprint-pulse/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type reportOptions struct {
	sprintID string
	asJSON   bool
	notify   bool
	persist  bool
}

func newReportCmd(v *viper.Viper) *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build a sprint report and print it",
		Long: `Build the flow report for one sprint and print it to stdout.

Without --sprint the latest closed sprint of the configured board is used.
Logs go to stderr so the output can be piped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig(v)
			log := logger.New(cfg)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var store services.Store
			if opts.persist {
				db, err := repo.Open(ctx, cfg.DBDSN, log)
				if err != nil {
					return err
				}
				defer db.Close()
				r := repo.NewRepository(db, log)
				if err := r.EnsureSchema(ctx); err != nil {
					return err
				}
				store = r
			}
			svc, err := buildService(cfg, log, store)
			if err != nil {
				return err
			}
			return runReport(ctx, cmd.OutOrStdout(), cfg, svc, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.sprintID, "sprint", "", "sprint id")
	f.BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	f.BoolVar(&opts.notify, "notify", false, "send the digest to the configured Telegram chats")
	f.BoolVar(&opts.persist, "persist", false, "store the report in Postgres (DB_DSN)")
	return cmd
}

func runReport(ctx context.Context, w io.Writer, cfg config.Config, svc *services.Service, opts reportOptions) error {
	sprintID, err := resolveSprint(ctx, cfg, svc, opts.sprintID)
	if err != nil {
		return err
	}
	rep, err := svc.Run(ctx, cfg.JiraProject, sprintID, false)
	if err != nil {
		return err
	}
	if err := writeReport(w, rep, opts.asJSON); err != nil {
		return err
	}
	if opts.notify {
		return svc.Notify(ctx, rep)
	}
	return nil
}

func writeReport(w io.Writer, rep domain.SprintReport, asJSON bool) error {
	if !asJSON {
		return report.Text(w, rep)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
