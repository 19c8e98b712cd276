/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/HamedShams/sprint-pulse/internal/adapters/jira"
	"github.com/HamedShams/sprint-pulse/internal/adapters/telegram"
	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/metrics"
	"github.com/HamedShams/sprint-pulse/internal/services"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags that override an environment key of the same meaning.
var flagKeys = map[string]string{
	"project":  "JIRA_PROJECT",
	"board":    "JIRA_BOARD_ID",
	"taxonomy": "TAXONOMY_FILE",
	"env":      "APP_ENV",
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:          "sprintpulse",
		Short:        "Sprint flow metrics from Jira changelogs",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return readConfig(v, cfgFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, json, toml or .env) with upper-case env keys")
	pf.String("project", "", "Jira project key (JIRA_PROJECT)")
	pf.Int64("board", 0, "Jira board id (JIRA_BOARD_ID)")
	pf.String("taxonomy", "", "status taxonomy YAML (TAXONOMY_FILE)")
	pf.String("env", "", "dev for console logs, anything else for JSON (APP_ENV)")
	for flag, key := range flagKeys {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(newReportCmd(v), newServeCmd(v))
	return root
}

// readConfig layers flags over the environment over the optional config file.
func readConfig(v *viper.Viper, file string) error {
	v.AutomaticEnv()
	if strings.TrimSpace(file) == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", file, err)
	}
	return nil
}

func loadConfig(v *viper.Viper) config.Config {
	return config.LoadFrom(v.GetString)
}

// buildService wires the Jira adapters, taxonomy and notifier. store may be nil.
func buildService(cfg config.Config, log zerolog.Logger, store services.Store) (*services.Service, error) {
	tax, err := metrics.LoadTaxonomy(cfg.TaxonomyFile)
	if err != nil {
		return nil, err
	}
	jc := jira.NewClient(cfg, log)
	issues := jira.NewRepository(jc, jira.Fields{
		StoryPoints:    cfg.JiraStoryPointsField,
		Sprint:         cfg.JiraSprintField,
		LinkedProjects: cfg.LinkedProjects,
	}, cfg.JiraPageSize, log)
	tg := telegram.NewClient(cfg, log)
	return services.New(cfg, log, issues, jc, tax, store, tg), nil
}

// resolveSprint returns sprintID, or the latest closed sprint of the configured board.
func resolveSprint(ctx context.Context, cfg config.Config, svc *services.Service, sprintID string) (string, error) {
	if sprintID != "" {
		return sprintID, nil
	}
	if cfg.JiraBoardID <= 0 {
		return "", fmt.Errorf("either --sprint or a board id (--board, JIRA_BOARD_ID) is required")
	}
	sp, err := svc.LatestClosedSprint(ctx, cfg.JiraBoardID)
	if err != nil {
		return "", err
	}
	return sp.ID, nil
}
