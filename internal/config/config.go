/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv   string
	TZ       string
	HTTPAddr string

	DBDSN string

	JiraBaseURL          string
	JiraPAT              string
	JiraUsername         string
	JiraPassword         string
	JiraAPIVersion       string
	JiraProject          string
	JiraBoardID          int64
	JiraStoryPointsField string
	JiraSprintField      string
	JiraPageSize         int

	// LinkedProjects are the key prefixes whose references mark work as unplanned.
	LinkedProjects []string
	TaxonomyFile   string

	TelegramToken   string
	TelegramChatIDs []int64

	ReportCron  string
	HTTPTimeout time.Duration
	WorkersJira int
}

// Lookup resolves a configuration key; os.Getenv and viper's GetString both fit.
type Lookup func(key string) string

func (l Lookup) getenv(key, def string) string {
	v := strings.TrimSpace(l(key))
	if v == "" {
		return def
	}
	return v
}

func (l Lookup) atoi(key string, def int) int {
	v := l.getenv(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (l Lookup) int64(key string, def int64) int64 {
	v := l.getenv(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func (l Lookup) dur(key string, def time.Duration) time.Duration {
	v := l.getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func parseInt64s(csv string) []int64 {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}

func parseStrings(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Load reads the process environment.
func Load() Config {
	return LoadFrom(os.Getenv)
}

func LoadFrom(l Lookup) Config {
	cfg := Config{
		AppEnv:   l.getenv("APP_ENV", "dev"),
		TZ:       l.getenv("APP_TZ", "Asia/Tehran"),
		HTTPAddr: l.getenv("HTTP_ADDR", ":8080"),

		DBDSN: l.getenv("DB_DSN", ""),

		JiraBaseURL:          l.getenv("JIRA_BASE_URL", ""),
		JiraPAT:              l.getenv("JIRA_PAT", ""),
		JiraUsername:         l.getenv("JIRA_USERNAME", ""),
		JiraPassword:         l.getenv("JIRA_PASSWORD", ""),
		JiraAPIVersion:       l.getenv("JIRA_API_VERSION", "2"),
		JiraProject:          l.getenv("JIRA_PROJECT", ""),
		JiraBoardID:          l.int64("JIRA_BOARD_ID", 0),
		JiraStoryPointsField: l.getenv("JIRA_STORY_POINTS_FIELD", "customfield_10020"),
		JiraSprintField:      l.getenv("JIRA_SPRINT_FIELD", "customfield_10016"),
		JiraPageSize:         l.atoi("JIRA_PAGE_SIZE", 100),

		LinkedProjects: parseStrings(l.getenv("LINKED_PROJECTS", "UP,PI")),
		TaxonomyFile:   l.getenv("TAXONOMY_FILE", ""),

		TelegramToken:   l.getenv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs: parseInt64s(l.getenv("TELEGRAM_CHAT_IDS", "")),

		ReportCron:  l.getenv("REPORT_CRON", "0 10 * * MON"),
		HTTPTimeout: l.dur("HTTP_TIMEOUT", 15*time.Second),
		WorkersJira: l.atoi("WORKERS_JIRA", 6),
	}

	if cfg.JiraPageSize <= 0 {
		cfg.JiraPageSize = 100
	}
	if cfg.WorkersJira <= 0 {
		cfg.WorkersJira = 6
	}

	// Timestamps are naive wall-clock values; the zone only affects log output and cron.
	if loc, err := time.LoadLocation(cfg.TZ); err == nil {
		time.Local = loc
	} else {
		log.Warn().Err(err).Str("tz", cfg.TZ).Msg("cannot load time zone")
	}
	return cfg
}
