package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doneIssue = `{"key":"SD-1","fields":{
	"summary":"Login form","issuetype":{"name":"Story"},"priority":{"name":"High"},
	"status":{"name":"Done","statusCategory":{"key":"done"}},"project":{"key":"SD"},
	"labels":["sprint_goals"],"created":"2024-03-01T09:00:00.000+0000",
	"customfield_10020":3,"customfield_10016":[{"id":12}]},
	"changelog":{"startAt":0,"maxResults":100,"total":2,"histories":[
		{"id":"2","created":"2024-03-04T09:00:00.000+0000","items":[{"field":"status","fromString":"In Progress","toString":"Done"}]},
		{"id":"1","created":"2024-03-02T09:00:00.000+0000","items":[{"field":"status","fromString":"To Do","toString":"In Progress"}]}]}}`

func fakeJira(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/agile/1.0/sprint/12", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":12,"name":"S12","state":"closed","originBoardId":3,
			"startDate":"2024-03-01T10:00:00.000+0000","completeDate":"2024-03-15T10:00:00.000+0000"}`))
	})
	mux.HandleFunc("/rest/agile/1.0/board/3/sprint", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"isLast":true,"values":[
			{"id":11,"name":"S11","state":"closed","startDate":"2024-02-15T10:00:00.000+0000","completeDate":"2024-02-29T10:00:00.000+0000"},
			{"id":12,"name":"S12","state":"closed","startDate":"2024-03-01T10:00:00.000+0000","completeDate":"2024-03-15T10:00:00.000+0000"}]}`))
	})
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		jql := r.URL.Query().Get("jql")
		issues := "[]"
		if strings.HasPrefix(jql, "project = SD and sprint = 12") {
			issues = "[" + doneIssue + "]"
		}
		_, _ = w.Write([]byte(`{"startAt":0,"maxResults":100,"total":1,"issues":` + issues + `}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:               "dev",
		JiraBaseURL:          baseURL,
		JiraAPIVersion:       "2",
		JiraProject:          "SD",
		JiraStoryPointsField: "customfield_10020",
		JiraSprintField:      "customfield_10016",
		JiraPageSize:         100,
		HTTPTimeout:          5 * time.Second,
		WorkersJira:          2,
	}
}

func TestRunReportJSON(t *testing.T) {
	cfg := testConfig(fakeJira(t).URL)
	svc, err := buildService(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = runReport(context.Background(), &buf, cfg, svc, reportOptions{sprintID: "12", asJSON: true})
	require.NoError(t, err)

	var rep domain.SprintReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rep))
	assert.Equal(t, "S12", rep.Sprint.Name)
	assert.Equal(t, "SD", rep.Project)
	require.Len(t, rep.CycleTime.Rows, 1)
	assert.Equal(t, "SD-1", rep.CycleTime.Rows[0].Key)
	assert.Equal(t, 48*time.Hour, rep.CycleTime.Rows[0].Value)
	assert.Equal(t, 3.0, rep.Velocity.Completed.StoryPoints)
	require.Len(t, rep.Goals.Completed.Issues, 1)
}

func TestRunReportLatestClosedSprintAsText(t *testing.T) {
	cfg := testConfig(fakeJira(t).URL)
	cfg.JiraBoardID = 3
	svc, err := buildService(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, runReport(context.Background(), &buf, cfg, svc, reportOptions{}))
	assert.Contains(t, buf.String(), "S12")
	assert.Contains(t, buf.String(), "SD-1")
}

func TestResolveSprintNeedsBoard(t *testing.T) {
	cfg := testConfig("http://jira.invalid")
	svc, err := buildService(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	_, err = resolveSprint(context.Background(), cfg, svc, "")
	assert.ErrorContains(t, err, "--sprint")

	id, err := resolveSprint(context.Background(), cfg, svc, "42")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestBuildServiceRejectsBadTaxonomy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cycle: [\n"), 0o600))
	cfg := testConfig("http://jira.invalid")
	cfg.TaxonomyFile = path
	_, err := buildService(cfg, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestConfigFileAndEnvLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sprintpulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("JIRA_PROJECT: FILE\nJIRA_BOARD_ID: 7\nJIRA_PAGE_SIZE: 50\n"), 0o600))
	t.Setenv("JIRA_PROJECT", "ENV")
	t.Setenv("APP_TZ", "UTC")

	v := viper.New()
	require.NoError(t, readConfig(v, path))
	cfg := loadConfig(v)
	assert.Equal(t, "ENV", cfg.JiraProject)
	assert.Equal(t, int64(7), cfg.JiraBoardID)
	assert.Equal(t, 50, cfg.JiraPageSize)
	assert.Equal(t, "2", cfg.JiraAPIVersion)

	assert.Error(t, readConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")))
}
