package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/HamedShams/sprint-pulse/internal/repo"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct{ triggered [][2]string }

func (f *fakeRunner) Trigger(project, sprintID string) {
	f.triggered = append(f.triggered, [2]string{project, sprintID})
}

type fakeStore struct {
	last    *repo.LastRun
	reports map[string]domain.SprintReport
}

func (f *fakeStore) GetLastRun(context.Context) (*repo.LastRun, error) {
	if f.last == nil {
		return nil, repo.ErrNotFound
	}
	return f.last, nil
}

func (f *fakeStore) ReportBySprint(_ context.Context, id string) (domain.SprintReport, error) {
	r, ok := f.reports[id]
	if !ok {
		return r, repo.ErrNotFound
	}
	return r, nil
}

func setup(cfg config.Config) (*gin.Engine, *fakeRunner, *fakeStore) {
	gin.SetMode(gin.TestMode)
	run := &fakeRunner{}
	st := &fakeStore{reports: map[string]domain.SprintReport{
		"12": {RunID: "run-1", Project: "SD", Sprint: domain.Sprint{ID: "12", Name: "S12"}, GeneratedAt: time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC)},
	}}
	cfg.AppEnv = "dev"
	return NewRouter(cfg, zerolog.Nop(), run, st), run, st
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _, _ := setup(config.Config{})
	w := do(r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestLastRun(t *testing.T) {
	r, _, st := setup(config.Config{})
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/admin/last-run").Code)

	st.last = &repo.LastRun{RunID: "run-1", SprintID: "12", Success: true}
	w := do(r, http.MethodGet, "/admin/last-run")
	require.Equal(t, http.StatusOK, w.Code)
	var got repo.LastRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, got.Success)
}

func TestRunNow(t *testing.T) {
	r, run, _ := setup(config.Config{JiraProject: "SD"})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/admin/run").Code)

	w := do(r, http.MethodPost, "/admin/run?sprint=12")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, [][2]string{{"SD", "12"}}, run.triggered)

	r, run, _ = setup(config.Config{JiraProject: "SD", JiraBoardID: 3})
	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/admin/run").Code)
	assert.Equal(t, [][2]string{{"SD", ""}}, run.triggered)
}

func TestReport(t *testing.T) {
	r, _, _ := setup(config.Config{})
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/reports/99").Code)

	w := do(r, http.MethodGet, "/reports/12")
	require.Equal(t, http.StatusOK, w.Code)
	var got domain.SprintReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "S12", got.Sprint.Name)

	w = do(r, http.MethodGet, "/reports/12?format=text")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "'SD' PROJECT STATISTICS FOR SPRINT 12 'S12'")
}
