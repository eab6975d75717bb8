package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joshharrison/milestone/internal/authz"
	"github.com/joshharrison/milestone/internal/cpm"
	"github.com/joshharrison/milestone/internal/ctxlog"
	"github.com/joshharrison/milestone/internal/schedule"
	"github.com/joshharrison/milestone/internal/store"
	"github.com/joshharrison/milestone/internal/store/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func days(n int) *int { return &n }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := filestore.Open(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)

	anchor := cpm.Date(2025, time.January, 1)
	wbs := store.WBSItem{ID: 10, ProjectID: 1, Name: "Build"}
	require.NoError(t, s.Load(context.Background(), store.Snapshot{
		Projects: []store.Project{{ID: 1, OrgID: 100, Name: "Website", StartDate: &anchor}},
		WBSItems: []store.WBSItem{wbs},
		Tasks: []store.Task{
			{ID: 1, Name: "Design", Duration: days(3), WBSItem: wbs},
			{ID: 2, Name: "Build", Duration: days(2), WBSItem: wbs, Predecessors: []store.Dependency{{PredecessorID: 1}}},
		},
		Members: []store.Member{
			{ProjectID: 1, UserID: 7, Role: store.RoleAdmin},
			{ProjectID: 1, UserID: 8, Role: store.RoleMember},
		},
	}))

	g := &schedule.Guarded{Service: schedule.New(s, s), Auth: authz.Members{Catalog: s}}
	srv := httptest.NewServer(Handler(g, ctxlog.Discard()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, user, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
		req.Header.Set(HeaderOrgID, "100")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decodeRun(t *testing.T, body []byte) runResponse {
	t.Helper()
	var run runResponse
	require.NoError(t, json.Unmarshal(body, &run), string(body))
	return run
}

func TestCompute_ThenReadBack(t *testing.T) {
	srv := newServer(t)

	status, body := do(t, srv, http.MethodPost, "/schedule-runs/compute", "7", `{"projectId": 1, "runType": "rolling"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	run := decodeRun(t, body)

	assert.Equal(t, int64(1), run.ProjectID)
	assert.Equal(t, "rolling", run.RunType)
	require.Len(t, run.Items, 2)
	assert.Equal(t, itemResponse{
		ID: run.Items[0].ID, TaskID: 2, TaskName: "Build",
		EarlyStart: "2025-01-04", EarlyFinish: "2025-01-06",
		LateStart: "2025-01-04", LateFinish: "2025-01-06",
		Slack: 0, IsCritical: true,
	}, run.Items[0])
	assert.Equal(t, []int64{2, 1}, run.CriticalPath)
	_, err := time.Parse(time.RFC3339, run.ExecutedAt)
	assert.NoError(t, err)

	status, body = do(t, srv, http.MethodGet, "/schedule-runs/latest?projectId=1", "8", "")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, run.ID, decodeRun(t, body).ID)

	status, body = do(t, srv, http.MethodGet, fmt.Sprintf("/schedule-runs/%d", run.ID), "8", "")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, run.Items, decodeRun(t, body).Items)

	status, body = do(t, srv, http.MethodGet, "/schedule-runs?projectId=1", "8", "")
	require.Equal(t, http.StatusOK, status, string(body))
	var runs []runResponse
	require.NoError(t, json.Unmarshal(body, &runs))
	assert.Len(t, runs, 1)
}

func TestCompute_StringProjectIDAndDefaultRunType(t *testing.T) {
	srv := newServer(t)

	status, body := do(t, srv, http.MethodPost, "/schedule-runs/compute", "7", `{"projectId": "1"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Equal(t, "initial", decodeRun(t, body).RunType)
}

func TestDelete(t *testing.T) {
	srv := newServer(t)

	_, body := do(t, srv, http.MethodPost, "/schedule-runs/compute", "7", `{"projectId": 1}`)
	path := fmt.Sprintf("/schedule-runs/%d", decodeRun(t, body).ID)

	status, _ := do(t, srv, http.MethodDelete, path, "8", "")
	assert.Equal(t, http.StatusForbidden, status, "members cannot delete")

	status, _ = do(t, srv, http.MethodDelete, path, "7", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, srv, http.MethodGet, path, "7", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		want   int
	}{
		{"no identity", http.MethodGet, "/schedule-runs/latest?projectId=1", "", "", http.StatusUnauthorized},
		{"no run yet", http.MethodGet, "/schedule-runs/latest?projectId=1", "8", "", http.StatusNotFound},
		{"unknown project", http.MethodPost, "/schedule-runs/compute", "7", `{"projectId": 42}`, http.StatusNotFound},
		{"member computes", http.MethodPost, "/schedule-runs/compute", "8", `{"projectId": 1}`, http.StatusForbidden},
		{"outsider reads", http.MethodGet, "/schedule-runs?projectId=1", "9", "", http.StatusForbidden},
		{"bad run type", http.MethodPost, "/schedule-runs/compute", "7", `{"projectId": 1, "runType": "weekly"}`, http.StatusBadRequest},
		{"missing project id", http.MethodPost, "/schedule-runs/compute", "7", `{"runType": "initial"}`, http.StatusBadRequest},
		{"invalid json", http.MethodPost, "/schedule-runs/compute", "7", `{"projectId":`, http.StatusBadRequest},
		{"bad run id", http.MethodGet, "/schedule-runs/abc", "7", "", http.StatusBadRequest},
		{"missing query", http.MethodGet, "/schedule-runs", "7", "", http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/schedule-runs/compute", "7", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, status, string(body))
			if tt.want != http.StatusMethodNotAllowed {
				var e map[string]string
				require.NoError(t, json.Unmarshal(body, &e))
				assert.NotEmpty(t, e["error"])
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(&cpm.CycleError{Stalled: []int64{1}}))
	assert.Equal(t, http.StatusNotFound, statusOf(fmt.Errorf("load: %w", store.ErrNotFound)))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("disk on fire")))
}

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	s := &server{logger: ctxlog.New("warn", "text", &logs)}

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), "write response failed")
	assert.Contains(t, logs.String(), "status=200")
}
