// Package api exposes schedule runs over HTTP.
//
// Routes:
//
//	POST   /schedule-runs/compute            {"projectId": 1, "runType": "initial"}
//	GET    /schedule-runs/latest?projectId=1
//	GET    /schedule-runs?projectId=1
//	GET    /schedule-runs/{id}
//	DELETE /schedule-runs/{id}
//
// The caller is identified by the X-User-ID, X-Org-ID and X-Super-Admin
// headers, set by an authenticating proxy in front of this server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/joshharrison/milestone/internal/authz"
	"github.com/joshharrison/milestone/internal/cpm"
	"github.com/joshharrison/milestone/internal/ctxlog"
	"github.com/joshharrison/milestone/internal/schedule"
	"github.com/joshharrison/milestone/internal/store"
	"github.com/tidwall/gjson"
)

// Scheduler is the caller-scoped schedule surface served by the API.
type Scheduler interface {
	ComputeSchedule(ctx context.Context, caller authz.Caller, projectID int64, runType store.RunType) (store.ScheduleRun, error)
	LatestRun(ctx context.Context, caller authz.Caller, projectID int64) (store.ScheduleRun, error)
	ListRuns(ctx context.Context, caller authz.Caller, projectID int64) ([]store.ScheduleRun, error)
	GetRun(ctx context.Context, caller authz.Caller, id int64) (store.ScheduleRun, error)
	DeleteRun(ctx context.Context, caller authz.Caller, id int64) error
}

var _ Scheduler = (*schedule.Guarded)(nil)

// Identity headers.
const (
	HeaderUserID     = "X-User-ID"
	HeaderOrgID      = "X-Org-ID"
	HeaderSuperAdmin = "X-Super-Admin"
)

const maxBodyBytes = 1 << 20

var errUnauthenticated = errors.New("missing caller identity")

type server struct {
	sched  Scheduler
	logger *slog.Logger
}

// Handler returns the HTTP handler for sched. Requests are logged to logger.
func Handler(sched Scheduler, logger *slog.Logger) http.Handler {
	s := &server{sched: sched, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /schedule-runs/compute", s.handleCompute)
	mux.HandleFunc("GET /schedule-runs/latest", s.handleLatest)
	mux.HandleFunc("GET /schedule-runs", s.handleList)
	mux.HandleFunc("GET /schedule-runs/{id}", s.handleGet)
	mux.HandleFunc("DELETE /schedule-runs/{id}", s.handleDelete)
	return s.withLogging(mux)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := ctxlog.WithLogger(r.Context(), s.logger)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *server) handleCompute(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, badRequest("read body: %v", err))
		return
	}
	projectID, runType, err := parseComputeRequest(body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	run, err := s.sched.ComputeSchedule(r.Context(), caller, projectID, runType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toRunResponse(run))
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	caller, projectID, err := callerAndProject(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	run, err := s.sched.LatestRun(r.Context(), caller, projectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRunResponse(run))
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	caller, projectID, err := callerAndProject(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	runs, err := s.sched.ListRuns(r.Context(), caller, projectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	caller, id, err := callerAndRunID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	run, err := s.sched.GetRun(r.Context(), caller, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRunResponse(run))
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	caller, id, err := callerAndRunID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.sched.DeleteRun(r.Context(), caller, id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// parseComputeRequest reads projectId and runType from a compute body.
// projectId may be a JSON number or a numeric string.
func parseComputeRequest(body []byte) (int64, store.RunType, error) {
	if !gjson.ValidBytes(body) {
		return 0, "", badRequest("body is not valid JSON")
	}

	pid := gjson.GetBytes(body, "projectId")
	var projectID int64
	switch pid.Type {
	case gjson.Number:
		projectID = pid.Int()
		if float64(projectID) != pid.Num {
			return 0, "", badRequest("projectId must be an integer")
		}
	case gjson.String:
		n, err := strconv.ParseInt(pid.Str, 10, 64)
		if err != nil {
			return 0, "", badRequest("projectId must be an integer")
		}
		projectID = n
	default:
		return 0, "", badRequest("projectId is required")
	}
	if projectID <= 0 {
		return 0, "", badRequest("projectId must be positive")
	}

	rt := gjson.GetBytes(body, "runType")
	if rt.Exists() && rt.Type != gjson.String {
		return 0, "", badRequest("runType must be a string")
	}
	return projectID, store.RunType(rt.Str), nil
}

func callerFrom(r *http.Request) (authz.Caller, error) {
	userID, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
	if err != nil {
		return authz.Caller{}, fmt.Errorf("%s: %w", HeaderUserID, errUnauthenticated)
	}
	orgID, err := strconv.ParseInt(r.Header.Get(HeaderOrgID), 10, 64)
	if err != nil {
		return authz.Caller{}, fmt.Errorf("%s: %w", HeaderOrgID, errUnauthenticated)
	}
	super, _ := strconv.ParseBool(r.Header.Get(HeaderSuperAdmin))
	return authz.Caller{UserID: userID, OrgID: orgID, SuperAdmin: super}, nil
}

func callerAndProject(r *http.Request) (authz.Caller, int64, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return caller, 0, err
	}
	projectID, err := strconv.ParseInt(r.URL.Query().Get("projectId"), 10, 64)
	if err != nil || projectID <= 0 {
		return caller, 0, badRequest("projectId query parameter is required")
	}
	return caller, projectID, nil
}

func callerAndRunID(r *http.Request) (authz.Caller, int64, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return caller, 0, err
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return caller, 0, badRequest("invalid run id %q", r.PathValue("id"))
	}
	return caller, id, nil
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, cpm.ErrInvalidGraph),
		errors.Is(err, schedule.ErrInvalidRunType):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
		msg = http.StatusText(status)
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON sends v with status. The status line is already out when
// encoding fails, so the failure is only logged.
func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", "status", status, "err", err)
	}
}
