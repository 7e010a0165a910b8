package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"framereel/internal/api"
	"framereel/internal/config"
	"framereel/internal/deps"
	"framereel/internal/jobs"
	"framereel/internal/logging"
	"framereel/internal/sequence"
	"framereel/internal/services"
)

const (
	defaultEventLimit = 200
	// followWait keeps long-polls below the server write timeout.
	followWait = 25 * time.Second
	maxBodyBytes = 1 << 20
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  cfg.Paths.APIToken,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, requestIDMiddleware(s.log(), authMiddleware(s.token, h)))
	}
	handle("/api/status", s.handleStatus)
	handle("/api/deps", s.handleDeps)
	handle("/api/scan", s.handleScan)
	handle("/api/browse", s.handleBrowse)
	handle("/api/convert", s.handleConvert)
	handle("/api/cancel", s.handleCancel)
	handle("/api/cleanup", s.handleCleanup)
	handle("/api/events", s.handleEvents)
	handle("/api/history", s.handleHistory)
	handle("/ws/status", s.handleWebSocket)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, api.ServiceStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		HistoryPath:  status.HistoryPath,
		StagingDir:   status.StagingDir,
		Job:          api.FromSnapshot(status.Job),
		Checks:       api.FromChecks(status.Checks),
	})
}

func (s *apiServer) handleDeps(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	statuses := deps.CheckBinaries(r.Context(), deps.Requirements(s.daemon.cfg))
	s.writeJSON(w, http.StatusOK, api.DepsResponse{Dependencies: api.FromDeps(statuses)})
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.ScanRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "validation")
		return
	}
	dir, err := s.resolveDir(req.Path)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "validation")
		return
	}
	result, err := s.daemon.Scan(dir)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromScan(dir, result, s.daemon.cfg.Preconvert.Extensions))
}

func (s *apiServer) handleBrowse(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	raw := r.URL.Query().Get("path")
	if strings.TrimSpace(raw) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error(), "")
			return
		}
		raw = home
	}
	dir, err := s.resolveDir(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "validation")
		return
	}
	entries, err := sequence.List(dir, s.daemon.cfg.Scan.Extensions)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := api.BrowseResponse{Path: dir, Entries: entries}
	if parent := filepath.Dir(dir); parent != dir {
		resp.Parent = parent
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var job jobs.JobConfig
	if err := decodeBody(w, r, &job); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job: "+err.Error(), "validation")
		return
	}
	id, err := s.daemon.coordinator.Submit(job)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	logging.WithContext(r.Context(), s.log()).Info("job accepted", logging.String(logging.FieldJobID, id))
	s.writeJSON(w, http.StatusAccepted, api.ConvertResponse{JobID: id})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	jobID := s.daemon.coordinator.Snapshot().JobID
	if err := s.daemon.coordinator.Cancel(); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.CancelResponse{JobID: jobID, Cancelled: true})
}

func (s *apiServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.CleanupRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "validation")
			return
		}
	}
	if flagSet(r.URL.Query().Get("all")) {
		req.All = true
	}
	result := s.daemon.CleanStaging(r.Context(), req.All)
	s.writeJSON(w, http.StatusOK, api.FromCleanup(s.daemon.cfg.Paths.StagingDir, result))
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	hub := s.daemon.coordinator.Hub()
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultEventLimit
	}
	follow := flagSet(query.Get("follow"))
	tail := flagSet(query.Get("tail"))

	if tail && since == 0 && !follow {
		events, next := hub.Tail(limit)
		s.writeJSON(w, http.StatusOK, api.EventsResponse{Events: api.FromEvents(events), Next: next})
		return
	}

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, followWait)
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, since, limit, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if r.Context().Err() != nil {
		return
	}
	if len(events) == 0 && next < since {
		next = since
	}
	s.writeJSON(w, http.StatusOK, api.EventsResponse{Events: api.FromEvents(events), Next: next})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	store := s.daemon.History()
	if store == nil {
		s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: []api.HistoryEntry{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := store.List(r.Context(), limit, strings.TrimSpace(r.URL.Query().Get("outcome")))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: api.FromHistory(entries)})
}

func (s *apiServer) resolveDir(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("path is required")
	}
	expanded, err := config.ExpandPath(raw)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		return "", fmt.Errorf("path %q must be absolute", raw)
	}
	return filepath.Clean(expanded), nil
}

func (s *apiServer) allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	return false
}

// writeFailure maps domain errors onto HTTP status codes.
func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	s.writeError(w, status, err.Error(), kind)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, jobs.ErrJobActive):
		return http.StatusConflict, "busy"
	case errors.Is(err, jobs.ErrNoActiveJob):
		return http.StatusConflict, "idle"
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusUnprocessableEntity, "configuration"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, services.ErrSequenceNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden, "permission"
	default:
		return http.StatusInternalServerError, ""
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func flagSet(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

func (s *apiServer) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return logging.NewNop()
}
