package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"loadtest-engine/internal/config"
	"loadtest-engine/internal/driver"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/forecast"
	"loadtest-engine/internal/history"
	"loadtest-engine/internal/plan"
	"loadtest-engine/internal/stats"
)

const maxBodyBytes = 1 << 20

// LoadTestResponse is returned for every finished run.
type LoadTestResponse struct {
	ID       string             `json:"id"`
	Driver   string             `json:"driver"`
	Partial  bool               `json:"partial,omitempty"`
	Result   *stats.TestResult  `json:"result"`
	Forecast *forecast.Forecast `json:"forecast"`
}

func newLoadTestResponse(report *engine.Report, entry *history.Entry) LoadTestResponse {
	id := report.RunID
	if entry != nil {
		id = entry.ID
	}
	return LoadTestResponse{
		ID:       id,
		Driver:   report.Driver,
		Partial:  report.Partial,
		Result:   report.Result,
		Forecast: report.Forecast,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "healthy"}
	if store := s.orch.History(); store != nil {
		if err := store.HealthCheck(r.Context()); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "History backend unavailable", err)
			return
		}
		status["history"] = "ok"
	}
	WriteResponse(w, http.StatusOK, status)
}

func (s *Server) runLoadTest(w http.ResponseWriter, r *http.Request) {
	var cfg config.TestConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&cfg); err != nil {
		WriteError(w, http.StatusBadRequest, errInvalidJSON, err.Error())
		return
	}

	report, entry, err := s.orch.Execute(r.Context(), cfg)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	WriteResponse(w, http.StatusOK, newLoadTestResponse(report, entry))
}

func (s *Server) retryHistory(w http.ResponseWriter, r *http.Request) {
	if s.orch.History() == nil {
		WriteError(w, http.StatusNotFound, errNoHistory)
		return
	}

	report, entry, err := s.orch.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	WriteResponse(w, http.StatusOK, newLoadTestResponse(report, entry))
}

func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *config.ValidationError
	switch {
	case errors.As(err, &validation):
		WriteError(w, http.StatusBadRequest, errInvalidConfig, validation.Fields)
	case errors.Is(err, plan.ErrInvalidConfig):
		WriteError(w, http.StatusBadRequest, errInvalidConfig, err)
	case errors.Is(err, history.ErrNotFound):
		WriteError(w, http.StatusNotFound, errNotFound, err)
	case errors.Is(err, driver.ErrCancelled) && errors.Is(context.Cause(r.Context()), errShuttingDown):
		s.logger.Warn("load test cancelled by server shutdown")
		w.Header().Set("Retry-After", "5")
		WriteError(w, http.StatusServiceUnavailable, errShutdown)
	case errors.Is(err, driver.ErrCancelled):
		// the client is gone, nothing to write
		s.logger.Info("load test cancelled by client")
	default:
		s.logger.Error("load test failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, errInternal, err)
	}
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	store := s.orch.History()
	if store == nil {
		WriteResponse(w, http.StatusOK, []history.Entry{})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit", raw)
			return
		}
		limit = n
	}

	entries, err := store.List(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, errInternal, err)
		return
	}
	WriteResponse(w, http.StatusOK, entries)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	store := s.orch.History()
	if store == nil {
		WriteError(w, http.StatusNotFound, errNoHistory)
		return
	}

	entry, err := store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		WriteError(w, http.StatusNotFound, errNotFound)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, errInternal, err)
		return
	}
	WriteResponse(w, http.StatusOK, entry)
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	store := s.orch.History()
	if store == nil {
		WriteError(w, http.StatusNotFound, errNoHistory)
		return
	}

	err := store.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		WriteError(w, http.StatusNotFound, errNotFound)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, errInternal, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	store := s.orch.History()
	if store == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := store.Clear(r.Context()); err != nil {
		WriteError(w, http.StatusInternalServerError, errInternal, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
