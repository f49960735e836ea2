package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kilimo/internal/dataset"
	"github.com/hyperjump/kilimo/internal/insights"
	"github.com/hyperjump/kilimo/internal/matcher"
	"github.com/hyperjump/kilimo/internal/models"
	"github.com/hyperjump/kilimo/internal/search"
	"github.com/hyperjump/kilimo/internal/storage"
)

// noMatchMessage is the body error for an ask with no similar historical question.
const noMatchMessage = "no similar question found"

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var query models.AskQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	resp, err := s.engine.Ask(r.Context(), &query)
	if err != nil {
		outcome := "error"
		if matcher.IsNoMatch(err) {
			outcome = models.OutcomeNoMatch
		}
		s.metrics.observeAsk(outcome, time.Since(start))
		s.respondEngineError(w, err)
		return
	}
	s.metrics.observeAsk(models.OutcomeMatched, time.Since(start))
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	changed, err := s.Reload(r.Context())
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.Context())
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.Summary()
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCounties(w http.ResponseWriter, r *http.Request) {
	counts, err := s.engine.Counties()
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"counties": counts})
}

func (s *Server) handleCountyRecords(w http.ResponseWriter, r *http.Request) {
	county := chi.URLParam(r, "county")
	records, err := s.engine.CountyRecords(county)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	if records == nil {
		records = []*models.Record{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"county": county, "records": records})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	opts, err := s.engine.Filters()
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, opts)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := &models.RecordQuery{
		County: listParam(q["county"]),
		About:  listParam(q["about"]),
		Text:   q.Get("q"),
	}
	var err error
	if query.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	if query.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	page, err := s.engine.Records(r.Context(), query)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := intParam(q.Get("n"), 5)
	if err != nil || n < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid n")
		return
	}
	seed := uint64(1)
	if v := q.Get("seed"); v != "" {
		if seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid seed")
			return
		}
	}
	samples, err := s.engine.Samples(n, seed)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"responses": samples})
}

func (s *Server) handlePivot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pivot, err := s.engine.Pivot(insights.Filter{
		About:  listParam(q["about"]),
		County: listParam(q["county"]),
	})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, pivot)
}

func (s *Server) handleAsks(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 50)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	asks, err := s.engine.RecentAsks(r.Context(), limit)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	if asks == nil {
		asks = []*models.AskLogEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"asks": asks})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listParam accepts both repeated parameters and comma-separated values.
func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// statusFor maps engine and domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case matcher.IsNoMatch(err):
		return http.StatusNotFound, noMatchMessage
	case errors.Is(err, search.ErrInvalidQuery):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, search.ErrNotLoaded), errors.Is(err, search.ErrAskUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, search.ErrNoStorage):
		return http.StatusNotImplemented, err.Error()
	case errors.Is(err, insights.ErrMissingColumn):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, insights.ErrNoData):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, dataset.ErrSourceNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, msg)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
