package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/sortingview/internal/config"
	"github.com/banshee-data/sortingview/internal/db"
	"github.com/banshee-data/sortingview/internal/httputil"
	"github.com/banshee-data/sortingview/internal/monitoring"
	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/taskqueue"
	"github.com/banshee-data/sortingview/internal/unitmetrics"
	"github.com/banshee-data/sortingview/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db        *db.DB
	tasks     *taskqueue.Service
	metrics   *unitmetrics.Registry
	collector *unitmetrics.Collector
	cfg       *config.ViewerConfig

	mu    sync.Mutex
	views map[string]*view
}

func NewServer(database *db.DB, tasks *taskqueue.Service, metrics *unitmetrics.Registry, cfg *config.ViewerConfig) *Server {
	if cfg == nil {
		cfg = &config.ViewerConfig{}
	}
	return &Server{
		db:        database,
		tasks:     tasks,
		metrics:   metrics,
		collector: &unitmetrics.Collector{Tasks: tasks},
		cfg:       cfg,
		views:     make(map[string]*view),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/recordings", s.handleRecordings)
	mux.HandleFunc("/api/sortings", s.handleSortings)
	mux.HandleFunc("/api/views", s.handleViews)
	mux.HandleFunc("/api/views/render", s.handleViewRender)
	mux.HandleFunc("/api/views/selection", s.handleViewSelection)
	mux.HandleFunc("/api/views/events", s.handleViewEvents)
	mux.HandleFunc("/api/curation", s.handleCuration)
	mux.HandleFunc("/api/tasks", s.handleTask)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/metrics/chart", s.handleMetricChart)
	mux.HandleFunc("/api/metrics/plot.png", s.handleMetricPlot)
	return mux
}

// Close closes every open view.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.views {
		v.gate.Close()
		delete(s.views, id)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"git_sha": version.GitSHA,
		"tasks":   s.tasks.Names(),
	})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		recs, err := s.db.ListRecordings(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, recs)
	case http.MethodPost:
		var rec sorting.Recording
		if err := httputil.DecodeJSON(r, &rec); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.db.CreateRecording(r.Context(), &rec); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, rec)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleSortings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if id := r.URL.Query().Get("sorting_id"); id != "" {
			so, err := s.db.GetSorting(r.Context(), id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			httputil.WriteJSONOK(w, so)
			return
		}
		list, err := s.db.ListSortings(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, list)
	case http.MethodPost:
		var so sorting.Sorting
		if err := httputil.DecodeJSON(r, &so); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.db.CreateSorting(r.Context(), &so); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, map[string]any{
			"sorting_id": so.ID,
			"num_units":  len(so.UnitIDs),
		})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleCuration(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sorting_id")
	if id == "" {
		httputil.BadRequest(w, "missing 'sorting_id' parameter")
		return
	}
	switch r.Method {
	case http.MethodGet:
		cur, err := s.db.GetCuration(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.WriteJSONOK(w, cur)
	case http.MethodPost:
		var action sorting.CurationAction
		if err := httputil.DecodeJSON(r, &action); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		cur, err := s.db.ApplyCurationAction(r.Context(), id, action)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, cur)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing 'id' parameter")
		return
	}
	t, ok := s.tasks.Get(id)
	if !ok {
		httputil.NotFound(w, "task not found")
		return
	}
	httputil.WriteJSONOK(w, t.Snapshot())
}

// loadSorting resolves the sorting named by the sorting_id query parameter.
func (s *Server) loadSorting(w http.ResponseWriter, r *http.Request, param string) (*sorting.Sorting, bool) {
	id := r.URL.Query().Get(param)
	if id == "" {
		httputil.BadRequest(w, "missing '"+param+"' parameter")
		return nil, false
	}
	so, err := s.db.GetSorting(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return so, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

func pairOf(so *sorting.Sorting) sorting.IdentityPair {
	return sorting.IdentityPair{
		Recording: sorting.RecordingObject(so.RecordingID),
		Sorting:   so.Object(),
	}
}
