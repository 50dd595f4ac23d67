package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/sortingview/internal/httputil"
	"github.com/banshee-data/sortingview/internal/monitoring"
	"github.com/banshee-data/sortingview/internal/preload"
	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/taskqueue"
	"github.com/banshee-data/sortingview/internal/unitmetrics"
	"github.com/banshee-data/sortingview/internal/unitstable"
)

// view is one open units table: a preload gate plus the selection state the
// table dispatches into.
type view struct {
	id   string
	gate *preload.Gate[*unitstable.Table]

	mu        sync.Mutex
	selection sorting.Selection
	// table is the table most recently shown, which receives row selections.
	table *unitstable.Table
}

func (v *view) dispatch(a sorting.SelectionAction) {
	v.mu.Lock()
	defer v.mu.Unlock()
	next, err := sorting.ReduceSelection(v.selection, a)
	if err != nil {
		monitoring.Logf("view %s: %v", v.id, err)
		return
	}
	v.selection = next
}

func (v *view) currentSelection() sorting.Selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selection
}

type renderResponse struct {
	ViewID           string            `json:"view_id"`
	Overlay          preload.Overlay   `json:"overlay"`
	PreloadStatus    taskqueue.Status  `json:"preload_status"`
	ShowingLastValid bool              `json:"showing_last_valid"`
	Table            *unitstable.Table `json:"table"`
	Selection        sorting.Selection `json:"selection"`
}

type selectionRequest struct {
	SelectedRowIDs []string `json:"selected_row_ids"`
}

func (s *Server) newView() *view {
	v := &view{id: uuid.NewString()}
	v.gate = preload.New(preload.Options[*unitstable.Table]{
		Tasks:  s.tasks,
		Inject: withPreloadStatus,
		Width:  s.cfg.GetOverlayWidth(),
		Height: s.cfg.GetOverlayHeight(),
	})
	s.mu.Lock()
	s.views[v.id] = v
	s.mu.Unlock()
	return v
}

// withPreloadStatus returns a copy of t carrying status, so a remembered
// table keeps the status it was shown with.
func withPreloadStatus(t *unitstable.Table, status taskqueue.Status) *unitstable.Table {
	if t == nil {
		return nil
	}
	cp := *t
	cp.PreloadStatus = status
	return &cp
}

func (s *Server) lookupView(w http.ResponseWriter, r *http.Request) (*view, bool) {
	id := r.URL.Query().Get("view_id")
	if id == "" {
		httputil.BadRequest(w, "missing 'view_id' parameter")
		return nil, false
	}
	s.mu.Lock()
	v, ok := s.views[id]
	s.mu.Unlock()
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("view %s not found", id))
		return nil, false
	}
	return v, true
}

// handleViews opens (POST) or closes (DELETE) a view.
func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		v := s.newView()
		httputil.WriteJSON(w, http.StatusCreated, map[string]string{"view_id": v.id})
	case http.MethodDelete:
		v, ok := s.lookupView(w, r)
		if !ok {
			return
		}
		s.mu.Lock()
		delete(s.views, v.id)
		s.mu.Unlock()
		v.gate.Close()
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleViewRender builds the units table for a sorting and passes it
// through the view's preload gate.
func (s *Server) handleViewRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	so, ok := s.loadSorting(w, r, "sorting_id")
	if !ok {
		return
	}
	q := r.URL.Query()
	ctx := r.Context()

	var compare sorting.Object
	if q.Get("compare_sorting_id") != "" {
		cs, ok := s.loadSorting(w, r, "compare_sorting_id")
		if !ok {
			return
		}
		compare = cs.Object()
	}

	height := 0
	if h := q.Get("height"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "invalid 'height' parameter")
			return
		}
		height = n
	}

	cur, err := s.db.GetCuration(ctx, so.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	pair := pairOf(so)
	status, err := v.gate.Prepare(ctx, pair)
	if err != nil {
		writeGateError(w, err)
		return
	}
	// metrics are not computed before the snippet precompute has finished
	var metricsByProvider map[string]*unitmetrics.MetricData
	if status == taskqueue.StatusFinished {
		metricsByProvider = s.collector.Collect(ctx, s.metrics.List(), pair, compare)
	}

	builder := unitstable.Builder{Tasks: s.tasks, SortingSelector: q.Get("sorting_selector")}
	table, err := builder.Build(ctx, unitstable.Input{
		Units:              so.UnitIDs,
		UnitMetrics:        s.metrics.UnitMetrics(),
		ComparisonMetrics:  s.metrics.ComparisonMetrics(),
		ExternalMetricsURI: so.UnitMetricsURI,
		MetricsByProvider:  metricsByProvider,
		Curation:           cur,
		Selection:          v.currentSelection(),
		Dispatch:           v.dispatch,
		Height:             height,
		SelectionDisabled:  q.Get("selection_disabled") == "true",
	})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("build units table: %v", err))
		return
	}

	frame, err := v.gate.Render(ctx, pair, table)
	if err != nil {
		writeGateError(w, err)
		return
	}

	v.mu.Lock()
	v.table = frame.Child
	v.mu.Unlock()

	httputil.WriteJSONOK(w, renderResponse{
		ViewID:           v.id,
		Overlay:          frame.Overlay,
		PreloadStatus:    frame.PreloadStatus,
		ShowingLastValid: frame.ShowingLastValid,
		Table:            frame.Child,
		Selection:        v.currentSelection(),
	})
}

func writeGateError(w http.ResponseWriter, err error) {
	if errors.Is(err, preload.ErrClosed) {
		httputil.WriteJSONError(w, http.StatusGone, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

// handleViewSelection forwards selected row ids to the table last shown in
// the view.
func (s *Server) handleViewSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	v.mu.Lock()
	table := v.table
	v.mu.Unlock()
	if table == nil {
		httputil.WriteJSONError(w, http.StatusConflict, "view has not been rendered")
		return
	}
	if err := table.OnSelectedRowIDsChanged(req.SelectedRowIDs); err != nil {
		if errors.Is(err, unitstable.ErrSelectionDisabled) {
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, v.currentSelection())
}

// handleViewEvents streams a server-sent event whenever the view's precompute
// changes status, so clients know to render again.
func (s *Server) handleViewEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	updates := v.gate.Updates()
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: preload\ndata: {\"preload_status\":%q}\n\n", v.gate.Status()); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
