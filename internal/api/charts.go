package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sortingview/internal/httputil"
	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/unitmetrics"
)

const defaultHistogramBins = 20

type metricInfo struct {
	Name        string `json:"name"`
	ColumnLabel string `json:"column_label"`
	Tooltip     string `json:"tooltip"`
	Priority    int    `json:"priority"`
	Disabled    bool   `json:"disabled"`
	IsNumeric   bool   `json:"is_numeric"`
	Comparison  bool   `json:"comparison"`
}

// unitValues holds a numeric metric for the units that have one, in sorting
// unit order.
type unitValues struct {
	label  string
	units  []int
	values []float64
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	providers := unitmetrics.SortByPriority(s.metrics.List())
	out := make([]metricInfo, len(providers))
	for i, p := range providers {
		out[i] = metricInfo{
			Name:        p.Name,
			ColumnLabel: p.ColumnLabel,
			Tooltip:     p.Tooltip,
			Priority:    p.Priority,
			Disabled:    p.Disabled,
			IsNumeric:   p.IsNumeric,
			Comparison:  p.Comparison,
		}
	}
	httputil.WriteJSONOK(w, out)
}

// metricValues requests the metric named by the query and returns its
// values. It writes the response itself and returns false when the values
// are not available yet or the request is invalid.
func (s *Server) metricValues(w http.ResponseWriter, r *http.Request) (*unitValues, bool) {
	so, ok := s.loadSorting(w, r, "sorting_id")
	if !ok {
		return nil, false
	}
	name := r.URL.Query().Get("metric")
	if name == "" {
		httputil.BadRequest(w, "missing 'metric' parameter")
		return nil, false
	}
	p, ok := s.metrics.Get(name)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown metric %q", name))
		return nil, false
	}
	if !p.IsNumeric {
		httputil.BadRequest(w, fmt.Sprintf("metric %q is not numeric", name))
		return nil, false
	}

	var compare sorting.Object
	if p.Comparison {
		cs, ok := s.loadSorting(w, r, "compare_sorting_id")
		if !ok {
			return nil, false
		}
		compare = cs.Object()
	}

	md := s.collector.Collect(r.Context(), []*unitmetrics.Provider{p}, pairOf(so), compare)[p.Name]
	switch {
	case md == nil:
		httputil.BadRequest(w, fmt.Sprintf("metric %q is disabled", name))
		return nil, false
	case md.Error != "":
		httputil.InternalServerError(w, md.Error)
		return nil, false
	case md.Data == nil:
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "calculating"})
		return nil, false
	}

	uv := &unitValues{label: p.ColumnLabel}
	for _, id := range so.UnitIDs {
		record, ok := md.Data[unitmetrics.UnitKey(id)]
		if !ok {
			continue
		}
		v, ok := p.GetValue(record).(float64)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		uv.units = append(uv.units, id)
		uv.values = append(uv.values, v)
	}
	return uv, true
}

// handleMetricChart renders a bar chart of one metric across units.
func (s *Server) handleMetricChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	uv, ok := s.metricValues(w, r)
	if !ok {
		return
	}

	x := make([]string, len(uv.units))
	y := make([]opts.BarData, len(uv.values))
	for i := range uv.units {
		x[i] = strconv.Itoa(uv.units[i])
		y[i] = opts.BarData{Value: uv.values[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: uv.label, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: uv.label, Subtitle: fmt.Sprintf("sorting=%s units=%d", r.URL.Query().Get("sorting_id"), len(uv.units))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Unit", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(x).AddSeries(uv.label, y)

	page := components.NewPage()
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	httputil.WriteBytes(w, "text/html; charset=utf-8", buf.Bytes())
}

// handleMetricPlot renders a histogram PNG of one metric across units.
func (s *Server) handleMetricPlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	bins := defaultHistogramBins
	if b := r.URL.Query().Get("bins"); b != "" {
		n, err := strconv.Atoi(b)
		if err != nil || n < 1 || n > 1000 {
			httputil.BadRequest(w, "invalid 'bins' parameter")
			return
		}
		bins = n
	}
	uv, ok := s.metricValues(w, r)
	if !ok {
		return
	}

	png, err := histogramPNG(uv, bins)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteBytes(w, "image/png", png)
}

func histogramPNG(uv *unitValues, bins int) ([]byte, error) {
	p := plot.New()
	p.Title.Text = uv.label
	p.X.Label.Text = uv.label
	p.Y.Label.Text = "Units"

	if len(uv.values) > 0 {
		h, err := plotter.NewHist(plotter.Values(uv.values), bins)
		if err != nil {
			return nil, fmt.Errorf("histogram: %w", err)
		}
		p.Add(h)
	}

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("plot writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render plot: %w", err)
	}
	return buf.Bytes(), nil
}
