package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getUntilOK repeats a GET while the metric is still being calculated.
func getUntilOK(t *testing.T, mux http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	var rec *httptest.ResponseRecorder
	require.Eventually(t, func() bool {
		rec = do(t, mux, http.MethodGet, target, nil)
		return rec.Code != http.StatusAccepted
	}, 5*time.Second, 10*time.Millisecond)
	return rec
}

func TestMetricsList(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv.ServeMux(), http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]metricInfo](t, rec)
	require.Len(t, list, 5)
	assert.Equal(t, "num_events", list[0].Name)
	assert.Equal(t, "best_match", list[4].Name)
	assert.True(t, list[4].Comparison)
}

func TestMetricChart(t *testing.T) {
	srv, database, _ := newTestServer(t)
	mux := srv.ServeMux()
	_, so := seedSorting(t, database)

	rec := getUntilOK(t, mux, "/api/metrics/chart?sorting_id="+so.ID+"&metric=num_events")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "echarts")
	assert.Contains(t, body, "Num. events")
}

func TestMetricPlot(t *testing.T) {
	srv, database, _ := newTestServer(t)
	mux := srv.ServeMux()
	_, so := seedSorting(t, database)

	rec := getUntilOK(t, mux, "/api/metrics/plot.png?sorting_id="+so.ID+"&metric=firing_rate&bins=5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestMetricErrors(t *testing.T) {
	srv, database, _ := newTestServer(t)
	mux := srv.ServeMux()
	_, so := seedSorting(t, database)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing sorting", "/api/metrics/chart?metric=num_events", http.StatusBadRequest},
		{"unknown sorting", "/api/metrics/chart?sorting_id=nope&metric=num_events", http.StatusNotFound},
		{"missing metric", "/api/metrics/chart?sorting_id=" + so.ID, http.StatusBadRequest},
		{"unknown metric", "/api/metrics/chart?sorting_id=" + so.ID + "&metric=snr", http.StatusNotFound},
		{"comparison without compare sorting", "/api/metrics/plot.png?sorting_id=" + so.ID + "&metric=best_match", http.StatusBadRequest},
		{"bad bins", "/api/metrics/plot.png?sorting_id=" + so.ID + "&metric=num_events&bins=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHistogramPNG_Empty(t *testing.T) {
	png, err := histogramPNG(&unitValues{label: "Firing rate (Hz)"}, 10)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
