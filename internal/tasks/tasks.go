// Package tasks holds the computations registered on the task service.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/banshee-data/sortingview/internal/config"
	"github.com/banshee-data/sortingview/internal/fsutil"
	"github.com/banshee-data/sortingview/internal/httputil"
	"github.com/banshee-data/sortingview/internal/monitoring"
	"github.com/banshee-data/sortingview/internal/preload"
	"github.com/banshee-data/sortingview/internal/security"
	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/taskqueue"
	"github.com/banshee-data/sortingview/internal/unitmetrics"
)

// Task names.
const (
	SortingInfo            = "sorting_info.3"
	PreloadExtractSnippets = preload.TaskName
	FetchUnitMetrics       = unitmetrics.FetchTaskName
	UnitMetric             = unitmetrics.TaskName
)

// Catalog resolves stored recordings and sortings.
type Catalog interface {
	GetRecording(ctx context.Context, id string) (*sorting.Recording, error)
	GetSorting(ctx context.Context, id string) (*sorting.Sorting, error)
}

// SnippetSink persists extracted snippet windows.
type SnippetSink interface {
	SaveSnippets(ctx context.Context, recordingID, sortingID string, snippets []sorting.Snippet) error
}

// Deps are the collaborators the task functions need.
type Deps struct {
	Catalog  Catalog
	Snippets SnippetSink
	Metrics  *unitmetrics.Registry
	HTTP     httputil.HTTPClient
	Files    fsutil.FileReader
	Config   *config.ViewerConfig
}

// maxMetricsFileBytes caps a file:// unit metrics document.
const maxMetricsFileBytes = 64 << 20

// Register binds every task function to svc.
func Register(svc *taskqueue.Service, d Deps) {
	if d.Config == nil {
		d.Config = &config.ViewerConfig{}
	}
	if d.Files == nil {
		d.Files = fsutil.OSFileSystem{}
	}
	svc.Register(SortingInfo, d.sortingInfo)
	svc.Register(PreloadExtractSnippets, d.preloadExtractSnippets)
	svc.Register(FetchUnitMetrics, d.fetchUnitMetrics)
	svc.Register(UnitMetric, d.unitMetric)
}

// SortingInfoParams are the parameters of SortingInfo.
type SortingInfoParams struct {
	SortingObject sorting.Object `json:"sorting_object"`
}

// SortingInfoResult is the return value of SortingInfo.
type SortingInfoResult struct {
	UnitIDs       []int          `json:"unit_ids"`
	Samplerate    float64        `json:"samplerate"`
	SortingObject sorting.Object `json:"sorting_object"`
}

func (d Deps) sortingInfo(ctx context.Context, raw json.RawMessage) (any, error) {
	var p SortingInfoParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	s, err := d.loadSorting(ctx, p.SortingObject)
	if err != nil {
		return nil, err
	}
	return SortingInfoResult{
		UnitIDs:       s.UnitIDs,
		Samplerate:    s.SamplingFrequency,
		SortingObject: s.Object(),
	}, nil
}

// PreloadResult is the return value of PreloadExtractSnippets.
type PreloadResult struct {
	NumUnits    int `json:"num_units"`
	NumSnippets int `json:"num_snippets"`
	SnippetLen  int `json:"snippet_len"`
}

// preloadExtractSnippets takes an IdentityPair as params.
func (d Deps) preloadExtractSnippets(ctx context.Context, raw json.RawMessage) (any, error) {
	var pair sorting.IdentityPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	rec, err := d.loadRecording(ctx, pair.Recording)
	if err != nil {
		return nil, err
	}
	s, err := d.loadSorting(ctx, pair.Sorting)
	if err != nil {
		return nil, err
	}

	params := sorting.SnippetParams{
		BeforeFrames: d.Config.GetSnippetBeforeFrames(),
		AfterFrames:  d.Config.GetSnippetAfterFrames(),
		MaxPerUnit:   d.Config.GetMaxSnippetsPerUnit(),
	}
	snippets, err := sorting.ExtractSnippets(rec, s, params)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Snippets != nil {
		if err := d.Snippets.SaveSnippets(ctx, rec.ID, s.ID, snippets); err != nil {
			return nil, fmt.Errorf("save snippets: %w", err)
		}
	}
	monitoring.Debugf("extracted %d snippets for recording %s sorting %s", len(snippets), rec.ID, s.ID)

	return PreloadResult{
		NumUnits:    len(s.UnitIDs),
		NumSnippets: len(snippets),
		SnippetLen:  params.BeforeFrames + params.AfterFrames,
	}, nil
}

func (d Deps) fetchUnitMetrics(ctx context.Context, raw json.RawMessage) (any, error) {
	var p unitmetrics.FetchParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if p.UnitMetricsURI == "" {
		return nil, errors.New("unit_metrics_uri is required")
	}
	u, err := url.Parse(p.UnitMetricsURI)
	if err != nil {
		return nil, fmt.Errorf("parse unit_metrics_uri: %w", err)
	}

	var metrics []unitmetrics.ExternalMetric
	switch u.Scheme {
	case "file":
		if dirs := d.Config.GetMetricsDirs(); len(dirs) > 0 {
			if err := security.ValidatePathWithinAllowedDirs(u.Path, dirs); err != nil {
				return nil, err
			}
		}
		body, err := fsutil.ReadFileLimited(d.Files, u.Path, maxMetricsFileBytes)
		if err != nil {
			return nil, fmt.Errorf("read unit metrics: %w", err)
		}
		if err := json.Unmarshal(body, &metrics); err != nil {
			return nil, fmt.Errorf("decode unit metrics %s: %w", u.Path, err)
		}
	case "http", "https":
		if d.HTTP == nil {
			return nil, errors.New("no http client configured")
		}
		fetchCtx, cancel := context.WithTimeout(ctx, d.Config.GetFetchTimeout())
		defer cancel()
		if err := httputil.GetJSON(fetchCtx, d.HTTP, p.UnitMetricsURI, &metrics); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported unit_metrics_uri scheme %q", u.Scheme)
	}

	for i, m := range metrics {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("unit metric %d has no name", i)
		}
		if metrics[i].Data == nil {
			metrics[i].Data = map[string]float64{}
		}
	}
	return metrics, nil
}

func (d Deps) unitMetric(ctx context.Context, raw json.RawMessage) (any, error) {
	var p unitmetrics.TaskParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if d.Metrics == nil {
		return nil, errors.New("no metric registry configured")
	}
	provider, ok := d.Metrics.Get(p.MetricName)
	if !ok {
		return nil, fmt.Errorf("unknown unit metric %q", p.MetricName)
	}

	in := unitmetrics.Input{
		Options: unitmetrics.Options{
			RefractoryPeriodMs: d.Config.GetRefractoryPeriodMs(),
			MatchToleranceMs:   d.Config.GetMatchToleranceMs(),
		},
	}
	var err error
	if in.Sorting, err = d.loadSorting(ctx, p.SortingObject); err != nil {
		return nil, err
	}
	if !p.RecordingObject.IsZero() {
		if in.Recording, err = d.loadRecording(ctx, p.RecordingObject); err != nil {
			return nil, err
		}
	}
	if provider.Comparison {
		if p.CompareSortingObject.IsZero() {
			return nil, fmt.Errorf("unit metric %s needs a comparison sorting", provider.Name)
		}
		if in.Compare, err = d.loadSorting(ctx, p.CompareSortingObject); err != nil {
			return nil, err
		}
	}
	return provider.Compute(in)
}

func (d Deps) loadSorting(ctx context.Context, o sorting.Object) (*sorting.Sorting, error) {
	if d.Catalog == nil {
		return nil, errors.New("no catalog configured")
	}
	id, err := sorting.SortingIDFromObject(o)
	if err != nil {
		return nil, err
	}
	s, err := d.Catalog.GetSorting(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load sorting %s: %w", id, err)
	}
	return s, nil
}

func (d Deps) loadRecording(ctx context.Context, o sorting.Object) (*sorting.Recording, error) {
	if d.Catalog == nil {
		return nil, errors.New("no catalog configured")
	}
	id, err := sorting.RecordingIDFromObject(o)
	if err != nil {
		return nil, err
	}
	r, err := d.Catalog.GetRecording(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", id, err)
	}
	return r, nil
}
