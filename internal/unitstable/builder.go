// Package unitstable builds the units table: one row per unit and one column
// per unit id, curation labels, external metric and metric provider, with
// sortable values and rendered cells.
package unitstable

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/sortingview/internal/monitoring"
	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/taskqueue"
	"github.com/banshee-data/sortingview/internal/unitmetrics"
)

// Fixed column names and prefixes.
const (
	ColumnUnitID         = "_unit_id"
	ColumnLabels         = "_labels"
	ExternalMetricPrefix = "external-metric-"
	PluginMetricPrefix   = "plugin-metric-"
)

// Submitter submits or reuses a task.
type Submitter interface {
	SubmitOrReuse(ctx context.Context, name string, params any) (*taskqueue.Task, error)
}

// Input is everything a table is derived from.
type Input struct {
	Units             []int
	UnitMetrics       []*unitmetrics.Provider
	ComparisonMetrics []*unitmetrics.Provider
	// ExternalMetricsURI is fetched through the task service when set.
	ExternalMetricsURI string
	MetricsByProvider  map[string]*unitmetrics.MetricData
	Curation           *sorting.Curation
	Selection          sorting.Selection
	Dispatch           sorting.SelectionDispatch
	Height             int
	SelectionDisabled  bool
}

// Builder derives tables. Build never waits on a computation; late data is
// reported through Column.Calculating and sentinel sort values.
type Builder struct {
	Tasks Submitter
	// SortingSelector is appended to every unit id shown.
	SortingSelector string
}

// Build derives the table for in.
func (b *Builder) Build(ctx context.Context, in Input) (*Table, error) {
	t := &Table{
		Rows:                  make([]Row, len(in.Units)),
		DefaultSortColumnName: DefaultSortColumnName,
		Height:                in.Height,
		SelectionDisabled:     in.SelectionDisabled,
		dispatch:              in.Dispatch,
	}
	for i, id := range in.Units {
		t.Rows[i] = Row{RowID: strconv.Itoa(id), Data: make(map[string]Cell)}
	}

	b.addUnitIDColumn(t, in)
	addLabelsColumn(t, in)

	external, fetchErr, err := b.externalMetrics(ctx, in.ExternalMetricsURI)
	if err != nil {
		return nil, err
	}
	t.ExternalMetricsError = fetchErr
	for _, m := range external {
		addExternalColumn(t, in.Units, m)
	}

	providers := append(enabled(unitmetrics.SortByPriority(in.ComparisonMetrics)),
		enabled(unitmetrics.SortByPriority(in.UnitMetrics))...)
	for _, p := range providers {
		addPluginColumn(t, in.Units, p, in.MetricsByProvider[p.Name])
	}

	t.SelectedRowIDs = make([]string, len(in.Selection.SelectedUnitIDs))
	for i, id := range in.Selection.SelectedUnitIDs {
		t.SelectedRowIDs[i] = strconv.Itoa(id)
	}
	return t, nil
}

func (b *Builder) addUnitIDColumn(t *Table, in Input) {
	t.Columns = append(t.Columns, Column{
		Name:    ColumnUnitID,
		Label:   "Unit ID",
		Tooltip: "Unit ID",
		Kind:    unitIDKind{selector: b.SortingSelector},
	})
	for i, id := range in.Units {
		t.Rows[i].Data[ColumnUnitID] = Cell{
			Value:     UnitIDValue{UnitID: id, MergeGroup: in.Curation.MergeGroupForUnit(id)},
			SortValue: Number(float64(id)),
		}
	}
}

func addLabelsColumn(t *Table, in Input) {
	t.Columns = append(t.Columns, Column{
		Name:    ColumnLabels,
		Label:   "Labels",
		Tooltip: "Curation labels",
		Kind:    labelsKind{},
	})
	for i, id := range in.Units {
		labels := in.Curation.LabelsForUnit(id)
		t.Rows[i].Data[ColumnLabels] = Cell{
			Value:     labels,
			SortValue: String(strings.Join(labels, ", ")),
		}
	}
}

// externalMetrics returns the fetched metrics once the fetch has finished.
// Until then there are none; a failed fetch is reported as a message.
func (b *Builder) externalMetrics(ctx context.Context, uri string) ([]unitmetrics.ExternalMetric, string, error) {
	if uri == "" || b.Tasks == nil {
		return nil, "", nil
	}
	task, err := b.Tasks.SubmitOrReuse(ctx, unitmetrics.FetchTaskName, unitmetrics.FetchParams{UnitMetricsURI: uri})
	if err != nil {
		return nil, "", err
	}
	snap := task.Snapshot()
	switch snap.Status {
	case taskqueue.StatusFinished:
		var metrics []unitmetrics.ExternalMetric
		if err := json.Unmarshal(snap.ReturnValue, &metrics); err != nil {
			monitoring.Logf("units table: decode external metrics from %s: %v", uri, err)
			return nil, fmt.Sprintf("decode external metrics: %v", err), nil
		}
		return metrics, "", nil
	case taskqueue.StatusError:
		monitoring.Debugf("units table: external metrics from %s failed: %s", uri, snap.ErrorMessage)
		return nil, snap.ErrorMessage, nil
	}
	return nil, "", nil
}

func addExternalColumn(t *Table, units []int, m unitmetrics.ExternalMetric) {
	name := ExternalMetricPrefix + m.Name
	t.Columns = append(t.Columns, Column{
		Name:    name,
		Label:   m.Label,
		Tooltip: m.Tooltip,
		Kind:    externalMetricKind{},
	})
	for i, id := range units {
		v, ok := m.Data[unitmetrics.UnitKey(id)]
		if !ok {
			v = math.NaN()
		}
		t.Rows[i].Data[name] = Cell{Value: v, SortValue: Number(v)}
	}
}

func addPluginColumn(t *Table, units []int, p *unitmetrics.Provider, md *unitmetrics.MetricData) {
	name := PluginMetricPrefix + p.Name
	var data map[string]any
	var errMsg string
	if md != nil {
		data, errMsg = md.Data, md.Error
	}
	t.Columns = append(t.Columns, Column{
		Name:        name,
		Label:       p.ColumnLabel,
		Tooltip:     p.Tooltip,
		Calculating: data == nil && errMsg == "",
		Error:       errMsg,
		Kind:        pluginMetricKind{provider: p, err: errMsg},
	})
	for i, id := range units {
		cell := Cell{SortValue: sentinel(p.IsNumeric)}
		if record, ok := data[unitmetrics.UnitKey(id)]; ok && record != nil {
			cell.Value = record
			cell.SortValue = sortValueOf(p.GetValue(record), p.IsNumeric)
		}
		t.Rows[i].Data[name] = cell
	}
}

func enabled(ps []*unitmetrics.Provider) []*unitmetrics.Provider {
	out := ps[:0:0]
	for _, p := range ps {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	return out
}
