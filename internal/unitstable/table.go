package unitstable

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/taskqueue"
)

// DefaultSortColumnName is the column tables are initially ordered by.
const DefaultSortColumnName = ColumnUnitID

// ErrSelectionDisabled is returned when selecting rows of a table built with
// selection disabled.
var ErrSelectionDisabled = errors.New("selection disabled")

// Cell is one row's entry for one column. Value is the raw payload for
// rendering; SortValue is only used for ordering.
type Cell struct {
	Value     any
	SortValue SortValue
}

// Row is one unit.
type Row struct {
	RowID string
	Data  map[string]Cell
}

// Column describes one column. Calculating is set while its data is still
// being computed.
type Column struct {
	Name        string
	Label       string
	Tooltip     string
	Calculating bool
	Error       string
	Kind        ColumnKind
}

// Table is the units table handed to a table widget.
type Table struct {
	Rows                  []Row
	Columns               []Column
	SelectedRowIDs        []string
	DefaultSortColumnName string
	Height                int
	SelectionDisabled     bool
	// ExternalMetricsError is the failure of the external metrics fetch.
	ExternalMetricsError string
	// PreloadStatus is the snippet precompute status, set by the preload
	// gate wrapping the table.
	PreloadStatus taskqueue.Status

	dispatch sorting.SelectionDispatch
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// OnSelectedRowIDsChanged converts row ids back to unit ids and dispatches a
// SetSelectedUnitIds action. Nothing is dispatched if any id is not an
// integer.
func (t *Table) OnSelectedRowIDsChanged(rowIDs []string) error {
	if t.SelectionDisabled {
		return ErrSelectionDisabled
	}
	if t.dispatch == nil {
		return errors.New("no selection dispatch")
	}
	ids := make([]int, len(rowIDs))
	for i, rid := range rowIDs {
		id, err := strconv.Atoi(rid)
		if err != nil {
			return fmt.Errorf("row id %q is not a unit id: %w", rid, err)
		}
		ids[i] = id
	}
	t.dispatch(sorting.SelectionAction{
		Type:            sorting.SetSelectedUnitIDs,
		SelectedUnitIDs: ids,
	})
	return nil
}

// Sorted returns the rows ordered by a column. Missing numbers sort last in
// either direction; ties keep table order.
func (t *Table) Sorted(columnName string, ascending bool) ([]Row, error) {
	col, ok := t.Column(columnName)
	if !ok {
		return nil, fmt.Errorf("unknown column %q", columnName)
	}
	rows := append([]Row(nil), t.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Data[columnName].SortValue, rows[j].Data[columnName].SortValue
		an, bn := a.IsNaN(), b.IsNaN()
		if an || bn {
			return !an && bn
		}
		c := col.Kind.Compare(a, b)
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return rows, nil
}

type cellJSON struct {
	Value     any       `json:"value"`
	SortValue SortValue `json:"sort_value"`
	Rendered  string    `json:"rendered"`
}

type rowJSON struct {
	RowID string              `json:"row_id"`
	Data  map[string]cellJSON `json:"data"`
}

type columnJSON struct {
	Name        string `json:"column_name"`
	Label       string `json:"label"`
	Tooltip     string `json:"tooltip"`
	Kind        string `json:"kind"`
	Calculating bool   `json:"calculating"`
	Error       string `json:"error,omitempty"`
}

type tableJSON struct {
	Rows                  []rowJSON    `json:"rows"`
	Columns               []columnJSON `json:"columns"`
	SelectedRowIDs        []string     `json:"selected_row_ids"`
	DefaultSortColumnName string       `json:"default_sort_column_name"`
	Height                int          `json:"height,omitempty"`
	SelectionDisabled     bool         `json:"selection_disabled"`
	ExternalMetricsError  string       `json:"external_metrics_error,omitempty"`
	PreloadStatus         string       `json:"preload_status,omitempty"`
}

// MarshalJSON emits every cell with its rendered form.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		Rows:                  make([]rowJSON, len(t.Rows)),
		Columns:               make([]columnJSON, len(t.Columns)),
		SelectedRowIDs:        t.SelectedRowIDs,
		DefaultSortColumnName: t.DefaultSortColumnName,
		Height:                t.Height,
		SelectionDisabled:     t.SelectionDisabled,
		ExternalMetricsError:  t.ExternalMetricsError,
		PreloadStatus:         string(t.PreloadStatus),
	}
	if out.SelectedRowIDs == nil {
		out.SelectedRowIDs = []string{}
	}
	for i, c := range t.Columns {
		out.Columns[i] = columnJSON{
			Name:        c.Name,
			Label:       c.Label,
			Tooltip:     c.Tooltip,
			Kind:        c.Kind.kind(),
			Calculating: c.Calculating,
			Error:       c.Error,
		}
	}
	for i, r := range t.Rows {
		data := make(map[string]cellJSON, len(r.Data))
		for _, c := range t.Columns {
			cell := r.Data[c.Name]
			data[c.Name] = cellJSON{
				Value:     jsonSafe(cell.Value),
				SortValue: cell.SortValue,
				Rendered:  c.Kind.Render(cell.Value),
			}
		}
		out.Rows[i] = rowJSON{RowID: r.RowID, Data: data}
	}
	return json.Marshal(out)
}
