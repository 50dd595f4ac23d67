package unitstable

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/sortingview/internal/unitmetrics"
)

// ColumnKind orders and renders the cells of one kind of column. The set of
// kinds is closed.
type ColumnKind interface {
	Compare(a, b SortValue) int
	Render(value any) string
	kind() string
}

// UnitIDValue is the value of a unit id cell.
type UnitIDValue struct {
	UnitID     int   `json:"unitId"`
	MergeGroup []int `json:"mergeGroup"`
}

type unitIDKind struct {
	selector string
}

func (unitIDKind) kind() string { return "unit_id" }

func (unitIDKind) Compare(a, b SortValue) int { return compareNumbers(a, b) }

// Render shows the id followed by its merge group, if any.
func (k unitIDKind) Render(value any) string {
	v, ok := value.(UnitIDValue)
	if !ok {
		return ""
	}
	out := strconv.Itoa(v.UnitID) + k.selector
	if len(v.MergeGroup) > 0 {
		ids := make([]string, len(v.MergeGroup))
		for i, id := range v.MergeGroup {
			ids[i] = strconv.Itoa(id) + k.selector
		}
		out += " (" + strings.Join(ids, ", ") + ")"
	}
	return out
}

type labelsKind struct{}

func (labelsKind) kind() string { return "labels" }

func (labelsKind) Compare(a, b SortValue) int { return strings.Compare(a.Str(), b.Str()) }

// Render shows each label as a chip.
func (labelsKind) Render(value any) string {
	labels, _ := value.([]string)
	chips := make([]string, len(labels))
	for i, l := range labels {
		chips[i] = `<span class="unit-label">` + html.EscapeString(l) + `</span>`
	}
	return strings.Join(chips, " ")
}

type externalMetricKind struct{}

func (externalMetricKind) kind() string { return "external_metric" }

func (externalMetricKind) Compare(a, b SortValue) int { return compareNumbers(a, b) }

func (externalMetricKind) Render(value any) string {
	f, ok := value.(float64)
	if !ok || math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

type pluginMetricKind struct {
	provider *unitmetrics.Provider
	err      string
}

func (pluginMetricKind) kind() string { return "plugin_metric" }

func (k pluginMetricKind) Compare(a, b SortValue) int {
	if k.provider.IsNumeric {
		return compareNumbers(a, b)
	}
	return strings.Compare(a.Str(), b.Str())
}

func (k pluginMetricKind) Render(value any) string {
	if k.err != "" {
		return "Error: " + k.err
	}
	if value == nil {
		return ""
	}
	if k.provider.Render != nil {
		return k.provider.Render(value)
	}
	return fmt.Sprint(value)
}

// compareNumbers orders numbers ascending with NaN after every number and
// strings after numbers.
func compareNumbers(a, b SortValue) int {
	if a.IsString() || b.IsString() {
		switch {
		case a.IsString() && b.IsString():
			return strings.Compare(a.Str(), b.Str())
		case a.IsString():
			return 1
		default:
			return -1
		}
	}
	an, bn := a.IsNaN(), b.IsNaN()
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a.num < b.num:
		return -1
	case a.num > b.num:
		return 1
	default:
		return 0
	}
}
