package unitstable

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareNumbers(t *testing.T) {
	nan := Number(math.NaN())
	tests := []struct {
		name string
		a, b SortValue
		want int
	}{
		{"less", Number(1), Number(2), -1},
		{"greater", Number(3), Number(2), 1},
		{"equal", Number(2), Number(2), 0},
		{"nan last", nan, Number(2), 1},
		{"number before nan", Number(2), nan, -1},
		{"both nan", nan, nan, 0},
		{"string after number", String("a"), Number(1), 1},
		{"strings", String("a"), String("b"), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareNumbers(tt.a, tt.b))
		})
	}
}

func TestSortValueOf(t *testing.T) {
	assert.Equal(t, Number(3), sortValueOf(3, true))
	assert.Equal(t, Number(1.5), sortValueOf(json.Number("1.5"), true))
	assert.Equal(t, String("x"), sortValueOf("x", true))
	assert.True(t, sortValueOf(map[string]any{}, true).IsNaN())
	assert.Equal(t, String(""), sortValueOf(nil, false))
}

func TestSortValueJSON(t *testing.T) {
	for _, tt := range []struct {
		v    SortValue
		want string
	}{
		{Number(2.5), "2.5"},
		{Number(math.NaN()), "null"},
		{Number(math.Inf(1)), "null"},
		{String("a"), `"a"`},
	} {
		got, err := json.Marshal(tt.v)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, string(got))
	}
}

func TestPluginKindRenderFallback(t *testing.T) {
	k := pluginMetricKind{provider: provider("p", 1, true)}
	assert.Equal(t, "", k.Render(nil))
	assert.Equal(t, "7", k.Render(7))
}
