package unitmetrics

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(ps []*Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func stub(name string, priority int) *Provider {
	return &Provider{
		Name:     name,
		Priority: priority,
		GetValue: numberValue,
		Compute:  computeNumEvents,
	}
}

func TestSortByPriority(t *testing.T) {
	in := []*Provider{stub("c", 1), stub("a", 5), stub("b", 1), stub("d", 5)}
	got := SortByPriority(in)
	assert.Equal(t, []string{"a", "d", "b", "c"}, names(got))
	// input untouched
	assert.Equal(t, []string{"c", "a", "b", "d"}, names(in))
}

func TestSortByPriority_InvariantUnderReordering(t *testing.T) {
	base := []*Provider{stub("x", 3), stub("y", 3), stub("z", 3), stub("w", 7), stub("v", 0)}
	want := names(SortByPriority(base))

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]*Provider(nil), base...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, names(SortByPriority(shuffled)))
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stub("low", 1)))
	require.NoError(t, r.Register(stub("high", 9)))
	cmp := stub("cmp", 4)
	cmp.Comparison = true
	require.NoError(t, r.Register(cmp))

	assert.Error(t, r.Register(stub("low", 2)), "duplicate name")
	assert.Error(t, r.Register(&Provider{Name: "incomplete"}))
	assert.Error(t, r.Register(&Provider{}))

	p, ok := r.Get("high")
	require.True(t, ok)
	assert.Equal(t, 9, p.Priority)
	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"high", "low"}, names(r.UnitMetrics()))
	assert.Equal(t, []string{"cmp"}, names(r.ComparisonMetrics()))
	assert.Equal(t, []string{"high", "cmp", "low"}, names(r.List()))
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{NumEvents, FiringRate, ISIViolations, MedianISI}, names(r.UnitMetrics()))
	assert.Equal(t, []string{BestMatch}, names(r.ComparisonMetrics()))
}
