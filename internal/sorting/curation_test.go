package sorting

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelsForUnit(t *testing.T) {
	c := &Curation{LabelsByUnit: map[int][]string{2: {"noise"}}}

	assert.Equal(t, []string{"noise"}, c.LabelsForUnit(2))
	assert.Equal(t, []string{}, c.LabelsForUnit(1))

	var nilCuration *Curation
	assert.Equal(t, []string{}, nilCuration.LabelsForUnit(1))
	assert.Nil(t, nilCuration.MergeGroupForUnit(1))
}

func TestCurationLabels(t *testing.T) {
	c := &Curation{}

	c1, err := c.Apply(CurationAction{Type: ActionAddUnitLabel, UnitID: 4, Label: "mua"})
	require.NoError(t, err)
	c2, err := c1.Apply(CurationAction{Type: ActionAddUnitLabel, UnitID: 4, Label: "accept"})
	require.NoError(t, err)
	c3, err := c2.Apply(CurationAction{Type: ActionAddUnitLabel, UnitID: 4, Label: "mua"})
	require.NoError(t, err)

	assert.Equal(t, []string{"accept", "mua"}, c3.LabelsForUnit(4))
	assert.Equal(t, []string{"mua"}, c1.LabelsForUnit(4), "earlier states are not modified")

	c4, err := c3.Apply(CurationAction{Type: ActionRemoveUnitLabel, UnitID: 4, Label: "accept"})
	require.NoError(t, err)
	c5, err := c4.Apply(CurationAction{Type: ActionRemoveUnitLabel, UnitID: 4, Label: "mua"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mua"}, c4.LabelsForUnit(4))
	_, present := c5.LabelsByUnit[4]
	assert.False(t, present)

	_, err = c.Apply(CurationAction{Type: ActionAddUnitLabel, UnitID: 1})
	assert.Error(t, err)
}

func TestCurationMerge(t *testing.T) {
	c := &Curation{}

	c, err := c.Apply(CurationAction{Type: ActionMergeUnits, UnitIDs: []int{5, 3}})
	require.NoError(t, err)
	c, err = c.Apply(CurationAction{Type: ActionMergeUnits, UnitIDs: []int{1, 2}})
	require.NoError(t, err)
	if diff := cmp.Diff([][]int{{1, 2}, {3, 5}}, c.MergeGroups); diff != "" {
		t.Fatalf("merge groups mismatch (-want +got):\n%s", diff)
	}

	// overlapping merge unions the groups
	c, err = c.Apply(CurationAction{Type: ActionMergeUnits, UnitIDs: []int{2, 5}})
	require.NoError(t, err)
	if diff := cmp.Diff([][]int{{1, 2, 3, 5}}, c.MergeGroups); diff != "" {
		t.Fatalf("merge groups mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{1, 2, 3, 5}, c.MergeGroupForUnit(3))
	assert.Nil(t, c.MergeGroupForUnit(7))

	c, err = c.Apply(CurationAction{Type: ActionUnmergeUnits, UnitIDs: []int{1, 2, 3}})
	require.NoError(t, err)
	assert.Empty(t, c.MergeGroups, "groups with fewer than two members are dropped")

	_, err = c.Apply(CurationAction{Type: ActionMergeUnits, UnitIDs: []int{1}})
	assert.Error(t, err)
	_, err = c.Apply(CurationAction{Type: "RENAME_UNIT"})
	assert.Error(t, err)
}
