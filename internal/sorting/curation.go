package sorting

import (
	"fmt"
	"sort"
)

// Curation action types accepted by Curation.Apply.
const (
	ActionAddUnitLabel    = "ADD_UNIT_LABEL"
	ActionRemoveUnitLabel = "REMOVE_UNIT_LABEL"
	ActionMergeUnits      = "MERGE_UNITS"
	ActionUnmergeUnits    = "UNMERGE_UNITS"
)

// Curation is the user-applied annotation over a sorting's units.
type Curation struct {
	LabelsByUnit map[int][]string `json:"labelsByUnit"`
	MergeGroups  [][]int          `json:"mergeGroups"`
}

// CurationAction is one edit to a Curation.
type CurationAction struct {
	Type    string `json:"type"`
	UnitID  int    `json:"unitId,omitempty"`
	Label   string `json:"label,omitempty"`
	UnitIDs []int  `json:"unitIds,omitempty"`
}

// LabelsForUnit returns the unit's labels, or an empty list.
func (c *Curation) LabelsForUnit(unitID int) []string {
	if c == nil || c.LabelsByUnit[unitID] == nil {
		return []string{}
	}
	return c.LabelsByUnit[unitID]
}

// MergeGroupForUnit returns the merge group containing unitID (the unit
// itself included), or nil when the unit is not merged with anything.
func (c *Curation) MergeGroupForUnit(unitID int) []int {
	if c == nil {
		return nil
	}
	for _, g := range c.MergeGroups {
		for _, id := range g {
			if id == unitID {
				return g
			}
		}
	}
	return nil
}

// Apply returns a new Curation with the action applied. The receiver is not
// modified.
func (c *Curation) Apply(a CurationAction) (*Curation, error) {
	next := c.clone()
	switch a.Type {
	case ActionAddUnitLabel:
		if a.Label == "" {
			return nil, fmt.Errorf("%s: empty label", a.Type)
		}
		labels := next.LabelsByUnit[a.UnitID]
		for _, l := range labels {
			if l == a.Label {
				return next, nil
			}
		}
		labels = append(labels, a.Label)
		sort.Strings(labels)
		next.LabelsByUnit[a.UnitID] = labels
	case ActionRemoveUnitLabel:
		labels := next.LabelsByUnit[a.UnitID]
		kept := labels[:0]
		for _, l := range labels {
			if l != a.Label {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(next.LabelsByUnit, a.UnitID)
		} else {
			next.LabelsByUnit[a.UnitID] = kept
		}
	case ActionMergeUnits:
		if len(a.UnitIDs) < 2 {
			return nil, fmt.Errorf("%s: need at least two units, got %d", a.Type, len(a.UnitIDs))
		}
		next.MergeGroups = mergeInto(next.MergeGroups, a.UnitIDs)
	case ActionUnmergeUnits:
		next.MergeGroups = unmerge(next.MergeGroups, a.UnitIDs)
	default:
		return nil, fmt.Errorf("unknown curation action %q", a.Type)
	}
	return next, nil
}

func (c *Curation) clone() *Curation {
	out := &Curation{LabelsByUnit: make(map[int][]string)}
	if c == nil {
		return out
	}
	for id, labels := range c.LabelsByUnit {
		out.LabelsByUnit[id] = append([]string(nil), labels...)
	}
	for _, g := range c.MergeGroups {
		out.MergeGroups = append(out.MergeGroups, append([]int(nil), g...))
	}
	return out
}

// mergeInto unions ids with every existing group they overlap.
func mergeInto(groups [][]int, ids []int) [][]int {
	members := make(map[int]bool)
	for _, id := range ids {
		members[id] = true
	}
	var kept [][]int
	for _, g := range groups {
		overlaps := false
		for _, id := range g {
			if members[id] {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, g)
			continue
		}
		for _, id := range g {
			members[id] = true
		}
	}
	merged := make([]int, 0, len(members))
	for id := range members {
		merged = append(merged, id)
	}
	sort.Ints(merged)
	return sortGroups(append(kept, merged))
}

func unmerge(groups [][]int, ids []int) [][]int {
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var out [][]int
	for _, g := range groups {
		var rest []int
		for _, id := range g {
			if !drop[id] {
				rest = append(rest, id)
			}
		}
		if len(rest) >= 2 {
			out = append(out, rest)
		}
	}
	return sortGroups(out)
}

func sortGroups(groups [][]int) [][]int {
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}
