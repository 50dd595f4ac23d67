package sorting

import "fmt"

// SetSelectedUnitIDs replaces the selected units.
const SetSelectedUnitIDs = "SetSelectedUnitIds"

// Selection is the set of units the user has selected in a view.
type Selection struct {
	SelectedUnitIDs []int `json:"selectedUnitIds"`
}

// SelectionAction is dispatched to a selection reducer.
type SelectionAction struct {
	Type            string `json:"type"`
	SelectedUnitIDs []int  `json:"selectedUnitIds"`
}

// SelectionDispatch receives selection actions.
type SelectionDispatch func(SelectionAction)

// ReduceSelection applies a selection action.
func ReduceSelection(state Selection, a SelectionAction) (Selection, error) {
	switch a.Type {
	case SetSelectedUnitIDs:
		ids := make([]int, len(a.SelectedUnitIDs))
		copy(ids, a.SelectedUnitIDs)
		return Selection{SelectedUnitIDs: ids}, nil
	default:
		return state, fmt.Errorf("unknown selection action %q", a.Type)
	}
}
