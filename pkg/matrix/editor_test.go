package matrix

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodusnet/console/pkg/rbac"
)

// ruleSetAssigner allows exactly the rules it was given
type ruleSetAssigner map[int64]struct{}

func (a ruleSetAssigner) CanAssignRule(rule rbac.Rule) bool {
	_, ok := a[rule.ID]
	return ok
}

func assignerFor(rules ...rbac.Rule) ruleSetAssigner {
	a := make(ruleSetAssigner, len(rules))
	for _, r := range rules {
		a[r.ID] = struct{}{}
	}
	return a
}

var (
	viewTask   = rbac.Rule{ID: 1, Operation: rbac.OperationView, Resource: rbac.ResourceTask, Scope: rbac.ScopeGlobal}
	editTask   = rbac.Rule{ID: 2, Operation: rbac.OperationEdit, Resource: rbac.ResourceTask, Scope: rbac.ScopeGlobal}
	deleteTask = rbac.Rule{ID: 3, Operation: rbac.OperationDelete, Resource: rbac.ResourceTask, Scope: rbac.ScopeGlobal}
	viewNode   = rbac.Rule{ID: 4, Operation: rbac.OperationView, Resource: rbac.ResourceNode, Scope: rbac.ScopeGlobal}
)

func TestCellStateDerivation(t *testing.T) {
	selectable := []rbac.Rule{viewTask, editTask, deleteTask}
	fixed := []rbac.Rule{viewNode}
	preselected := []rbac.Rule{editTask, deleteTask}

	// Actor can assign view and edit, but not delete
	e := NewEditor(assignerFor(viewTask, editTask), selectable, fixed, preselected)

	assert.Equal(t, CellFixedSelected, e.CellState(rbac.ResourceNode, rbac.ScopeGlobal, rbac.OperationView),
		"fixed rule renders fixed-selected")
	assert.Equal(t, CellNotApplicable, e.CellState(rbac.ResourceNode, rbac.ScopeGlobal, rbac.OperationEdit),
		"triple absent from S and F is not applicable")
	assert.Equal(t, CellSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit),
		"assignable and preselected renders selected")
	assert.Equal(t, CellNotSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationView),
		"assignable and not preselected renders not-selected")
	assert.Equal(t, CellFixedSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationDelete),
		"unassignable but already granted renders fixed-selected: revoking needs the same privilege as granting")
}

func TestCellStateUnassignableNotPreselected(t *testing.T) {
	e := NewEditor(assignerFor(viewTask), []rbac.Rule{viewTask, editTask}, nil, nil)

	assert.Equal(t, CellFixedNotSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit))
}

func TestSelectCouplesView(t *testing.T) {
	selectable := []rbac.Rule{viewTask, editTask}
	e := NewEditor(assignerFor(viewTask, editTask), selectable, nil, nil)

	require.NoError(t, e.Select(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit))

	assert.Equal(t, CellSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit))
	assert.Equal(t, CellSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationView),
		"selecting edit drags view on")
}

func TestDeselectViewCascadesOnce(t *testing.T) {
	selectable := []rbac.Rule{viewTask, editTask, deleteTask}
	e := NewEditor(assignerFor(viewTask, editTask, deleteTask), selectable, nil,
		[]rbac.Rule{viewTask, editTask, deleteTask})

	require.NoError(t, e.Deselect(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationView))

	assert.Equal(t, CellNotSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationView))
	assert.Equal(t, CellNotSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit),
		"deselecting view drags edit off")
	assert.Equal(t, CellNotSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationDelete),
		"deselecting view drags delete off")
}

func TestCouplingStaysWithinResourceScope(t *testing.T) {
	viewTaskOrg := rbac.Rule{ID: 5, Operation: rbac.OperationView, Resource: rbac.ResourceTask, Scope: rbac.ScopeOrganization}
	selectable := []rbac.Rule{viewTask, editTask, viewNode, viewTaskOrg}
	e := NewEditor(assignerFor(viewTask, editTask, viewNode, viewTaskOrg), selectable, nil,
		[]rbac.Rule{viewNode, viewTaskOrg})

	require.NoError(t, e.Select(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit))
	require.NoError(t, e.Deselect(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationView))

	assert.Equal(t, CellSelected, e.CellState(rbac.ResourceNode, rbac.ScopeGlobal, rbac.OperationView),
		"other resources are untouched")
	assert.Equal(t, CellSelected, e.CellState(rbac.ResourceTask, rbac.ScopeOrganization, rbac.OperationView),
		"other scopes of the same resource are untouched")
}

func TestSelectThenDeselectViewScenario(t *testing.T) {
	// Spec scenario: VIEW and EDIT both editable for (task, global);
	// selecting EDIT also selects VIEW, deselecting VIEW then also
	// deselects EDIT.
	selectable := []rbac.Rule{viewTask, editTask}
	e := NewEditor(assignerFor(viewTask, editTask), selectable, nil, nil)

	require.NoError(t, e.Toggle(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit))
	assert.Equal(t, CellSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationView))

	require.NoError(t, e.Toggle(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationView))
	assert.Equal(t, CellNotSelected, e.CellState(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit))
}

func TestToggleRejectsNonEditableCells(t *testing.T) {
	e := NewEditor(assignerFor(viewTask), []rbac.Rule{viewTask, editTask}, []rbac.Rule{viewNode}, nil)

	err := e.Toggle(rbac.ResourceNode, rbac.ScopeGlobal, rbac.OperationView)
	assert.True(t, errors.Is(err, ErrCellNotEditable), "fixed cell")

	err = e.Toggle(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit)
	assert.True(t, errors.Is(err, ErrCellNotEditable), "cell the actor cannot assign")

	err = e.Toggle(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationDelete)
	assert.True(t, errors.Is(err, ErrCellNotEditable), "not-applicable cell")
}

func TestRulesEmitsCompleteList(t *testing.T) {
	selectable := []rbac.Rule{viewTask, editTask, deleteTask}
	fixed := []rbac.Rule{viewNode}
	// delete task is preselected but out of the actor's reach: it stays
	// in the emitted list.
	preselected := []rbac.Rule{deleteTask}
	e := NewEditor(assignerFor(viewTask, editTask), selectable, fixed, preselected)

	require.NoError(t, e.Select(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit))

	rules := e.Rules()
	ids := make([]int64, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	// view task (coupled), edit task (selected), delete task (locked), view node (fixed)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	require.NoError(t, e.Deselect(rbac.ResourceTask, rbac.ScopeGlobal, rbac.OperationEdit))
	rules = e.Rules()
	ids = ids[:0]
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1, 3, 4}, ids, "explicitly deselected rules are excluded")
}

func TestRender(t *testing.T) {
	selectable := []rbac.Rule{viewTask, editTask, viewNode}
	e := NewEditor(assignerFor(viewTask, editTask, viewNode), selectable, nil, []rbac.Rule{viewTask})

	rows := e.Render(selectable)
	require.Len(t, rows, 2)

	// Rows sorted by resource: node before task
	assert.Equal(t, rbac.ResourceNode, rows[0].Resource)
	assert.Equal(t, rbac.ResourceTask, rows[1].Resource)
	require.Len(t, rows[1].Cells, 4)

	byOp := map[rbac.Operation]Cell{}
	for _, c := range rows[1].Cells {
		byOp[c.Operation] = c
	}
	assert.Equal(t, CellSelected, byOp[rbac.OperationView].State)
	assert.Equal(t, int64(1), byOp[rbac.OperationView].RuleID)
	assert.Equal(t, CellNotSelected, byOp[rbac.OperationEdit].State)
	assert.Equal(t, CellNotApplicable, byOp[rbac.OperationDelete].State)
}
