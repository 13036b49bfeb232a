package matrix

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nodusnet/console/pkg/rbac"
)

// CellState describes one (resource, scope, operation) cell of the
// permission matrix.
type CellState string

const (
	// CellNotApplicable means no rule exists in the catalog for this
	// combination; the cell renders blank and disabled.
	CellNotApplicable CellState = "not_applicable"
	// CellFixedSelected means the rule is locked on, either because it is
	// immutable in this view (e.g. inherited from a role) or because the
	// editing admin cannot grant it but the entity already holds it;
	// revoking requires the same privilege as granting.
	CellFixedSelected CellState = "fixed_selected"
	// CellFixedNotSelected means the rule exists but the editing admin
	// lacks it, so it can be neither granted nor shown as available.
	CellFixedNotSelected CellState = "fixed_not_selected"
	// CellNotSelected means the cell is editable and currently off
	CellNotSelected CellState = "not_selected"
	// CellSelected means the cell is editable and currently on
	CellSelected CellState = "selected"
)

var (
	// ErrCellNotEditable is returned when a toggle targets a fixed or
	// not-applicable cell. Escalating selections are rejected here and
	// never reach the platform server.
	ErrCellNotEditable = errors.New("cell is not editable")
)

// Assigner answers whether the acting admin may assign a rule. It is
// satisfied by *rbac.PermissionStore.
type Assigner interface {
	CanAssignRule(rule rbac.Rule) bool
}

type tripleKey struct {
	res   rbac.Resource
	scope rbac.Scope
	op    rbac.Operation
}

func keyOf(rule rbac.Rule) tripleKey {
	return tripleKey{rule.Resource, rule.Scope, rule.Operation}
}

// Editor drives the permission-matrix grid for editing a role's or user's
// rule assignments, subject to the no-escalation invariant: the acting admin
// can only toggle rules they hold themselves.
//
// The editor is built from three rule sets:
//
//	S (selectable):  the catalog subset relevant to this view
//	F (fixed):       rules immutable in this view, always on
//	P (preselected): rules the edited entity currently holds
type Editor struct {
	assigner Assigner

	selectable map[tripleKey]rbac.Rule // S
	fixed      map[tripleKey]rbac.Rule // F
	selected   map[tripleKey]rbac.Rule // current editable selection
	locked     map[tripleKey]rbac.Rule // preselected but not assignable by the actor
}

// NewEditor builds an editor over the selectable catalog subset, the fixed
// set and the edited entity's current rules.
func NewEditor(assigner Assigner, selectable, fixed, preselected []rbac.Rule) *Editor {
	e := &Editor{
		assigner:   assigner,
		selectable: make(map[tripleKey]rbac.Rule, len(selectable)),
		fixed:      make(map[tripleKey]rbac.Rule, len(fixed)),
		selected:   make(map[tripleKey]rbac.Rule),
		locked:     make(map[tripleKey]rbac.Rule),
	}
	for _, rule := range selectable {
		e.selectable[keyOf(rule)] = rule
	}
	for _, rule := range fixed {
		e.fixed[keyOf(rule)] = rule
	}
	for _, rule := range preselected {
		k := keyOf(rule)
		if _, isFixed := e.fixed[k]; isFixed {
			continue
		}
		if _, ok := e.selectable[k]; !ok {
			continue
		}
		if assigner.CanAssignRule(rule) {
			e.selected[k] = rule
		} else {
			// Already granted but outside the actor's reach: shown as
			// fixed-selected, cannot be revoked here.
			e.locked[k] = rule
		}
	}
	return e
}

// CellState derives the state of one cell.
func (e *Editor) CellState(res rbac.Resource, scope rbac.Scope, op rbac.Operation) CellState {
	k := tripleKey{res, scope, op}

	if _, ok := e.fixed[k]; ok {
		return CellFixedSelected
	}
	rule, ok := e.selectable[k]
	if !ok {
		return CellNotApplicable
	}
	if _, ok := e.locked[k]; ok {
		return CellFixedSelected
	}
	if !e.assigner.CanAssignRule(rule) {
		return CellFixedNotSelected
	}
	if _, ok := e.selected[k]; ok {
		return CellSelected
	}
	return CellNotSelected
}

// Select turns an editable cell on. Selecting a create/edit/delete rule also
// selects the view rule of the same (resource, scope) when that cell is
// editable, since editing something one cannot view is meaningless. The coupling
// is a single pass: it never cascades further and never leaves the
// (resource, scope) pair.
func (e *Editor) Select(res rbac.Resource, scope rbac.Scope, op rbac.Operation) error {
	k := tripleKey{res, scope, op}
	rule, err := e.editableRule(k)
	if err != nil {
		return err
	}
	e.selected[k] = rule

	if op != rbac.OperationView {
		viewKey := tripleKey{res, scope, rbac.OperationView}
		if viewRule, ok := e.selectable[viewKey]; ok {
			if _, isFixed := e.fixed[viewKey]; !isFixed {
				if _, isLocked := e.locked[viewKey]; !isLocked && e.assigner.CanAssignRule(viewRule) {
					e.selected[viewKey] = viewRule
				}
			}
		}
	}
	return nil
}

// Deselect turns an editable cell off. Deselecting the view rule also
// deselects every other editable, non-fixed selected rule of the same
// (resource, scope), since they are inaccessible without view. Single pass, same
// pairing only.
func (e *Editor) Deselect(res rbac.Resource, scope rbac.Scope, op rbac.Operation) error {
	k := tripleKey{res, scope, op}
	if _, err := e.editableRule(k); err != nil {
		return err
	}
	delete(e.selected, k)

	if op == rbac.OperationView {
		for other := range e.selected {
			if other.res == res && other.scope == scope {
				delete(e.selected, other)
			}
		}
	}
	return nil
}

// Toggle flips an editable cell.
func (e *Editor) Toggle(res rbac.Resource, scope rbac.Scope, op rbac.Operation) error {
	switch e.CellState(res, scope, op) {
	case CellSelected:
		return e.Deselect(res, scope, op)
	case CellNotSelected:
		return e.Select(res, scope, op)
	default:
		return fmt.Errorf("toggle %s:%s:%s: %w", res, scope, op, ErrCellNotEditable)
	}
}

// editableRule returns the selectable rule behind a cell, or
// ErrCellNotEditable when the cell is fixed, locked or not applicable.
func (e *Editor) editableRule(k tripleKey) (rbac.Rule, error) {
	if _, ok := e.fixed[k]; ok {
		return rbac.Rule{}, fmt.Errorf("%s:%s:%s is fixed: %w", k.res, k.scope, k.op, ErrCellNotEditable)
	}
	rule, ok := e.selectable[k]
	if !ok {
		return rbac.Rule{}, fmt.Errorf("no rule for %s:%s:%s: %w", k.res, k.scope, k.op, ErrCellNotEditable)
	}
	if _, ok := e.locked[k]; ok {
		return rbac.Rule{}, fmt.Errorf("%s:%s:%s is locked: %w", k.res, k.scope, k.op, ErrCellNotEditable)
	}
	if !e.assigner.CanAssignRule(rule) {
		return rbac.Rule{}, fmt.Errorf("%s:%s:%s not assignable: %w", k.res, k.scope, k.op, ErrCellNotEditable)
	}
	return rule, nil
}

// Rules emits the complete list of rules the edited entity should hold after
// the current selection: fixed ∪ locked ∪ selected, sorted by rule ID. The
// caller persists this list through the platform API.
func (e *Editor) Rules() []rbac.Rule {
	out := make([]rbac.Rule, 0, len(e.fixed)+len(e.locked)+len(e.selected))
	for _, rule := range e.fixed {
		out = append(out, rule)
	}
	for _, rule := range e.locked {
		out = append(out, rule)
	}
	for _, rule := range e.selected {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cell is one rendered matrix cell
type Cell struct {
	Operation rbac.Operation `json:"operation"`
	RuleID    int64          `json:"rule_id,omitempty"`
	State     CellState      `json:"state"`
}

// Row is one rendered matrix row: every operation cell of one
// (resource, scope) group.
type Row struct {
	Resource rbac.Resource `json:"resource"`
	Scope    rbac.Scope    `json:"scope"`
	Cells    []Cell        `json:"cells"`
}

// matrix column order
var operations = []rbac.Operation{
	rbac.OperationView,
	rbac.OperationCreate,
	rbac.OperationEdit,
	rbac.OperationDelete,
}

// Render lays out the full grid from the catalog grouping, one row per
// (resource, scope) with a cell per operation.
func (e *Editor) Render(catalog []rbac.Rule) []Row {
	groups := rbac.GroupCatalog(catalog)
	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		row := Row{Resource: g.Resource, Scope: g.Scope}
		for _, op := range operations {
			cell := Cell{Operation: op, State: e.CellState(g.Resource, g.Scope, op)}
			if rule, ok := g.Rules[op]; ok {
				cell.RuleID = rule.ID
			}
			row.Cells = append(row.Cells, cell)
		}
		rows = append(rows, row)
	}
	return rows
}
