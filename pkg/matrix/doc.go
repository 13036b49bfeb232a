// Package matrix implements the permission-matrix editor behind the
// console's role and user editing grids.
//
// A matrix is a grid of (resource, scope) rows with one cell per operation.
// Each cell derives its state from three rule sets (the selectable catalog
// subset S, the fixed set F and the edited entity's current rules P) and
// from what the acting admin may assign:
//
//	absent from S ∪ F                → not applicable
//	in F                             → fixed selected
//	assignable and in P              → selected
//	assignable, not in P             → not selected
//	not assignable but in P          → fixed selected (cannot revoke either)
//	not assignable, not in P         → fixed not selected
//
// Toggles are coupled within a (resource, scope) pair: selecting
// create/edit/delete drags the view cell on, and deselecting view drags every
// other selected cell off. Both couplings are a single pass and never cascade.
//
// Editor.Rules emits the complete rule list the entity should hold, ready to
// be persisted through the platform API. Toggles that would escalate (cells
// the admin cannot assign) fail with ErrCellNotEditable and are never sent
// upstream.
package matrix
