// Package rbac mirrors the federated-analytics platform's rule/role
// authorization model for console-side UI gating.
//
// # Overview
//
// The platform server owns all authorization decisions. The console fetches
// the full rule catalog and the logged-in user's record once after login and
// answers every "may the current user do X" question from that snapshot, so
// rendering a page never needs a network round trip. The snapshot is a
// derived cache: it is never consulted by the server and never widens what
// the server would allow.
//
// # Data model
//
// A Rule is an atomic permission, the triple (operation, resource, scope):
//
//	Operation: view | create | edit | delete | *
//	Resource:  user | organization | collaboration | role | node | task | result | *
//	Scope:     own | organization | collaboration | global | *
//
// Scopes are ordered narrowest to broadest:
//
//	own < organization < collaboration < global
//
// A Role is a named bundle of rules; assigning a role grants the union of its
// rules. A user's effective rule set is their direct rules unioned with the
// rules of every assigned role, deduplicated by rule ID.
//
// # Permission store
//
// PermissionStore holds one user's effective rule set with an explicit
// init/clear lifecycle:
//
//	store := rbac.NewPermissionStore(source)
//	if err := store.Setup(ctx); err != nil {
//		// login flow surfaces the error; the store stays not-ready
//	}
//	store.HasPermission(rbac.OperationEdit, rbac.ResourceTask, rbac.ScopeGlobal)
//	store.Can(rbac.OperationEdit, rbac.ResourceUser, orgID)
//	store.Clear() // logout
//
// Every predicate fails closed: a store that is not ready answers false to
// every gated question. The one deliberate exception is the all-wildcard
// triple (*, *, *), which HasPermission always allows; it marks console
// actions that require no permission at all.
//
// # No-escalation invariant
//
// CanAssignRule, CanAssignRole and CanModifyRulesOtherUser enforce that an
// actor can never grant (or edit their way into granting) a rule the actor
// does not hold. The reserved roles "container" and "node" are never
// assignable through the console regardless of their contents.
package rbac
