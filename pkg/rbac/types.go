package rbac

import (
	"fmt"
	"sort"
)

// Operation represents an action that can be performed on a resource
type Operation string

const (
	OperationView   Operation = "view"
	OperationCreate Operation = "create"
	OperationEdit   Operation = "edit"
	OperationDelete Operation = "delete"
	OperationAny    Operation = "*"
)

// Valid reports whether the operation is a known value
func (o Operation) Valid() bool {
	switch o {
	case OperationView, OperationCreate, OperationEdit, OperationDelete, OperationAny:
		return true
	}
	return false
}

// ParseOperation parses an operation string from the platform API
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return op, nil
}

// Resource represents a resource type managed through the console
type Resource string

const (
	ResourceUser          Resource = "user"
	ResourceOrganization  Resource = "organization"
	ResourceCollaboration Resource = "collaboration"
	ResourceRole          Resource = "role"
	ResourceNode          Resource = "node"
	ResourceTask          Resource = "task"
	ResourceResult        Resource = "result"
	ResourceAny           Resource = "*"
)

// Valid reports whether the resource is a known value
func (r Resource) Valid() bool {
	switch r {
	case ResourceUser, ResourceOrganization, ResourceCollaboration, ResourceRole,
		ResourceNode, ResourceTask, ResourceResult, ResourceAny:
		return true
	}
	return false
}

// ParseResource parses a resource string from the platform API
func ParseResource(s string) (Resource, error) {
	res := Resource(s)
	if !res.Valid() {
		return "", fmt.Errorf("unknown resource %q", s)
	}
	return res, nil
}

// Scope represents the breadth at which a permission applies, ordered
// narrowest to broadest: own < organization < collaboration < global
type Scope string

const (
	ScopeOwn           Scope = "own"
	ScopeOrganization  Scope = "organization"
	ScopeCollaboration Scope = "collaboration"
	ScopeGlobal        Scope = "global"
	ScopeAny           Scope = "*"
)

// scopeRanks orders scopes from narrowest to broadest. ScopeAny carries no
// rank; callers that need ordering must resolve it first.
var scopeRanks = map[Scope]int{
	ScopeOwn:           1,
	ScopeOrganization:  2,
	ScopeCollaboration: 3,
	ScopeGlobal:        4,
}

// Valid reports whether the scope is a known value
func (s Scope) Valid() bool {
	if s == ScopeAny {
		return true
	}
	_, ok := scopeRanks[s]
	return ok
}

// ParseScope parses a scope string from the platform API
func ParseScope(s string) (Scope, error) {
	sc := Scope(s)
	if !sc.Valid() {
		return "", fmt.Errorf("unknown scope %q", s)
	}
	return sc, nil
}

// AtLeast reports whether s is minimum or a broader scope. Unknown scopes
// never satisfy any minimum.
func (s Scope) AtLeast(minimum Scope) bool {
	sr, ok := scopeRanks[s]
	if !ok {
		return false
	}
	mr, ok := scopeRanks[minimum]
	if !ok {
		return false
	}
	return sr >= mr
}

// ScopesAtLeast returns every concrete scope at minimum or broader, in rank
// order. ScopeAny as the minimum resolves to all scopes.
func ScopesAtLeast(minimum Scope) []Scope {
	if minimum == ScopeAny {
		minimum = ScopeOwn
	}
	ordered := []Scope{ScopeOwn, ScopeOrganization, ScopeCollaboration, ScopeGlobal}
	var out []Scope
	for _, s := range ordered {
		if s.AtLeast(minimum) {
			out = append(out, s)
		}
	}
	return out
}

// Rule is an atomic permission: the (operation, resource, scope) triple as
// issued by the platform server. Identity is the rule ID; the triple is
// unique per rule in the server catalog.
type Rule struct {
	ID        int64     `json:"id"`
	Operation Operation `json:"operation"`
	Resource  Resource  `json:"resource"`
	Scope     Scope     `json:"scope"`
}

// String returns a string representation of the rule triple
func (r Rule) String() string {
	return string(r.Resource) + ":" + string(r.Scope) + ":" + string(r.Operation)
}

// Valid reports whether all three axes are known values
func (r Rule) Valid() bool {
	return r.Operation.Valid() && r.Resource.Valid() && r.Scope.Valid()
}

// Matches reports whether the rule grants the requested triple. An axis
// matches on equality or on a wildcard on either side.
func (r Rule) Matches(op Operation, res Resource, scope Scope) bool {
	return matchAxis(string(r.Operation), string(op)) &&
		matchAxis(string(r.Resource), string(res)) &&
		matchAxis(string(r.Scope), string(scope))
}

func matchAxis(held, requested string) bool {
	return held == requested || held == "*" || requested == "*"
}

// Reserved role names that are managed by the platform itself and must never
// be assignable through the console.
const (
	RoleNameContainer = "container"
	RoleNameNode      = "node"
)

// Role is a named, reusable bundle of rules. A nil OrganizationID means the
// role applies to any organization.
type Role struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
	Rules          []Rule `json:"rules"`
}

// Reserved reports whether the role is a system-internal role that the
// console must never assign, regardless of its rule contents.
func (r Role) Reserved() bool {
	return r.Name == RoleNameContainer || r.Name == RoleNameNode
}

// User carries the permission-relevant fields of a platform user record
type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	OrganizationID int64  `json:"organization_id"`
	Rules          []Rule `json:"rules"`
	Roles          []Role `json:"roles"`
}

// EffectiveRules returns the user's direct rules unioned with the rules of
// every assigned role, deduplicated by rule ID and sorted by ID. Computing
// the set twice from the same input yields the same result.
func (u User) EffectiveRules() []Rule {
	seen := make(map[int64]Rule)
	for _, rule := range u.Rules {
		seen[rule.ID] = rule
	}
	for _, role := range u.Roles {
		for _, rule := range role.Rules {
			seen[rule.ID] = rule
		}
	}

	rules := make([]Rule, 0, len(seen))
	for _, rule := range seen {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// RuleGroup is a presentation-only grouping of catalog rules by
// (resource, scope), used to lay out the permission matrix. It is not a
// server entity.
type RuleGroup struct {
	Resource Resource           `json:"resource"`
	Scope    Scope              `json:"scope"`
	Rules    map[Operation]Rule `json:"rules"`
}

// GroupCatalog groups catalog rules by (resource, scope), sorted by resource
// name and then scope rank. Rules with unknown axes are skipped.
func GroupCatalog(catalog []Rule) []RuleGroup {
	type key struct {
		res   Resource
		scope Scope
	}

	groups := make(map[key]*RuleGroup)
	for _, rule := range catalog {
		if !rule.Valid() {
			continue
		}
		k := key{rule.Resource, rule.Scope}
		g, ok := groups[k]
		if !ok {
			g = &RuleGroup{
				Resource: rule.Resource,
				Scope:    rule.Scope,
				Rules:    make(map[Operation]Rule),
			}
			groups[k] = g
		}
		g.Rules[rule.Operation] = rule
	}

	out := make([]RuleGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return scopeRanks[out[i].Scope] < scopeRanks[out[j].Scope]
	})
	return out
}
