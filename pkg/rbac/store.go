package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Source fetches the authoritative permission data from the platform server.
// Implementations are expected to be bound to the logged-in user's token.
type Source interface {
	// Rules returns the full rule catalog
	Rules(ctx context.Context) ([]Rule, error)

	// CurrentUser returns the logged-in user's record including assigned
	// roles and direct rules
	CurrentUser(ctx context.Context) (*User, error)
}

// PermissionStore mirrors the platform server's authorization decisions for
// a single logged-in user so that UI gating never needs a network round trip.
// The server remains the authority; this store is a derived cache.
//
// The store is constructor-injected rather than ambient: each login session
// owns one instance, populated by Setup and emptied by Clear. Every predicate
// fails closed: an unpopulated store answers every gated question with false.
type PermissionStore struct {
	source Source

	mu      sync.RWMutex
	ready   bool
	readyCh chan struct{}
	user    *User
	rules   map[int64]Rule // effective rule set keyed by rule ID
	catalog []Rule
}

// NewPermissionStore creates an empty, not-ready permission store
func NewPermissionStore(source Source) *PermissionStore {
	return &PermissionStore{
		source:  source,
		readyCh: make(chan struct{}),
		rules:   make(map[int64]Rule),
	}
}

// Setup fetches the rule catalog and the current user's record, computes the
// effective rule set and marks the store ready. Calling Setup on a store that
// is already ready is a no-op. On fetch failure the store stays not-ready and
// the error is returned to the caller; no retries are performed here.
func (s *PermissionStore) Setup(ctx context.Context) error {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	if ready {
		return nil
	}

	catalog, err := s.source.Rules(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch rule catalog: %w", err)
	}
	user, err := s.source.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch user record: %w", err)
	}

	effective := user.EffectiveRules()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		// Setup raced with another caller; the first fill wins.
		return nil
	}
	s.user = user
	s.catalog = catalog
	s.rules = make(map[int64]Rule, len(effective))
	for _, rule := range effective {
		s.rules[rule.ID] = rule
	}
	s.ready = true
	close(s.readyCh)
	return nil
}

// Refresh re-fetches the catalog and user record of an already-ready store.
// A failed refresh leaves the previous contents in place.
func (s *PermissionStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	if !ready {
		return s.Setup(ctx)
	}

	catalog, err := s.source.Rules(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh rule catalog: %w", err)
	}
	user, err := s.source.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh user record: %w", err)
	}

	effective := user.EffectiveRules()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.catalog = catalog
	s.rules = make(map[int64]Rule, len(effective))
	for _, rule := range effective {
		s.rules[rule.ID] = rule
	}
	return nil
}

// Clear empties the store and resets readiness. Used on logout and on
// authentication failure.
func (s *PermissionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		s.readyCh = make(chan struct{})
	}
	s.ready = false
	s.user = nil
	s.catalog = nil
	s.rules = make(map[int64]Rule)
}

// Ready reports whether the store has been populated
func (s *PermissionStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// WaitReady blocks until the store becomes ready or the context is done.
// Callers must await readiness rather than poll.
func (s *PermissionStore) WaitReady(ctx context.Context) error {
	s.mu.RLock()
	ch := s.readyCh
	s.mu.RUnlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentUser returns a copy of the cached user record, or nil when the
// store is not ready.
func (s *PermissionStore) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// EffectiveRules returns the cached effective rule set sorted by rule ID
func (s *PermissionStore) EffectiveRules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Catalog returns the cached rule catalog
func (s *PermissionStore) Catalog() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// HasPermission reports whether the user holds the requested triple. The
// all-wildcard triple is always allowed, regardless of store state; it marks
// actions that require no gating. Everything else denies until Setup has
// completed.
func (s *PermissionStore) HasPermission(op Operation, res Resource, scope Scope) bool {
	if op == OperationAny && res == ResourceAny && scope == ScopeAny {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return false
	}
	for _, rule := range s.rules {
		if rule.Matches(op, res, scope) {
			return true
		}
	}
	return false
}

// HasMinimalPermission reports whether the user holds the permission at
// minimumScope or any broader scope in the order
// own < organization < collaboration < global.
func (s *PermissionStore) HasMinimalPermission(op Operation, res Resource, minimumScope Scope) bool {
	for _, scope := range ScopesAtLeast(minimumScope) {
		if s.HasPermission(op, res, scope) {
			return true
		}
	}
	return false
}

// Can reports whether the user may act on a concrete resource instance owned
// by the given organization: either the permission is held globally, or it is
// held at organization scope and the target organization is the user's own.
func (s *PermissionStore) Can(op Operation, res Resource, targetOrganizationID int64) bool {
	if s.HasPermission(op, res, ScopeGlobal) {
		return true
	}
	if !s.HasPermission(op, res, ScopeOrganization) {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.OrganizationID == targetOrganizationID
}

// CanAssignRule reports whether the acting user holds the rule themselves.
// Assigning a rule one does not hold would escalate privilege.
func (s *PermissionStore) CanAssignRule(rule Rule) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return false
	}
	_, ok := s.rules[rule.ID]
	return ok
}

// CanAssignRole reports whether the acting user may assign the role: never
// for the reserved container/node roles, otherwise only when every rule in
// the role is independently assignable.
func (s *PermissionStore) CanAssignRole(role Role) bool {
	if role.Reserved() {
		return false
	}
	if !s.Ready() {
		return false
	}
	for _, rule := range role.Rules {
		if !s.CanAssignRule(rule) {
			return false
		}
	}
	return true
}

// CanModifyRulesOtherUser reports whether the acting user may edit the
// target user's rule and role assignments. It is false as soon as the target
// holds any role or direct rule the actor could not independently assign;
// the console must then disable all permission-editing controls for that
// target.
func (s *PermissionStore) CanModifyRulesOtherUser(target *User) bool {
	if target == nil || !s.Ready() {
		return false
	}
	for _, role := range target.Roles {
		if !s.CanAssignRole(role) {
			return false
		}
	}
	for _, rule := range target.Rules {
		if !s.CanAssignRule(rule) {
			return false
		}
	}
	return true
}
