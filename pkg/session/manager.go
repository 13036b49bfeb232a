package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/robfig/cron/v3"

	"github.com/nodusnet/console/pkg/observability"
	"github.com/nodusnet/console/pkg/rbac"
	"github.com/nodusnet/console/pkg/upstream"
)

const (
	defaultTTL           = 8 * time.Hour
	defaultUserCacheSize = 512
	defaultUserCacheTTL  = time.Minute
)

// Manager owns the login/logout lifecycle. Each session gets its own
// token-bound upstream client and its own permission store; the store is
// populated during Login and cleared during Logout. A login whose permission
// setup fails produces no session at all; there is no half-authenticated
// state in which gated checks could accidentally allow.
type Manager struct {
	platform *upstream.Client
	store    Store
	ttl      time.Duration
	log      *observability.Logger
	metrics  *observability.Metrics

	mu      sync.RWMutex
	perms   map[string]*rbac.PermissionStore
	clients map[string]*upstream.Client

	users *lru.LRU[userCacheKey, *rbac.User]
	cron  *cron.Cron
}

// userCacheKey scopes cached user records to the session that fetched them.
// A record one session's credentials could read must never answer another
// session's lookup; the platform's own denial has to apply per session.
type userCacheKey struct {
	session string
	user    int64
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithTTL sets the session lifetime
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithLogger sets the manager's logger
func WithLogger(log *observability.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithMetrics enables session and cache metrics
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a session manager backed by the given platform client
// and session store.
func NewManager(platform *upstream.Client, store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		platform: platform,
		store:    store,
		ttl:      defaultTTL,
		log:      observability.NewLogger(observability.InfoLevel, nil),
		perms:    make(map[string]*rbac.PermissionStore),
		clients:  make(map[string]*upstream.Client),
		users:    lru.NewLRU[userCacheKey, *rbac.User](defaultUserCacheSize, nil, defaultUserCacheTTL),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login authenticates against the platform server and builds the session's
// permission store. If the catalog or user fetch fails the login fails as a
// whole and no session exists.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	token, err := m.platform.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, token)
}

// LoginWithToken builds a session from a platform token obtained elsewhere
// (the SSO callback exchange).
func (m *Manager) LoginWithToken(ctx context.Context, token *upstream.Token) (*Session, error) {
	return m.establish(ctx, token)
}

func (m *Manager) establish(ctx context.Context, token *upstream.Token) (*Session, error) {
	bound := m.platform.WithToken(token)
	perms := rbac.NewPermissionStore(bound)
	if err := perms.Setup(ctx); err != nil {
		// Fail closed: a session without permissions would deny
		// everything anyway, so do not create one.
		perms.Clear()
		m.countSetup("failure")
		return nil, fmt.Errorf("permission setup failed: %w", err)
	}
	m.countSetup("success")

	user := perms.CurrentUser()
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, sess); err != nil {
		perms.Clear()
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.mu.Lock()
	m.perms[sess.ID] = perms
	m.clients[sess.ID] = bound
	m.trackSessions()
	m.mu.Unlock()

	m.log.WithField("user_id", user.ID).Info("session established")
	return sess, nil
}

// Logout clears the session's permission store and deletes the record
func (m *Manager) Logout(ctx context.Context, id string) error {
	m.evict(id)
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// evict drops all in-process state for a session: its permission store, its
// token-bound client and its cached user records.
func (m *Manager) evict(id string) {
	m.mu.Lock()
	if perms, ok := m.perms[id]; ok {
		perms.Clear()
	}
	delete(m.perms, id)
	delete(m.clients, id)
	m.trackSessions()
	m.mu.Unlock()

	for _, k := range m.users.Keys() {
		if k.session == id {
			m.users.Remove(k)
		}
	}
}

// Session returns the stored session record, or ErrNotFound. A session
// restored from the store after a restart has no permission store in this
// process yet; it is rebuilt from the saved token before the session is
// handed out, so the guard never sees a session it cannot check.
func (m *Manager) Session(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Expired without a logout; drop whatever this process
			// still holds for it.
			m.evict(id)
		}
		return nil, err
	}
	if _, ok := m.Permissions(sess.ID); !ok {
		if err := m.rehydrate(ctx, sess); err != nil {
			return nil, fmt.Errorf("rebuilding session permissions: %w", err)
		}
	}
	return sess, nil
}

func (m *Manager) rehydrate(ctx context.Context, sess *Session) error {
	bound := m.platform.WithToken(sess.Token)
	perms := rbac.NewPermissionStore(bound)
	if err := perms.Setup(ctx); err != nil {
		perms.Clear()
		m.countSetup("failure")
		return err
	}
	m.countSetup("success")

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have won the race; keep the first store.
	if _, ok := m.perms[sess.ID]; !ok {
		m.perms[sess.ID] = perms
		m.clients[sess.ID] = bound
		m.trackSessions()
	}
	return nil
}

// Permissions returns the permission store for a session. The second return
// is false for unknown sessions; callers must treat that as "no permissions".
func (m *Manager) Permissions(id string) (*rbac.PermissionStore, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perms, ok := m.perms[id]
	return perms, ok
}

// Client returns the session's token-bound platform client
func (m *Manager) Client(id string) (*upstream.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[id]
	return client, ok
}

// User fetches a user record through the session's client, with a short
// TTL cache in front: CanModifyRulesOtherUser checks hit the same records
// repeatedly while a table renders. Entries are keyed per session, so a hit
// only ever serves a record the session's own credentials fetched.
func (m *Manager) User(ctx context.Context, sessionID string, userID int64) (*rbac.User, error) {
	key := userCacheKey{session: sessionID, user: userID}
	if user, ok := m.users.Get(key); ok {
		m.countCache(true)
		return user, nil
	}
	m.countCache(false)

	client, ok := m.Client(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	user, err := client.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	m.users.Add(key, user)
	return user, nil
}

// HandleEvent reacts to a notification-socket event. Permission-relevant
// changes invalidate the user cache and refresh every live permission store;
// a failed refresh keeps the previous snapshot, which the server still
// enforces against.
func (m *Manager) HandleEvent(e upstream.Event) {
	if !e.PermissionEvent() {
		return
	}
	if e.UserID != 0 {
		for _, k := range m.users.Keys() {
			if k.user == e.UserID {
				m.users.Remove(k)
			}
		}
	} else {
		m.users.Purge()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	m.refreshAll(ctx, "event")
}

// StartCatalogRefresh schedules a periodic re-fetch of the rule catalog and
// user records for long-lived sessions. The schedule uses cron syntax,
// e.g. "@every 15m".
func (m *Manager) StartCatalogRefresh(spec string) error {
	if m.cron != nil {
		m.cron.Stop()
	}
	m.cron = cron.New()
	_, err := m.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		m.sweepExpired(ctx)
		m.refreshAll(ctx, "schedule")
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	m.cron.Start()
	return nil
}

// Close stops background refreshes
func (m *Manager) Close() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// sweepExpired drops in-process state for sessions whose store record is
// gone, so sessions that expire without an explicit logout do not pin a
// permission store and client forever.
func (m *Manager) sweepExpired(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.perms))
	for id := range m.perms {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if _, err := m.store.Get(ctx, id); errors.Is(err, ErrNotFound) {
			m.evict(id)
		}
	}
}

func (m *Manager) refreshAll(ctx context.Context, trigger string) {
	m.mu.RLock()
	stores := make(map[string]*rbac.PermissionStore, len(m.perms))
	for id, perms := range m.perms {
		stores[id] = perms
	}
	m.mu.RUnlock()

	for id, perms := range stores {
		if err := perms.Refresh(ctx); err != nil {
			m.log.WithError(err).WithField("session_id", id).Warn("permission refresh failed")
			m.countRefresh(trigger, "failure")
			continue
		}
		m.countRefresh(trigger, "success")
	}
}

// trackSessions must be called with m.mu held.
func (m *Manager) trackSessions() {
	if m.metrics != nil {
		m.metrics.SessionsActive.Set(float64(len(m.perms)))
	}
}

func (m *Manager) countSetup(status string) {
	if m.metrics != nil {
		m.metrics.PermissionSetups.WithLabelValues(status).Inc()
	}
}

func (m *Manager) countRefresh(trigger, status string) {
	if m.metrics != nil {
		m.metrics.PermissionRefreshes.WithLabelValues(trigger, status).Inc()
	}
}

func (m *Manager) countCache(hit bool) {
	if m.metrics == nil {
		return
	}
	if hit {
		m.metrics.CacheHitsTotal.WithLabelValues("user").Inc()
	} else {
		m.metrics.CacheMissesTotal.WithLabelValues("user").Inc()
	}
}
