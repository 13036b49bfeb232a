// Package session ties the permission cache lifecycle to login and logout.
//
// One Manager serves the whole console process. Each successful login
// produces a Session (opaque uuid handed to the browser as a cookie), a
// token-bound upstream client and a populated rbac.PermissionStore. Logout
// and expiry clear all three. Session records live in Redis when configured
// (shared across replicas) or in process memory otherwise.
//
// The manager is also the sink for notification-socket events: role, rule
// and user changes invalidate the short-lived user-record cache and refresh
// every live permission store, so console gating converges on server-side
// changes without a re-login.
package session
