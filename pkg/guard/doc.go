// Package guard enforces permission requirements on console routes.
//
// Guard.Authenticate resolves the session cookie or bearer token into a
// session and stores it in the request context. Require and
// RequireOrganization wrap handlers with checks against the session's
// permission store; denials return JSON 401/403 and are counted in metrics.
//
// PolicyGuard layers a YAML policy file on top, mapping route names to
// requirements. The file is validated on load and can be reloaded live via
// fsnotify, so operators can tighten route requirements without a restart.
// All checks fail closed: unknown routes, missing sessions, and permission
// stores that never finished setup all deny.
package guard
