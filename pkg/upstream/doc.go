// Package upstream is the REST and notification-socket client for the
// platform server, the external authority this console mirrors.
//
// The console never owns authorization, task scheduling or persistence; it
// queries the server for the rule catalog, user records, roles and the
// organization/collaboration/node/task listings its tables display, and it
// persists role and assignment edits back through the same API.
//
// A Client created by NewClient carries no credentials and can only call
// Login. WithToken binds a copy to one session's token; token-bound clients
// satisfy rbac.Source (Rules + CurrentUser) and back that session's
// permission store.
//
// Listener consumes the server's pub/sub socket. Events that can change an
// effective rule set (role/rule/user changes) are flagged by
// Event.PermissionEvent so the session layer can refresh the affected
// permission stores.
package upstream
