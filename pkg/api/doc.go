// Package api exposes the console's HTTP surface: credential and OIDC
// login, the permission matrix endpoints for roles and users, and guarded
// read proxies for the platform's resources. Handlers never hold state of
// their own; every decision comes from the session's permission store and
// every mutation goes through the session's token-bound platform client.
package api
