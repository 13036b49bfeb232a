// Package audit records who changed what in the console.
//
// Events cover logins, access denials, and permission edits (role creation,
// role rule changes, per-user rule changes). Loggers are composable:
// FileLogger appends newline-delimited JSON with size-based rotation,
// MemoryLogger keeps a searchable ring of recent events for the API, and
// MultiLogger fans out to both. NewEvent stamps events with the session and
// request ID from the context so entries correlate with request logs.
package audit
