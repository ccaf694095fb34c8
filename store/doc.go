// Package store is the storage gateway for the people table.
//
// Every operation acquires its own Session: a dedicated SQLite connection
// with one transaction on it. Sessions are never shared between callers and
// must be closed on every exit path; Close is idempotent so it can always be
// deferred right after Open.
package store
