// Package database manages the PostgreSQL pool behind the event archive.
//
// The archive is a single append-only table, relay_events, keyed by the
// relay event ID. EnsureSchema creates it on startup.
package database
