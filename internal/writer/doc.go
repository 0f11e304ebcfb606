// Package writer archives relay events to PostgreSQL.
//
// EventWriter subscribes to the relay like any other consumer, accumulates
// rows and flushes them with a single pgx batch when the batch fills up or
// the flush interval passes. Rows are append-only and keyed by event ID, so
// a replayed event is counted as a conflict instead of a duplicate row.
// Message payloads are stored byte-for-byte.
package writer
