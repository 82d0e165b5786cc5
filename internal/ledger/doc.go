// Package ledger persists pipeline runs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-run recovery, and the status
// transitions the watch service drives. A run records one dataset's trip
// through the pipeline; its attempt rows record every alignment strategy
// that was tried and how each one scored.
//
// The database is treated as transient storage for in-flight work rather
// than a long-term archive. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
package ledger
