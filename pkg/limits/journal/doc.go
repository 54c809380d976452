// Package journal records admission decisions for auditing.
//
// # Overview
//
// Every decision taken through limits.Manager.Check can be appended to a
// journal. The journal is write-mostly: it is queried by operators and the
// /v1/decisions endpoint, and it is never read back into limiter state. A
// restarted process starts with empty limiters regardless of the journal.
//
// # Backends
//
//   - MemoryStore: bounded in-memory ring, the default
//   - SQLiteStore: durable storage using the pure-Go modernc.org/sqlite driver
//
// # Recording
//
// Recorder buffers entries on a channel and writes them from a single
// background goroutine so the request path never waits on storage:
//
//	store := journal.NewMemoryStore(10000)
//	rec := journal.NewRecorder(store, nil)
//	defer rec.Close()
//
//	rec.Record(journal.NewEntry("login", "user-1", true, 0))
//
// # Retention
//
// Scheduler prunes entries older than the retention period on a cron
// schedule (e.g. "0 3 * * *" for daily at 3 AM).
package journal
