// Package tracker records which Redis keys a test mutates.
//
// Two realizations share one classify, extract and merge pipeline built on
// package command:
//
//   - Tracker is a go-redis hook. Every command, pipeline and TxPipelined
//     batch on the tracked client is classified inline, after the server
//     replied, so Conditional commands are judged on their real result.
//   - Monitor reads the server's MONITOR feed on a background goroutine and
//     hands accumulated keys to the foreground through sentinel-key
//     barriers.
//
// Both satisfy lifecycle.Source.
//
// # Transactions
//
// Commands sent between MULTI and EXEC are queued, not classified. EXEC
// replays the queue against the per-command replies; when EXEC yields no
// replies (WATCH failure, EXECABORT, transport error) every queued command
// is treated as changed. DISCARD drops the queue. MULTI while a transaction
// is open fails with ErrNestedTransaction and is not sent.
//
// # Limitations
//
// Unknown commands pass through untracked. FLUSHALL, FLUSHDB and SWAPDB are
// logged as untrackable. A tracked client must be driven by one goroutine at
// a time.
package tracker
