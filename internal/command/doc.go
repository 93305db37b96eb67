// Package command classifies Redis commands and extracts the keys they touch.
//
// Every supported command name maps to exactly one Spec: a Kind saying whether
// the command can mutate the keyspace, and a Rule saying which of its
// arguments are keys. The table is built once at package initialisation and
// never written afterwards.
//
// # Kinds
//
//   - ReadOnly: never changes state (GET, SMEMBERS, TTL)
//   - Mutating: always assumed to change its keys (SET, LPUSH, INCR)
//   - Conditional: changes its keys only when the reply says so (SADD, DEL, EXPIRE)
//   - Transaction: MULTI, EXEC, DISCARD, WATCH, UNWATCH
//   - FlushAll: changes keys that cannot be enumerated afterwards (FLUSHDB)
//
// Names missing from the table classify as Untracked. Callers must let such
// commands through unchanged and must not record any key for them.
//
// # Adding a command
//
// Add one row to the table in table.go. Extraction and classification pick it
// up without any other change.
package command
