// Package storage keeps the durable log of processed comments and outbound
// messages.
//
// The processed_comments table is the dedup ledger: its primary key on
// comment_id together with INSERT ... ON CONFLICT DO NOTHING decides which
// writer owns a comment when several processes race. sent_messages is an
// append-only audit trail with one row per outbound attempt.
//
// SQLiteStore is the production implementation. MemoryStore has the same
// semantics and is used by tests and dry runs.
package storage
