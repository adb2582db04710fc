// Package journal records the outcome of every sticker resolution in SQLite.
//
// The cache itself keeps no metadata, so the journal is where operators look
// to answer "why did this sticker fall back to the original file?" Entries
// carry the content key, source URL, kind, outcome, the failure code and tool
// diagnostics when a conversion failed, and timing.
//
// The database is diagnostic history, not part of the cache contract. Losing
// it never affects what the cache serves. Schema changes bump the version in
// schema.go; users delete the database to adopt the new schema.
package journal
