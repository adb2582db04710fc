// Package guardian keeps the GIF cache under its size budget.
//
// A Guardian measures the cache on a fixed interval and evicts when the total
// reaches the budget. It shares nothing with converters but the filesystem:
// converters commit by rename, so a sweep sees either nothing or a complete
// file. A file lock keeps processes that share a cache directory from
// sweeping at the same time.
package guardian
