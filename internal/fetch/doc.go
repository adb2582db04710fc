// Package fetch downloads sticker source files over HTTP.
//
// Every request carries a bounded timeout and a size ceiling. Video clips are
// streamed to a scratch file; vector documents are small enough to read into
// memory. Callers map failures onto the sticker error taxonomy.
package fetch
