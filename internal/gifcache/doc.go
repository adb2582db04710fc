// Package gifcache stores converted stickers as flat "<key>.gif" files in a
// single directory. The filesystem is the only index: a restart loses nothing
// and needs no warm-up.
//
// # Commit Protocol
//
// External tools never write to a final cache path. They write into the
// ".incoming" staging subdirectory; Commit flushes the file, checks that it is
// a non-empty GIF, and renames it into place. A reader or a concurrent purge
// therefore sees either no entry or a complete one.
//
// PurgeAll removes only regular files directly under the root, so staged
// files of in-flight conversions survive a purge. SizeBytes counts everything
// under the root, staging included.
package gifcache
