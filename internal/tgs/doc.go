// Package tgs converts TGS vector stickers (gzip-compressed Lottie documents)
// into GIFs.
//
// Unlike video conversion, a vector sticker that cannot be decompressed or
// rendered is not an error for the caller: Convert reports a soft failure and
// the caller falls back to the sticker's static image. Recent soft failures
// are remembered so a broken document is not fetched and rendered on every
// request. Download and cache write failures remain hard errors.
package tgs
