// Package webm converts WebM video stickers into looping GIFs with ffmpeg.
//
// A conversion downloads the clip into the scratch directory, runs a two-pass
// palette filter into the cache's staging area, and commits the result under
// the sticker's content key. Scratch and staged files are removed on every
// exit path, so a failed or interrupted run leaves nothing under the final
// cache name. Failures are returned as *sticker.Error.
package webm
