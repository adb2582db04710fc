// Package main hosts the stickerbridge CLI.
//
// The serve command runs the long-lived service: the HTTP front end, the
// conversion dispatcher and the cache guardian. The remaining commands work
// directly on the cache, journal and configuration so operators can inspect
// or repair a deployment without the service running.
package main
