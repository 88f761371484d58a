// Package logging provides file-based structured logging with rotation
// for Resync. Logs are written as JSON to ~/.resync/logs/resync.log,
// optionally tee'd to stderr, with size-based rotation.
package logging
