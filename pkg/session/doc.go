// Package session persists authentication state across restarts.
//
// FileStore writes through a temporary file and keeps one backup generation
// so that a crash mid-write or a damaged file never loses the last good
// session. Sessions can be stored as plain JSON or encrypted with
// AES-256-GCM using a passphrase resolved from the environment, the OS
// keyring or a local fallback file.
package session
