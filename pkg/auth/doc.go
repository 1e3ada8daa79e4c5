// Package auth obtains and maintains the Instagram session.
//
// An Authenticator walks an ordered list of Methods (cached session,
// session id, password with backup code, password, access token) and keeps
// the first success. Failures are classified with pkg/errors and start a
// cooldown during which no remote calls are made.
//
// Secrets that should not live in configuration files are kept in the OS
// keyring through KeyringStore.
package auth
