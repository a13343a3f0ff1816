// Package identity ships a reference IdentityProvider backed by Redis:
// argon2id credential hashes, HS256 session tokens, anonymous
// principals, and session-change fanout. It exists so the engine, the
// session watcher, and end-to-end tests run against a real
// implementation; production deployments substitute their own provider
// behind the same interface.
package identity
