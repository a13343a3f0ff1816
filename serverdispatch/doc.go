// Package serverdispatch implements the server-side SMS fallback path:
// a Redis-backed code store, an HTTP dispatch service that issues and
// verifies codes, and a client that exposes the service as a
// ServerDispatchProvider. The dispatch path carries WebView clients and
// native shells whose plugin is unavailable, so it never requires a
// browser widget.
package serverdispatch
