// Package middleware adapts the cookieauth engine to net/http handler
// chains.
//
// [Handler] authenticates every request up front, exposes the result through
// the request context, and runs the response phase (grant application, then
// challenge) after the inner handler returns. Handlers request sign-in or
// sign-out with [RequestSignIn] and [RequestSignOut]; a 401 left by the inner
// handler is converted into a login redirect.
//
// # Architecture boundaries
//
// This package translates HTTP handler-chain mechanics into engine calls. It
// buffers the inner handler's response so the engine can still append
// cookies and rewrite the status afterwards; all authentication decisions
// stay in the engine.
//
// # What this package must NOT do
//
//   - Decode or issue tickets (the engine owns the codec).
//   - Touch the session store.
//   - Decide redirect safety (the engine guards return URLs).
package middleware
