// Package cookieauth provides a cookie-transported authentication-ticket
// engine: it decides whether a caller is authenticated by validating a signed
// ticket carried in a cookie (or referenced through a server-side session
// store), issues, renews, and revokes those tickets, and drives the
// redirect-to-login challenge flow for denied requests.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build], and the engine holds no per-request state — each request's
// decisions travel in an explicit [AuthenticateResult].
//
// # Architecture boundaries
//
// cookieauth is the public surface. It exposes [Engine], [Builder], [Config],
// the hook set [Events], and value types. The ticket model and codecs live in
// the ticket subpackage; session stores in the session subpackage; the
// net/http pipeline adapter in middleware.
//
// # What this package must NOT do
//
//   - Leak why a ticket was rejected: every recoverable failure is
//     indistinguishable from "not logged in" to the caller.
//   - Emit a plaintext identity into the cookie when a session store is
//     configured — only the opaque session-key marker claim travels.
//   - Redirect to anything but a host-relative path from a return-url
//     parameter.
//
// # Performance contract
//
// Authenticate is the hot path: one cookie read, one unprotect, at most one
// session-store round-trip, and the validation hook. ApplyGrant is allowed
// one to three store round-trips depending on branch.
package cookieauth
