// Package ticket defines the authentication ticket model — an identity
// (ordered claim set) paired with validity metadata — together with its
// versioned binary wire format and the protect/unprotect codecs that turn
// tickets into tamper-evident cookie values.
//
// # Architecture boundaries
//
// ticket is a leaf package. It knows nothing about HTTP, cookies, or session
// stores; the engine in the root package composes it with those concerns.
//
// # What this package must NOT do
//
//   - Perform I/O of any kind (codecs are pure transforms).
//   - Import the root cookieauth package or any of its siblings.
package ticket
