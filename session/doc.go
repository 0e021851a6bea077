// Package session implements the server-side session store capability: keyed
// storage of full authentication tickets so the cookie need only carry an
// opaque reference.
//
// Two implementations are provided. [RedisStore] persists binary-encoded
// tickets in Redis with a TTL derived from the ticket's own expiry, and is
// the store intended for production. [MemoryStore] keeps tickets in-process
// behind a mutex for hosts that run a single instance or are testing.
//
// Concurrency contract: the engine issues store calls strictly sequentially
// within one request, but different requests referencing the same key race
// freely. Both implementations resolve those races last-writer-wins.
package session
