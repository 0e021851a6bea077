package session

import (
	"context"
	"sync"
	"time"

	"github.com/cookieauth/cookieauth/internal"
	"github.com/cookieauth/cookieauth/ticket"
)

type memoryEntry struct {
	ticket  *ticket.Ticket
	expires time.Time // zero means no expiry bound
}

// MemoryStore is an in-process [Store] for single-instance hosts and tests.
// Tickets are deep-copied on the way in and out so callers can never alias
// stored state.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func entryExpiry(t *ticket.Ticket) time.Time {
	if t.Properties != nil && t.Properties.ExpiresUtc != nil {
		return *t.Properties.ExpiresUtc
	}
	return time.Time{}
}

// Store files the ticket under a freshly minted key.
func (s *MemoryStore) Store(_ context.Context, t *ticket.Ticket) (string, error) {
	key, err := internal.NewSessionKey()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{ticket: t.Clone(), expires: entryExpiry(t)}
	return key, nil
}

// Retrieve resolves a key to a copy of its ticket, lazily evicting entries
// whose ticket expiry has passed.
func (s *MemoryStore) Retrieve(_ context.Context, key string) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if !entry.expires.IsZero() && !entry.expires.After(s.now()) {
		delete(s.entries, key)
		return nil, ErrKeyNotFound
	}
	return entry.ticket.Clone(), nil
}

// Renew replaces the ticket under an existing key.
func (s *MemoryStore) Renew(_ context.Context, key string, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return ErrKeyNotFound
	}
	s.entries[key] = memoryEntry{ticket: t.Clone(), expires: entryExpiry(t)}
	return nil
}

// Remove destroys the entry. Removing a missing key is not an error.
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len reports the number of live entries. Intended for tests and
// introspection.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
