package internal

import "github.com/google/uuid"

// NewSessionKey mints the opaque key under which a session store files a
// ticket. Keys are random UUIDs: unguessable, and carrying no information
// about the ticket they reference.
func NewSessionKey() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
