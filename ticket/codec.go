package ticket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// Codec protects a ticket into an opaque cookie-safe string and recovers it
// again. Implementations must be safe for concurrent use; the engine shares
// one codec across all in-flight requests.
type Codec interface {
	Protect(t *Ticket) (string, error)
	Unprotect(value string) (*Ticket, error)
}

// ErrUnprotectFailed is returned when a protected value cannot be opened:
// wrong shape, bad signature, or a corrupt inner payload. Callers treat all
// three identically, so the cause is deliberately not distinguished.
var ErrUnprotectFailed = errors.New("ticket unprotect failed")

const minCodecKeySize = 16

// HMACCodec signs the binary-encoded ticket with HMAC-SHA256 and transports
// payload and tag as two base64url segments. It authenticates but does not
// encrypt: claim types and values are recoverable from the cookie, which is
// why session-store indirection exists for deployments that must not leak
// identity data client-side.
type HMACCodec struct {
	key []byte
}

// NewHMACCodec creates an [HMACCodec]. The key must be at least 16 bytes.
func NewHMACCodec(key []byte) (*HMACCodec, error) {
	if len(key) < minCodecKeySize {
		return nil, errors.New("codec key must be at least 16 bytes")
	}
	out := make([]byte, len(key))
	copy(out, key)
	return &HMACCodec{key: out}, nil
}

// Protect encodes and signs the ticket.
func (c *HMACCodec) Protect(t *Ticket) (string, error) {
	payload, err := Encode(t)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)

	return base64.RawURLEncoding.EncodeToString(payload) +
		"." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Unprotect verifies the signature and decodes the ticket. Any failure
// yields [ErrUnprotectFailed].
func (c *HMACCodec) Unprotect(value string) (*Ticket, error) {
	payloadPart, macPart, ok := strings.Cut(value, ".")
	if !ok {
		return nil, ErrUnprotectFailed
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, ErrUnprotectFailed
	}
	tag, err := base64.RawURLEncoding.DecodeString(macPart)
	if err != nil {
		return nil, ErrUnprotectFailed
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	if !hmac.Equal(tag, mac.Sum(nil)) {
		return nil, ErrUnprotectFailed
	}

	t, err := Decode(payload)
	if err != nil {
		return nil, ErrUnprotectFailed
	}
	return t, nil
}
