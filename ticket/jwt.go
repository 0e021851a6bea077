package ticket

import (
	"encoding/base64"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

const jwtTicketClaim = "tkt"

// JWTCodec protects tickets as HS256 JWTs. The binary-encoded ticket rides
// in a private claim, so the token is tamper-evident but interoperable with
// standard JWT tooling. Ticket expiry stays an engine concern: the token
// itself carries no exp claim, otherwise expired tickets would be rejected
// during unprotect and never reach the store-cleanup path.
type JWTCodec struct {
	key    []byte
	issuer string
}

// NewJWTCodec creates a [JWTCodec] signing with the given HS256 key.
func NewJWTCodec(key []byte, issuer string) (*JWTCodec, error) {
	if len(key) < minCodecKeySize {
		return nil, errors.New("codec key must be at least 16 bytes")
	}
	out := make([]byte, len(key))
	copy(out, key)
	return &JWTCodec{key: out, issuer: issuer}, nil
}

// Protect encodes the ticket and signs it into a compact JWT.
func (c *JWTCodec) Protect(t *Ticket) (string, error) {
	payload, err := Encode(t)
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		jwtTicketClaim: base64.RawURLEncoding.EncodeToString(payload),
	}
	if c.issuer != "" {
		claims["iss"] = c.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// Unprotect verifies the JWT and decodes the embedded ticket. Any failure
// yields [ErrUnprotectFailed].
func (c *JWTCodec) Unprotect(value string) (*Ticket, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.Parse(value, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrUnprotectFailed
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnprotectFailed
	}
	encoded, ok := claims[jwtTicketClaim].(string)
	if !ok {
		return nil, ErrUnprotectFailed
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrUnprotectFailed
	}
	t, err := Decode(payload)
	if err != nil {
		return nil, ErrUnprotectFailed
	}
	return t, nil
}
