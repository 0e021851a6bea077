package cookieauth

import (
	"net/http"
	"time"
)

// SecurePolicy is the three-way rule deciding the Secure attribute of the
// ticket cookie.
type SecurePolicy int

const (
	// SecureSameAsRequest marks the cookie Secure only when the request
	// arrived over TLS.
	SecureSameAsRequest SecurePolicy = iota
	// SecureAlways marks the cookie Secure unconditionally.
	SecureAlways
	// SecureNever leaves the cookie insecure. For local development only.
	SecureNever
)

// CookieOptions are the attributes applied when appending or deleting the
// ticket cookie. Expires is set only for persistent tickets.
type CookieOptions struct {
	Domain   string
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	Expires  *time.Time
}

// CookieTransport reads and writes the named ticket cookie. The engine
// treats it as an external collaborator so tests and hosts with non-standard
// cookie handling (header chunking, custom framing) can substitute their own.
type CookieTransport interface {
	Read(r *http.Request, name string) (string, bool)
	Append(w http.ResponseWriter, name, value string, opts CookieOptions)
	Delete(w http.ResponseWriter, name string, opts CookieOptions)
}

// HTTPTransport is the default [CookieTransport] over net/http cookies.
type HTTPTransport struct{}

// Read returns the named cookie's value.
func (HTTPTransport) Read(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// Append adds a Set-Cookie header carrying value with the given attributes.
func (HTTPTransport) Append(w http.ResponseWriter, name, value string, opts CookieOptions) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   opts.Domain,
		Path:     opts.Path,
		HttpOnly: opts.HTTPOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	}
	if opts.Expires != nil {
		c.Expires = opts.Expires.UTC()
	}
	http.SetCookie(w, c)
}

// Delete adds a Set-Cookie header that expires the cookie immediately. The
// attributes must match those used at append time or browsers will keep the
// original cookie alive.
func (HTTPTransport) Delete(w http.ResponseWriter, name string, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Domain:   opts.Domain,
		Path:     opts.Path,
		HttpOnly: opts.HTTPOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
	})
}
