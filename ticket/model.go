package ticket

import "time"

// SessionKeyClaimType is the synthetic claim type carried in the cookie when
// a session store holds the real ticket server-side. A cookie ticket whose
// identity contains this claim carries no other usable identity data.
const SessionKeyClaimType = "cookieauth.session-key"

// Claim is a single (type, value) assertion about an identity.
type Claim struct {
	Type  string
	Value string
}

// Identity is an ordered claim set. Uniqueness of claim types is not
// enforced; order may carry meaning for lookup, so First returns the first
// match in declaration order.
type Identity []Claim

// First returns the value of the first claim with the given type.
func (id Identity) First(claimType string) (string, bool) {
	for _, c := range id {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the identity.
func (id Identity) Clone() Identity {
	if id == nil {
		return nil
	}
	out := make(Identity, len(id))
	copy(out, id)
	return out
}

// Properties carries the validity metadata of a ticket plus an open
// extension map for host-defined values.
type Properties struct {
	IssuedUtc    *time.Time
	ExpiresUtc   *time.Time
	AllowRefresh *bool
	IsPersistent bool
	RedirectURI  string
	Items        map[string]string
}

// Clone returns a deep copy of the properties. Cloning nil yields an empty,
// non-nil Properties so callers never have to nil-check downstream.
func (p *Properties) Clone() *Properties {
	out := &Properties{}
	if p == nil {
		return out
	}
	*out = *p
	if p.IssuedUtc != nil {
		t := *p.IssuedUtc
		out.IssuedUtc = &t
	}
	if p.ExpiresUtc != nil {
		t := *p.ExpiresUtc
		out.ExpiresUtc = &t
	}
	if p.AllowRefresh != nil {
		b := *p.AllowRefresh
		out.AllowRefresh = &b
	}
	if p.Items != nil {
		out.Items = make(map[string]string, len(p.Items))
		for k, v := range p.Items {
			out.Items[k] = v
		}
	}
	return out
}

// Ticket is the authenticated identity plus its validity metadata. Tickets
// are treated as immutable after construction; mutation points (validation
// and sign-in hooks) operate on copies and build fresh tickets.
type Ticket struct {
	Identity   Identity
	Properties *Properties
}

// New builds a ticket, guaranteeing non-nil Properties.
func New(identity Identity, props *Properties) *Ticket {
	if props == nil {
		props = &Properties{}
	}
	return &Ticket{Identity: identity, Properties: props}
}

// SessionReference builds the minimal ticket encoded into the cookie when a
// session store is active: a single session-key marker claim and empty
// properties. The real ticket never appears in the cookie.
func SessionReference(key string) *Ticket {
	return New(Identity{{Type: SessionKeyClaimType, Value: key}}, nil)
}

// SessionKey extracts the session-key marker claim, if present.
func (t *Ticket) SessionKey() (string, bool) {
	if t == nil {
		return "", false
	}
	return t.Identity.First(SessionKeyClaimType)
}

// Clone returns a deep copy of the ticket.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	return New(t.Identity.Clone(), t.Properties.Clone())
}
