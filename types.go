package cookieauth

import (
	"time"

	"github.com/cookieauth/cookieauth/ticket"
)

// RenewalDecision is the sliding-expiration outcome computed by
// [Engine.Authenticate]. When ShouldRenew is set, ApplyGrant's renew branch
// stamps the ticket with the recorded window.
type RenewalDecision struct {
	ShouldRenew bool
	IssuedUtc   time.Time
	ExpiresUtc  time.Time
}

// AuthenticateResult is the explicit per-request decision record produced by
// [Engine.Authenticate] and threaded into [Engine.ApplyGrant]. A nil Ticket
// means the request is anonymous. SessionKey is the store key observed on
// this request ("" when no store is configured or no ticket was resolved).
type AuthenticateResult struct {
	Ticket     *ticket.Ticket
	Renewal    RenewalDecision
	SessionKey string
}

// Authenticated reports whether a ticket was resolved.
func (r *AuthenticateResult) Authenticated() bool {
	return r != nil && r.Ticket != nil
}

type grantKind uint8

const (
	grantSignIn grantKind = iota + 1
	grantSignOut
)

// Grant is a one-of response decision: sign in a new identity or sign out
// the current one. The two are mutually exclusive by construction; renewal
// happens only when ApplyGrant receives no grant at all. Construct with
// [SignIn] or [SignOut].
type Grant struct {
	kind       grantKind
	identity   ticket.Identity
	properties *ticket.Properties
}

// SignIn builds a grant that issues a ticket for identity with the given
// properties (nil for defaults).
func SignIn(identity ticket.Identity, props *ticket.Properties) *Grant {
	return &Grant{kind: grantSignIn, identity: identity, properties: props}
}

// SignOut builds a grant that destroys the current ticket. props may carry a
// RedirectURI or extension items for the sign-out hook; nil is fine.
func SignOut(props *ticket.Properties) *Grant {
	return &Grant{kind: grantSignOut, properties: props}
}

// IsSignIn reports whether the grant issues a ticket.
func (g *Grant) IsSignIn() bool {
	return g != nil && g.kind == grantSignIn
}

// IsSignOut reports whether the grant destroys the current ticket.
func (g *Grant) IsSignOut() bool {
	return g != nil && g.kind == grantSignOut
}

// Challenge parameterizes [Engine.ApplyChallenge]. A zero Challenge makes
// the engine synthesize the login URI from the configured login path and the
// current request; an explicit RedirectURI overrides it.
type Challenge struct {
	RedirectURI string
}
