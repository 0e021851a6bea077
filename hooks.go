package cookieauth

import (
	"context"
	"net/http"

	"github.com/cookieauth/cookieauth/ticket"
)

// Containment locations identify which engine operation a contained failure
// escaped from. They appear in [ExceptionContext.Location] and audit events.
const (
	LocationAuthenticate   = "authenticate"
	LocationApplyGrant     = "apply_grant"
	LocationApplyChallenge = "apply_challenge"
)

// ValidationContext is passed to [Events.OnValidate] for every successfully
// decoded, unexpired ticket. The hook may replace Identity or Properties, or
// reject the ticket entirely; the engine builds the final ticket from
// whatever the hook leaves behind.
type ValidationContext struct {
	// Ticket is the decoded candidate. Treat as read-only.
	Ticket *ticket.Ticket
	// Identity is the working identity. Setting it to nil rejects the
	// ticket; the request proceeds anonymously and any pending renewal is
	// canceled.
	Identity ticket.Identity
	// Properties is the working validity metadata.
	Properties *ticket.Properties
}

// Reject clears the working identity, turning the request anonymous.
func (v *ValidationContext) Reject() {
	v.Identity = nil
}

// ReplaceIdentity swaps the working identity for a different one.
func (v *ValidationContext) ReplaceIdentity(id ticket.Identity) {
	v.Identity = id
}

// SignInContext is passed to [Events.OnSigningIn] before the sign-in cookie
// is issued, and to [Events.OnSignedIn] after. Mutations to Identity,
// Properties, and CookieOptions made by OnSigningIn flow into the issued
// ticket; OnSignedIn observes the final state.
type SignInContext struct {
	Identity      ticket.Identity
	Properties    *ticket.Properties
	CookieOptions *CookieOptions
}

// SignOutContext is passed to [Events.OnSigningOut] before the cookie is
// deleted. CookieOptions mutations flow into the deletion attributes.
type SignOutContext struct {
	Properties    *ticket.Properties
	CookieOptions *CookieOptions
}

// RedirectContext is passed to [Events.OnRedirect] whenever the engine is
// about to redirect (post-grant return-url or challenge). The URI has already
// passed the host-relative guard when it came from a return-url parameter.
// With no hook configured the engine issues a 302 itself.
type RedirectContext struct {
	Writer  http.ResponseWriter
	Request *http.Request
	URI     string
}

// ExceptionContext carries a contained failure to [Events.OnException]. The
// hook communicates its decision by mutating the context: set Rethrow to
// propagate the error to the caller, or leave it false to suppress; for
// authenticate failures it may additionally supply ReplacementTicket to stand
// in as the operation's result.
type ExceptionContext struct {
	// Location names the operation that failed: one of the Location
	// constants.
	Location string
	// Err is the failure being contained.
	Err error
	// Ticket is whichever ticket model was current at failure time. May be
	// nil (applyChallenge loads none).
	Ticket *ticket.Ticket

	// Rethrow, when set by the hook, propagates Err to the caller.
	Rethrow bool
	// ReplacementTicket, when non-nil and Rethrow is unset, becomes the
	// authenticate result. Ignored by the other operations.
	ReplacementTicket *ticket.Ticket
}

// Events is the set of extension points the engine invokes. Every field is
// optional; a nil hook means the default behavior (accept the ticket as-is,
// issue the redirect directly, suppress contained failures).
type Events struct {
	// OnValidate runs for every decoded, unexpired ticket. Returning an
	// error routes to containment; rejecting via the context turns the
	// request anonymous without a fault.
	OnValidate func(ctx context.Context, v *ValidationContext) error
	// OnSigningIn runs before the sign-in cookie is issued and may mutate
	// the outgoing identity, properties, and cookie attributes.
	OnSigningIn func(ctx context.Context, s *SignInContext) error
	// OnSignedIn runs after the sign-in cookie has been appended.
	OnSignedIn func(ctx context.Context, s *SignInContext) error
	// OnSigningOut runs before the cookie deletion on sign-out and may
	// mutate the deletion attributes.
	OnSigningOut func(ctx context.Context, s *SignOutContext) error
	// OnRedirect takes over redirect emission. When nil the engine writes a
	// 302 with the computed URI.
	OnRedirect func(ctx context.Context, r *RedirectContext) error
	// OnException decides the fate of contained failures. When nil they are
	// suppressed and the operation degrades to anonymous/no-op.
	OnException func(ctx context.Context, e *ExceptionContext)
}
