package cookieauth

import (
	"context"
	"net/http"

	"github.com/cookieauth/cookieauth/ticket"
)

// ApplyGrant executes the response-phase decision for a request: issue a
// sign-in cookie, destroy the current one, or silently renew a sliding
// ticket. A sign-in or sign-out grant always wins over a pending renewal; a
// nil grant applies the renewal recorded in prior (if any) and is otherwise a
// no-op.
//
// prior is the [AuthenticateResult] for this request. Passing nil makes
// ApplyGrant authenticate internally, but callers that already authenticated
// should thread their result through to keep one decision per request.
func (e *Engine) ApplyGrant(ctx context.Context, w http.ResponseWriter, r *http.Request, grant *Grant, prior *AuthenticateResult) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}

	if prior == nil {
		var err error
		prior, err = e.Authenticate(ctx, r)
		if err != nil {
			return err
		}
	}

	atFailure, err := e.applyGrant(ctx, w, r, grant, prior)
	if err != nil {
		_, cerr := e.contain(ctx, LocationApplyGrant, err, atFailure)
		return cerr
	}
	return nil
}

func (e *Engine) applyGrant(ctx context.Context, w http.ResponseWriter, r *http.Request, grant *Grant, prior *AuthenticateResult) (*ticket.Ticket, error) {
	switch {
	case grant != nil && grant.kind == grantSignIn:
		return e.applySignIn(ctx, w, r, grant, prior)
	case grant != nil && grant.kind == grantSignOut:
		return e.applySignOut(ctx, w, r, grant, prior)
	case prior.Renewal.ShouldRenew:
		return e.applyRenewal(ctx, w, r, prior)
	default:
		return nil, nil
	}
}

func (e *Engine) applySignIn(ctx context.Context, w http.ResponseWriter, r *http.Request, grant *Grant, prior *AuthenticateResult) (*ticket.Ticket, error) {
	opts := e.baseCookieOptions(r)
	sc := &SignInContext{
		Identity:      grant.identity,
		Properties:    grant.properties.Clone(),
		CookieOptions: &opts,
	}
	if e.events.OnSigningIn != nil {
		if err := e.events.OnSigningIn(ctx, sc); err != nil {
			return nil, err
		}
	}

	props := sc.Properties
	if props == nil {
		props = &ticket.Properties{}
		sc.Properties = props
	}

	now := e.now().UTC()
	if props.IssuedUtc == nil {
		issued := now
		props.IssuedUtc = &issued
	}
	if props.ExpiresUtc == nil {
		expires := props.IssuedUtc.Add(e.config.Expiration.TicketLifetime)
		props.ExpiresUtc = &expires
	}
	if props.IsPersistent && sc.CookieOptions.Expires == nil {
		expires := *props.ExpiresUtc
		sc.CookieOptions.Expires = &expires
	}

	full := ticket.New(sc.Identity, props)
	outgoing := full

	var sessionKey string
	if e.store != nil {
		// A fresh sign-in never reuses the old entry.
		if prior.SessionKey != "" {
			if err := e.store.Remove(ctx, prior.SessionKey); err != nil {
				return full, err
			}
		}
		key, err := e.store.Store(ctx, full)
		if err != nil {
			return full, err
		}
		sessionKey = key
		outgoing = ticket.SessionReference(key)
	}

	value, err := e.codec.Protect(outgoing)
	if err != nil {
		return full, err
	}
	e.transport.Append(w, e.config.Cookie.Name, value, *sc.CookieOptions)

	if e.events.OnSignedIn != nil {
		if err := e.events.OnSignedIn(ctx, sc); err != nil {
			return full, err
		}
	}

	e.logger.V(1).Info("sign-in cookie issued", "persistent", props.IsPersistent)
	e.metricInc(MetricSignIn)
	e.emitAudit(ctx, auditEventSignIn, true, sessionKey, r.URL.Path, nil, nil)

	e.applyCacheHeaders(w)
	if err := e.redirectAfterGrant(ctx, w, r, props.RedirectURI, r.URL.Path == e.config.Paths.LoginPath); err != nil {
		return full, err
	}

	return nil, nil
}

func (e *Engine) applySignOut(ctx context.Context, w http.ResponseWriter, r *http.Request, grant *Grant, prior *AuthenticateResult) (*ticket.Ticket, error) {
	// The server-side entry dies first so a fault after this point can only
	// leave behind a dangling cookie, never a live session.
	var sessionKey string
	if e.store != nil && prior.SessionKey != "" {
		sessionKey = prior.SessionKey
		if err := e.store.Remove(ctx, sessionKey); err != nil {
			return prior.Ticket, err
		}
	}

	opts := e.baseCookieOptions(r)
	soc := &SignOutContext{
		Properties:    grant.properties.Clone(),
		CookieOptions: &opts,
	}
	if e.events.OnSigningOut != nil {
		if err := e.events.OnSigningOut(ctx, soc); err != nil {
			return prior.Ticket, err
		}
	}

	e.transport.Delete(w, e.config.Cookie.Name, *soc.CookieOptions)

	e.logger.V(1).Info("sign-out processed")
	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditEventSignOut, true, sessionKey, r.URL.Path, nil, nil)

	e.applyCacheHeaders(w)
	redirectURI := ""
	if soc.Properties != nil {
		redirectURI = soc.Properties.RedirectURI
	}
	if err := e.redirectAfterGrant(ctx, w, r, redirectURI, r.URL.Path == e.config.Paths.LogoutPath); err != nil {
		return prior.Ticket, err
	}

	return nil, nil
}

func (e *Engine) applyRenewal(ctx context.Context, w http.ResponseWriter, r *http.Request, prior *AuthenticateResult) (*ticket.Ticket, error) {
	if prior.Ticket == nil {
		return nil, ErrRenewWithoutTicket
	}

	props := prior.Ticket.Properties.Clone()
	issued := prior.Renewal.IssuedUtc
	expires := prior.Renewal.ExpiresUtc
	props.IssuedUtc = &issued
	props.ExpiresUtc = &expires

	renewed := ticket.New(prior.Ticket.Identity, props)
	outgoing := renewed

	if e.store != nil && prior.SessionKey != "" {
		if err := e.store.Renew(ctx, prior.SessionKey, renewed); err != nil {
			return renewed, err
		}
		outgoing = ticket.SessionReference(prior.SessionKey)
	}

	opts := e.baseCookieOptions(r)
	if props.IsPersistent {
		opts.Expires = &expires
	}

	value, err := e.codec.Protect(outgoing)
	if err != nil {
		return renewed, err
	}
	e.transport.Append(w, e.config.Cookie.Name, value, opts)

	e.logger.V(1).Info("sliding ticket renewed", "expires", expires)
	e.metricInc(MetricRenewalApplied)
	e.emitAudit(ctx, auditEventTicketRenewed, true, prior.SessionKey, r.URL.Path, nil, nil)

	e.applyCacheHeaders(w)

	return nil, nil
}

// baseCookieOptions derives the Set-Cookie attributes for this request from
// configuration. Secure resolution needs the request because of
// [SecureSameAsRequest].
func (e *Engine) baseCookieOptions(r *http.Request) CookieOptions {
	secure := false
	switch e.config.Cookie.SecurePolicy {
	case SecureAlways:
		secure = true
	case SecureNever:
		secure = false
	default:
		secure = r.TLS != nil
	}

	return CookieOptions{
		Domain:   e.config.Cookie.Domain,
		Path:     e.config.Cookie.Path,
		HTTPOnly: e.config.Cookie.HTTPOnly,
		Secure:   secure,
		SameSite: e.config.Cookie.SameSite,
	}
}

// applyCacheHeaders marks the response uncacheable. Responses that set or
// clear the ticket cookie must never be served from a shared cache.
func (e *Engine) applyCacheHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "-1")
}

// redirectAfterGrant issues the post-sign-in/sign-out redirect. It runs only
// when the grant happened on the configured login/logout path and the
// response is still untouched (status 200). An explicit RedirectURI from the
// grant properties wins; otherwise the return-url query parameter is
// consulted. Either source is subject to the host-relative guard: properties
// are routinely populated from user input, so an explicit URI is no more
// trustworthy than the query string.
func (e *Engine) redirectAfterGrant(ctx context.Context, w http.ResponseWriter, r *http.Request, explicitURI string, onGrantPath bool) error {
	if !onGrantPath || statusOrDefault(w, http.StatusOK) != http.StatusOK {
		return nil
	}

	uri := explicitURI
	if uri == "" {
		uri = r.URL.Query().Get(e.config.Paths.ReturnURLParameter)
	}
	if uri == "" {
		return nil
	}
	if !IsHostRelative(uri) {
		e.logger.V(0).Info("redirect target rejected", "value", uri)
		e.metricInc(MetricRedirectBlocked)
		e.emitAudit(ctx, auditEventRedirectBlocked, false, "", r.URL.Path, nil, func() map[string]string {
			return map[string]string{"redirect_uri": uri}
		})
		return nil
	}

	return e.applyRedirect(ctx, w, r, uri)
}

// applyRedirect hands the redirect to the OnRedirect hook or, absent one,
// writes a 302 itself. A hook error is returned to the caller, which routes
// it through containment like any other hook failure.
func (e *Engine) applyRedirect(ctx context.Context, w http.ResponseWriter, r *http.Request, uri string) error {
	if e.events.OnRedirect != nil {
		rc := &RedirectContext{Writer: w, Request: r, URI: uri}
		return e.events.OnRedirect(ctx, rc)
	}
	http.Redirect(w, r, uri, http.StatusFound)
	return nil
}
