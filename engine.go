package cookieauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/cookieauth/cookieauth/session"
	"github.com/cookieauth/cookieauth/ticket"
)

// Engine is the cookie authentication-ticket engine. One Engine serves all
// concurrent requests; per-request decision state travels in
// [AuthenticateResult] values, never in the Engine itself.
//
// Engine instances are constructed through [Builder.Build] and treated as
// immutable afterwards.
type Engine struct {
	config    Config
	codec     ticket.Codec
	store     session.Store
	transport CookieTransport
	now       func() time.Time
	events    Events
	logger    logr.Logger
	audit     *auditDispatcher
	metrics   *Metrics
}

// Close drains and stops the audit dispatcher. Safe on a nil engine.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Authenticate resolves the caller's identity from the ticket cookie. A nil
// result ticket means anonymous; every recoverable failure (absent or
// malformed cookie, store miss, expired ticket, validation rejection) is
// indistinguishable from "not logged in". The returned result also fixes the
// sliding-expiration renewal decision consumed by [Engine.ApplyGrant] within
// the same request.
//
// Collaborator faults route through the exception hook, which may rethrow
// (the error surfaces here) or supply a replacement ticket.
func (e *Engine) Authenticate(ctx context.Context, r *http.Request) (*AuthenticateResult, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	result, atFailure, err := e.doAuthenticate(ctx, r)
	if err != nil {
		replacement, cerr := e.contain(ctx, LocationAuthenticate, err, atFailure)
		if cerr != nil {
			return nil, cerr
		}
		if replacement != nil {
			return &AuthenticateResult{Ticket: ticket.New(replacement.Identity, replacement.Properties)}, nil
		}
		return &AuthenticateResult{}, nil
	}

	return result, nil
}

// doAuthenticate runs the authenticate state machine. On error it also
// returns whichever ticket model was current at failure time, for the
// containment record.
func (e *Engine) doAuthenticate(ctx context.Context, r *http.Request) (*AuthenticateResult, *ticket.Ticket, error) {
	anonymous := &AuthenticateResult{}

	value, ok := e.transport.Read(r, e.config.Cookie.Name)
	if !ok || value == "" {
		e.metricInc(MetricAuthenticateAnonymous)
		return anonymous, nil, nil
	}

	tk, err := e.codec.Unprotect(value)
	if err != nil {
		e.logger.V(0).Info("ticket cookie failed to unprotect", "cookie", e.config.Cookie.Name)
		e.metricInc(MetricDecodeFailure)
		e.metricInc(MetricAuthenticateAnonymous)
		e.emitAudit(ctx, auditEventDecodeFailed, false, "", r.URL.Path, err, nil)
		return anonymous, nil, nil
	}

	var sessionKey string
	if e.store != nil {
		key, ok := tk.SessionKey()
		if !ok {
			e.logger.V(0).Info("cookie ticket carries no session marker")
			e.metricInc(MetricAuthenticateAnonymous)
			e.emitAudit(ctx, auditEventSessionMarkerAbsent, false, "", r.URL.Path, nil, nil)
			return anonymous, nil, nil
		}

		stored, err := e.store.Retrieve(ctx, key)
		if err != nil {
			if errors.Is(err, session.ErrKeyNotFound) {
				e.logger.V(0).Info("session store miss", "key", key)
				e.metricInc(MetricSessionMiss)
				e.metricInc(MetricAuthenticateAnonymous)
				e.emitAudit(ctx, auditEventSessionMiss, false, key, r.URL.Path, nil, nil)
				return anonymous, nil, nil
			}
			return nil, tk, err
		}
		sessionKey = key
		tk = stored
	}

	props := tk.Properties
	if props == nil {
		props = &ticket.Properties{}
	}

	now := e.now().UTC()
	if props.ExpiresUtc != nil && props.ExpiresUtc.Before(now) {
		if e.store != nil && sessionKey != "" {
			if err := e.store.Remove(ctx, sessionKey); err != nil {
				return nil, tk, err
			}
		}
		e.metricInc(MetricTicketExpired)
		e.metricInc(MetricAuthenticateAnonymous)
		e.emitAudit(ctx, auditEventTicketExpired, false, sessionKey, r.URL.Path, nil, nil)
		return anonymous, nil, nil
	}

	var renewal RenewalDecision
	if e.config.Expiration.SlidingExpiration &&
		props.IssuedUtc != nil && props.ExpiresUtc != nil &&
		(props.AllowRefresh == nil || *props.AllowRefresh) {
		elapsed := now.Sub(*props.IssuedUtc)
		remaining := props.ExpiresUtc.Sub(now)

		if remaining < elapsed {
			renewal = RenewalDecision{
				ShouldRenew: true,
				IssuedUtc:   now,
				ExpiresUtc:  now.Add(props.ExpiresUtc.Sub(*props.IssuedUtc)),
			}
			e.metricInc(MetricRenewalScheduled)
		}
	}

	vc := &ValidationContext{
		Ticket:     tk,
		Identity:   tk.Identity,
		Properties: props,
	}
	if e.events.OnValidate != nil {
		if err := e.events.OnValidate(ctx, vc); err != nil {
			return nil, tk, err
		}
	}
	if vc.Identity == nil {
		// Rejection cancels any pending renewal; the store entry is left
		// alone on purpose.
		e.metricInc(MetricValidationRejected)
		e.metricInc(MetricAuthenticateAnonymous)
		e.emitAudit(ctx, auditEventTicketRejected, false, sessionKey, r.URL.Path, nil, nil)
		return anonymous, nil, nil
	}

	e.metricInc(MetricAuthenticateSuccess)
	e.emitAudit(ctx, auditEventAuthenticateSuccess, true, sessionKey, r.URL.Path, nil, nil)

	return &AuthenticateResult{
		Ticket:     ticket.New(vc.Identity, vc.Properties),
		Renewal:    renewal,
		SessionKey: sessionKey,
	}, nil, nil
}

// statusOrDefault reads the response status through the optional
// introspection interface implemented by buffering writers (the middleware
// recorder). Writers that cannot report a status are assumed to still be at
// def.
func statusOrDefault(w http.ResponseWriter, def int) int {
	type statusReporter interface {
		Status() int
	}
	if sr, ok := w.(statusReporter); ok {
		return sr.Status()
	}
	return def
}
