package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/cookieauth/cookieauth"
	"github.com/cookieauth/cookieauth/ticket"
)

type resultContextKey struct{}
type holderContextKey struct{}

// grantHolder collects at most one grant per request. Sign-in wins over
// sign-out when a handler requests both.
type grantHolder struct {
	mu    sync.Mutex
	grant *cookieauth.Grant
}

func (h *grantHolder) set(g *cookieauth.Grant) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.grant != nil && h.grant.IsSignIn() {
		return
	}
	h.grant = g
}

func (h *grantHolder) take() *cookieauth.Grant {
	h.mu.Lock()
	defer h.mu.Unlock()
	g := h.grant
	h.grant = nil
	return g
}

// ResultFromContext returns the authenticate result [Handler] stored for this
// request.
func ResultFromContext(ctx context.Context) (*cookieauth.AuthenticateResult, bool) {
	res, ok := ctx.Value(resultContextKey{}).(*cookieauth.AuthenticateResult)
	return res, ok
}

// RequestSignIn asks the surrounding [Handler] to issue a ticket for identity
// once the inner handler returns. It reports false when the request is not
// running under [Handler].
func RequestSignIn(ctx context.Context, identity ticket.Identity, props *ticket.Properties) bool {
	holder, ok := ctx.Value(holderContextKey{}).(*grantHolder)
	if !ok {
		return false
	}
	holder.set(cookieauth.SignIn(identity, props))
	return true
}

// RequestSignOut asks the surrounding [Handler] to destroy the current ticket
// once the inner handler returns. A sign-in requested on the same request
// wins. It reports false when the request is not running under [Handler].
func RequestSignOut(ctx context.Context, props *ticket.Properties) bool {
	holder, ok := ctx.Value(holderContextKey{}).(*grantHolder)
	if !ok {
		return false
	}
	holder.set(cookieauth.SignOut(props))
	return true
}

// Handler wraps next with the full cookie authentication lifecycle:
// authenticate before the inner handler runs, apply any requested grant (or a
// pending sliding renewal) after it returns, then convert a remaining 401
// into a login redirect. The inner response is buffered so the engine can
// still append Set-Cookie headers and rewrite the status.
func Handler(engine *cookieauth.Engine, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}

		ctx := r.Context()
		result, err := engine.Authenticate(ctx, r)
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		holder := &grantHolder{}
		ctx = context.WithValue(ctx, resultContextKey{}, result)
		ctx = context.WithValue(ctx, holderContextKey{}, holder)
		r = r.WithContext(ctx)

		rec := newRecorder(w)
		next.ServeHTTP(rec, r)

		if err := engine.ApplyGrant(ctx, rec, r, holder.take(), result); err != nil {
			rec.reset(http.StatusInternalServerError)
		}

		if rec.Status() == http.StatusUnauthorized {
			mark := rec.bodyLen()
			if err := engine.ApplyChallenge(ctx, rec, r, cookieauth.Challenge{}); err != nil {
				rec.reset(http.StatusInternalServerError)
			} else if rec.Status() != http.StatusUnauthorized {
				// The challenge rewrote the response; drop the stale 401 body.
				rec.discardBodyBefore(mark)
			}
		}

		rec.flush()
	})
}
