package cookieauth

import (
	"context"
	"net/http"
	"net/url"
)

// IsHostRelative reports whether uri can only land on the current host: it
// must start with "/" and must not start with "//" or "/\", both of which
// browsers treat as scheme-relative. Everything else (absolute URLs, empty
// strings, bare paths) is rejected.
func IsHostRelative(uri string) bool {
	if len(uri) == 0 || uri[0] != '/' {
		return false
	}
	if len(uri) == 1 {
		return true
	}
	return uri[1] != '/' && uri[1] != '\\'
}

// ApplyChallenge converts an unauthorized outcome into a login redirect. It
// is a no-op when no login path is configured or when the response status is
// no longer 401 (some other component already produced a response). The
// login URI carries the original request URI in the configured return-url
// parameter so sign-in can send the user back.
func (e *Engine) ApplyChallenge(ctx context.Context, w http.ResponseWriter, r *http.Request, challenge Challenge) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.applyChallenge(ctx, w, r, challenge); err != nil {
		_, cerr := e.contain(ctx, LocationApplyChallenge, err, nil)
		return cerr
	}
	return nil
}

func (e *Engine) applyChallenge(ctx context.Context, w http.ResponseWriter, r *http.Request, challenge Challenge) error {
	if e.config.Paths.LoginPath == "" {
		return nil
	}
	if statusOrDefault(w, http.StatusUnauthorized) != http.StatusUnauthorized {
		return nil
	}

	uri := challenge.RedirectURI
	if uri == "" {
		uri = e.loginURI(r)
	}

	e.logger.V(1).Info("issuing challenge redirect", "uri", uri)
	e.metricInc(MetricChallengeRedirect)
	e.emitAudit(ctx, auditEventChallengeRedirect, true, "", r.URL.Path, nil, nil)

	return e.applyRedirect(ctx, w, r, uri)
}

// loginURI builds the absolute login URI for the current request, preserving
// the original destination in the return-url parameter.
func (e *Engine) loginURI(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	q := url.Values{}
	q.Set(e.config.Paths.ReturnURLParameter, r.URL.RequestURI())

	return scheme + "://" + r.Host + e.config.Paths.LoginPath + "?" + q.Encode()
}
