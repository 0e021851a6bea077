package cookieauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/cookieauth/cookieauth/session"
	"github.com/cookieauth/cookieauth/ticket"
)

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSignInSetsCookieAndCacheHeaders(t *testing.T) {
	engine := buildTestEngine(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	if err := engine.ApplyGrant(context.Background(), rec, req, SignIn(testIdentity(), nil), &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	c := findCookie(t, rec, DefaultCookieName)
	if c == nil || c.Value == "" {
		t.Fatal("expected a ticket cookie")
	}
	if !c.HttpOnly {
		t.Fatal("expected HttpOnly cookie")
	}
	if c.Path != "/" {
		t.Fatalf("expected cookie path /, got %q", c.Path)
	}
	if !c.Expires.IsZero() {
		t.Fatal("non-persistent sign-in must issue a session cookie")
	}

	h := rec.Header()
	if h.Get("Cache-Control") != "no-cache" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "-1" {
		t.Fatalf("expected anti-caching headers, got %v", h)
	}
}

func TestSignInPersistentCookieExpiry(t *testing.T) {
	clock := newTestClock(testEpoch)
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithClock(clock.Now)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	grant := SignIn(testIdentity(), &ticket.Properties{IsPersistent: true})
	if err := engine.ApplyGrant(context.Background(), rec, req, grant, &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	c := findCookie(t, rec, DefaultCookieName)
	if c == nil {
		t.Fatal("expected a ticket cookie")
	}
	want := testEpoch.Add(engine.config.Expiration.TicketLifetime)
	if !c.Expires.Equal(want) {
		t.Fatalf("expected cookie Expires %v, got %v", want, c.Expires)
	}
}

func TestSignInHookMutatesOutgoingTicket(t *testing.T) {
	var signedIn bool
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithEvents(Events{
			OnSigningIn: func(_ context.Context, s *SignInContext) error {
				s.Identity = append(s.Identity, ticket.Claim{Type: "role", Value: "admin"})
				return nil
			},
			OnSignedIn: func(_ context.Context, _ *SignInContext) error {
				signedIn = true
				return nil
			},
		})
	})

	cookie := issueCookie(t, engine, testIdentity(), nil)
	if !signedIn {
		t.Fatal("expected OnSignedIn to run")
	}

	res, err := engine.Authenticate(context.Background(), requestWithCookie("/", cookie))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	role, _ := res.Ticket.Identity.First("role")
	if role != "admin" {
		t.Fatalf("expected hook-added claim, got role=%q", role)
	}
}

func TestSignInReplacesExistingSession(t *testing.T) {
	store := session.NewMemoryStore()
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithSessionStore(store)
	})

	cookie := issueCookie(t, engine, testIdentity(), nil)
	prior, err := engine.Authenticate(context.Background(), requestWithCookie("/", cookie))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	rec := httptest.NewRecorder()
	req := requestWithCookie("/login", cookie)
	grant := SignIn(ticket.Identity{{Type: "sub", Value: "user-2"}}, nil)
	if err := engine.ApplyGrant(context.Background(), rec, req, grant, prior); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("expected the old entry to be replaced, %d entries", store.Len())
	}
	if _, err := store.Retrieve(context.Background(), prior.SessionKey); !errors.Is(err, session.ErrKeyNotFound) {
		t.Fatalf("expected old session key to be gone, got %v", err)
	}
}

func TestSignOutDeletesCookieAndStoreEntry(t *testing.T) {
	store := session.NewMemoryStore()
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithSessionStore(store)
	})

	cookie := issueCookie(t, engine, testIdentity(), nil)
	prior, err := engine.Authenticate(context.Background(), requestWithCookie("/", cookie))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	rec := httptest.NewRecorder()
	req := requestWithCookie("/logout", cookie)
	if err := engine.ApplyGrant(context.Background(), rec, req, SignOut(nil), prior); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	if store.Len() != 0 {
		t.Fatalf("expected store entry removed, %d left", store.Len())
	}
	c := findCookie(t, rec, DefaultCookieName)
	if c == nil {
		t.Fatal("expected a deletion cookie")
	}
	if c.Value != "" || c.MaxAge != -1 {
		t.Fatalf("expected an expiring empty cookie, got value=%q maxage=%d", c.Value, c.MaxAge)
	}
}

func TestSignOutStoreFaultLeavesCookieAlone(t *testing.T) {
	// The store entry dies before the cookie. If removal fails, the cookie
	// must survive so the session is not orphaned client-side only.
	store := session.NewMemoryStore()
	faulty := &faultStore{inner: store}
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithSessionStore(faulty)
	})

	cookie := issueCookie(t, engine, testIdentity(), nil)
	prior, err := engine.Authenticate(context.Background(), requestWithCookie("/", cookie))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	faulty.removeErr = errors.New("redis down")

	rec := httptest.NewRecorder()
	req := requestWithCookie("/logout", cookie)
	if err := engine.ApplyGrant(context.Background(), rec, req, SignOut(nil), prior); err != nil {
		t.Fatalf("expected the fault to be suppressed, got %v", err)
	}

	if c := findCookie(t, rec, DefaultCookieName); c != nil {
		t.Fatal("cookie must not be deleted when the store removal failed")
	}
	if store.Len() != 1 {
		t.Fatal("expected the store entry to survive the failed removal")
	}
}

func TestRenewalRewritesCookieWindow(t *testing.T) {
	clock := newTestClock(testEpoch)
	cfg := DefaultConfig()
	cfg.Expiration.TicketLifetime = time.Hour
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithConfig(cfg).WithClock(clock.Now)
	})

	cookie := issueCookie(t, engine, testIdentity(), nil)
	clock.Advance(40 * time.Minute)

	prior, err := engine.Authenticate(context.Background(), requestWithCookie("/", cookie))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !prior.Renewal.ShouldRenew {
		t.Fatal("expected a pending renewal")
	}

	rec := httptest.NewRecorder()
	if err := engine.ApplyGrant(context.Background(), rec, requestWithCookie("/", cookie), nil, prior); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	renewed := findCookie(t, rec, DefaultCookieName)
	if renewed == nil || renewed.Value == "" {
		t.Fatal("expected a renewed ticket cookie")
	}

	// The renewal rewrote the cookie, so the response must not be cacheable.
	h := rec.Header()
	if h.Get("Cache-Control") != "no-cache" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "-1" {
		t.Fatalf("expected anti-caching headers on renewal, got %v", h)
	}

	res, err := engine.Authenticate(context.Background(), requestWithCookie("/", renewed))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	now := clock.Now()
	props := res.Ticket.Properties
	if props.IssuedUtc == nil || !props.IssuedUtc.Equal(now) {
		t.Fatalf("expected renewed IssuedUtc %v, got %v", now, props.IssuedUtc)
	}
	if props.ExpiresUtc == nil || !props.ExpiresUtc.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected renewed ExpiresUtc %v, got %v", now.Add(time.Hour), props.ExpiresUtc)
	}
	if res.Renewal.ShouldRenew {
		t.Fatal("a just-renewed ticket must not be flagged again")
	}
}

func TestRenewalKeepsSessionKey(t *testing.T) {
	clock := newTestClock(testEpoch)
	cfg := DefaultConfig()
	cfg.Expiration.TicketLifetime = time.Hour
	store := session.NewMemoryStore()
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithConfig(cfg).WithClock(clock.Now).WithSessionStore(store)
	})

	cookie := issueCookie(t, engine, testIdentity(), nil)
	clock.Advance(40 * time.Minute)

	prior, err := engine.Authenticate(context.Background(), requestWithCookie("/", cookie))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	rec := httptest.NewRecorder()
	if err := engine.ApplyGrant(context.Background(), rec, requestWithCookie("/", cookie), nil, prior); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	renewed := findCookie(t, rec, DefaultCookieName)
	res, err := engine.Authenticate(context.Background(), requestWithCookie("/", renewed))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if res.SessionKey != prior.SessionKey {
		t.Fatalf("renewal must keep the session key: %q vs %q", res.SessionKey, prior.SessionKey)
	}
	if store.Len() != 1 {
		t.Fatalf("expected exactly one store entry, got %d", store.Len())
	}
}

func TestApplyGrantNoop(t *testing.T) {
	engine := buildTestEngine(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := engine.ApplyGrant(context.Background(), rec, req, nil, &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("no-op grant must not touch cookies")
	}
	if rec.Header().Get("Cache-Control") != "" {
		t.Fatal("no-op grant must not set cache headers")
	}
}

func TestRedirectAfterSignInOnLoginPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.LoginPath = "/login"
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithConfig(cfg)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login?return_url=%2Fdashboard", nil)
	if err := engine.ApplyGrant(context.Background(), rec, req, SignIn(testIdentity(), nil), &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %q", loc)
	}
}

func TestRedirectExplicitPropertiesURIWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.LoginPath = "/login"
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithConfig(cfg)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login?return_url=%2Fdashboard", nil)
	grant := SignIn(testIdentity(), &ticket.Properties{RedirectURI: "/home"})
	if err := engine.ApplyGrant(context.Background(), rec, req, grant, &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	if loc := rec.Header().Get("Location"); loc != "/home" {
		t.Fatalf("expected explicit redirect to win, got %q", loc)
	}
}

func TestRedirectBlockedForUnsafeExplicitURI(t *testing.T) {
	// The explicit grant URI is just as attacker-reachable as the query
	// string, so it goes through the same host-relative guard.
	cfg := DefaultConfig()
	cfg.Paths.LoginPath = "/login"
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithConfig(cfg).WithMetricsEnabled(true)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	grant := SignIn(testIdentity(), &ticket.Properties{RedirectURI: "https://evil.example/phish"})
	if err := engine.ApplyGrant(context.Background(), rec, req, grant, &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	if rec.Code == http.StatusFound {
		t.Fatal("an absolute explicit redirect URI must not redirect")
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Fatalf("expected no Location header, got %q", loc)
	}
	c := findCookie(t, rec, DefaultCookieName)
	if c == nil || c.Value == "" {
		t.Fatal("the sign-in itself must still take effect")
	}
	if got := engine.MetricsSnapshot().Counters[MetricRedirectBlocked]; got != 1 {
		t.Fatalf("expected 1 blocked redirect, got %d", got)
	}
}

func TestRedirectBlockedForUnsafeReturnURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.LoginPath = "/login"

	cases := []struct {
		name string
		uri  string
	}{
		{"scheme_relative", "//evil.example"},
		{"backslash", "/\\evil.example"},
		{"absolute", "http://evil.example/"},
		{"relative_path", "dashboard"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := buildTestEngine(t, func(b *Builder) {
				b.WithConfig(cfg)
			})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/login?return_url="+url.QueryEscape(tc.uri), nil)
			if err := engine.ApplyGrant(context.Background(), rec, req, SignIn(testIdentity(), nil), &AuthenticateResult{}); err != nil {
				t.Fatalf("ApplyGrant failed: %v", err)
			}

			if rec.Code == http.StatusFound {
				t.Fatalf("unsafe return url %q must not redirect", tc.uri)
			}
			if loc := rec.Header().Get("Location"); loc != "" {
				t.Fatalf("expected no Location header, got %q", loc)
			}
			c := findCookie(t, rec, DefaultCookieName)
			if c == nil || c.Value == "" {
				t.Fatal("the sign-in itself must still take effect")
			}
		})
	}
}

func TestNoRedirectOffLoginPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.LoginPath = "/login"
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithConfig(cfg)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/token?return_url=%2Fdashboard", nil)
	if err := engine.ApplyGrant(context.Background(), rec, req, SignIn(testIdentity(), nil), &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	if loc := rec.Header().Get("Location"); loc != "" {
		t.Fatalf("sign-in off the login path must not redirect, got %q", loc)
	}
}

func TestRedirectAfterSignOutOnLogoutPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.LogoutPath = "/logout"
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithConfig(cfg)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/logout?return_url=%2Fgoodbye", nil)
	if err := engine.ApplyGrant(context.Background(), rec, req, SignOut(nil), &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/goodbye" {
		t.Fatalf("expected redirect to /goodbye, got %q", loc)
	}
}

func TestRedirectSkippedWhenResponseCommitted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.LoginPath = "/login"
	engine := buildTestEngine(t, func(b *Builder) {
		b.WithConfig(cfg)
	})

	rec := httptest.NewRecorder()
	w := &fixedStatusWriter{ResponseWriter: rec, status: http.StatusForbidden}
	req := httptest.NewRequest(http.MethodPost, "/login?return_url=%2Fdashboard", nil)
	if err := engine.ApplyGrant(context.Background(), w, req, SignIn(testIdentity(), nil), &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant failed: %v", err)
	}

	if loc := rec.Header().Get("Location"); loc != "" {
		t.Fatalf("redirect must be skipped once the status moved off 200, got %q", loc)
	}
}
