package cookieauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cookieauth/cookieauth/session"
	"github.com/cookieauth/cookieauth/ticket"
)

var testProtectionKey = []byte("0123456789abcdef0123456789abcdef")

// testEpoch anchors engine clocks near real time so store TTLs (which use
// the wall clock) stay positive while tests run.
var testEpoch = time.Now().UTC().Truncate(time.Second)

// testClock is a mutable time source shared between a test and its engine.
type testClock struct {
	mu sync.Mutex
	at time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{at: at}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

func testIdentity() ticket.Identity {
	return ticket.Identity{
		{Type: "sub", Value: "user-1"},
		{Type: "name", Value: "alice"},
	}
}

func buildTestEngine(t *testing.T, mutate func(b *Builder)) *Engine {
	t.Helper()

	b := New().WithProtectionKey(testProtectionKey)
	if mutate != nil {
		mutate(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed to start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return rdb
}

// issueCookie signs in through the engine and returns the resulting ticket
// cookie.
func issueCookie(t *testing.T, e *Engine, id ticket.Identity, props *ticket.Properties) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	if err := e.ApplyGrant(context.Background(), rec, req, SignIn(id, props), &AuthenticateResult{}); err != nil {
		t.Fatalf("ApplyGrant sign-in failed: %v", err)
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == e.config.Cookie.Name && c.Value != "" {
			return c
		}
	}
	t.Fatal("no ticket cookie issued")
	return nil
}

func requestWithCookie(path string, c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(c)
	return req
}

// faultStore wraps a working store and fails selected operations.
type faultStore struct {
	inner       session.Store
	retrieveErr error
	removeErr   error
	renewErr    error
}

func (s *faultStore) Store(ctx context.Context, t *ticket.Ticket) (string, error) {
	return s.inner.Store(ctx, t)
}

func (s *faultStore) Retrieve(ctx context.Context, key string) (*ticket.Ticket, error) {
	if s.retrieveErr != nil {
		return nil, s.retrieveErr
	}
	return s.inner.Retrieve(ctx, key)
}

func (s *faultStore) Renew(ctx context.Context, key string, t *ticket.Ticket) error {
	if s.renewErr != nil {
		return s.renewErr
	}
	return s.inner.Renew(ctx, key, t)
}

func (s *faultStore) Remove(ctx context.Context, key string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	return s.inner.Remove(ctx, key)
}

// fixedStatusWriter wraps a recorder and reports a preset status to the
// engine's status gate.
type fixedStatusWriter struct {
	http.ResponseWriter
	status int
}

func (w *fixedStatusWriter) Status() int {
	return w.status
}
