package cookieauth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultCookieName is the ticket cookie name used when the host does not
// override [CookieConfig.Name].
const DefaultCookieName = ".auth.ticket"

// Config holds all engine tuning. Construct via [DefaultConfig], adjust, and
// hand to [Builder.WithConfig]; instances are treated as immutable once the
// engine is built.
type Config struct {
	Cookie     CookieConfig
	Expiration ExpirationConfig
	Paths      PathConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the name and attributes of the ticket cookie.
type CookieConfig struct {
	Name         string
	Domain       string
	Path         string
	HTTPOnly     bool
	SameSite     http.SameSite
	SecurePolicy SecurePolicy
}

/*
====================================
EXPIRATION CONFIG
====================================
*/

// ExpirationConfig controls ticket lifetime and the sliding-expiration
// renewal policy.
type ExpirationConfig struct {
	// TicketLifetime is applied when a sign-in does not specify an explicit
	// ExpiresUtc.
	TicketLifetime time.Duration
	// SlidingExpiration renews a ticket (preserving its original duration)
	// once more than half its window has elapsed.
	SlidingExpiration bool
}

/*
====================================
PATH CONFIG
====================================
*/

// PathConfig controls the login/logout endpoints and the return-url query
// parameter shared by the post-grant and challenge redirects.
type PathConfig struct {
	// LoginPath is the challenge target. Leaving it empty disables the
	// challenge redirect entirely.
	LoginPath string
	// LogoutPath gates the post-sign-out return-url redirect.
	LogoutPath string
	// ReturnURLParameter names the query parameter carrying the post-auth
	// destination.
	ReturnURLParameter string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration the engine ships with: a
// host-only, HttpOnly, Lax cookie at path "/", secure when the request is,
// 14-day sliding tickets, and "return_url" as the redirect parameter.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Cookie: CookieConfig{
			Name:         DefaultCookieName,
			Path:         "/",
			HTTPOnly:     true,
			SameSite:     http.SameSiteLaxMode,
			SecurePolicy: SecureSameAsRequest,
		},
		Expiration: ExpirationConfig{
			TicketLifetime:    14 * 24 * time.Hour,
			SlidingExpiration: true,
		},
		Paths: PathConfig{
			LoginPath:          "",
			LogoutPath:         "",
			ReturnURLParameter: "return_url",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// No reference-typed fields today; kept for symmetry with Builder's
	// copy-on-build contract.
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the engine cannot operate
// with. Called by [Builder.Build]; exported so hosts can validate eagerly.
func (c *Config) Validate() error {
	if c.Cookie.Name == "" {
		return errors.New("Cookie Name must not be empty")
	}
	if strings.ContainsAny(c.Cookie.Name, " ;,") {
		return errors.New("Cookie Name contains invalid characters")
	}
	if c.Cookie.Path != "" && !strings.HasPrefix(c.Cookie.Path, "/") {
		return errors.New("Cookie Path must start with /")
	}

	if c.Expiration.TicketLifetime <= 0 {
		return errors.New("Expiration TicketLifetime must be > 0")
	}

	if c.Paths.LoginPath != "" && !strings.HasPrefix(c.Paths.LoginPath, "/") {
		return errors.New("Paths LoginPath must start with /")
	}
	if c.Paths.LogoutPath != "" && !strings.HasPrefix(c.Paths.LogoutPath, "/") {
		return errors.New("Paths LogoutPath must start with /")
	}
	if c.Paths.ReturnURLParameter == "" {
		return errors.New("Paths ReturnURLParameter must not be empty")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	return nil
}
