package cookieauth

import (
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/cookieauth/cookieauth/session"
	"github.com/cookieauth/cookieauth/ticket"
)

// Builder assembles an [Engine]. Builders are single-use: configure, call
// Build once, discard.
type Builder struct {
	config Config

	codec         ticket.Codec
	protectionKey []byte
	store         session.Store
	redis         redis.UniversalClient
	redisPrefix   string
	transport     CookieTransport
	clock         func() time.Time
	events        Events
	logger        logr.Logger
	loggerSet     bool
	auditSink     AuditSink

	built bool
}

// New creates a [Builder] preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCodec sets the ticket codec. Takes precedence over WithProtectionKey.
func (b *Builder) WithCodec(c ticket.Codec) *Builder {
	b.codec = c
	return b
}

// WithProtectionKey is a convenience that builds an HMAC-SHA256 codec from
// key at Build time.
func (b *Builder) WithProtectionKey(key []byte) *Builder {
	b.protectionKey = key
	return b
}

// WithSessionStore enables session indirection: cookies carry only an opaque
// key and the full ticket lives in store.
func (b *Builder) WithSessionStore(s session.Store) *Builder {
	b.store = s
	return b
}

// WithRedis is a convenience that builds a Redis-backed session store from
// client at Build time, using prefix as the key namespace ("" for the
// default).
func (b *Builder) WithRedis(client redis.UniversalClient, prefix string) *Builder {
	b.redis = client
	b.redisPrefix = prefix
	return b
}

// WithTransport replaces the cookie transport. Defaults to [HTTPTransport].
func (b *Builder) WithTransport(t CookieTransport) *Builder {
	b.transport = t
	return b
}

// WithClock replaces the engine's time source. Defaults to time.Now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithEvents installs the hook set.
func (b *Builder) WithEvents(e Events) *Builder {
	b.events = e
	return b
}

// WithLogger sets the engine logger. Defaults to logr.Discard.
func (b *Builder) WithLogger(l logr.Logger) *Builder {
	b.logger = l
	b.loggerSet = true
	return b
}

// WithAuditSink sets the destination for audit events. Only consulted when
// [AuditConfig.Enabled] is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process metrics counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, resolves defaults, and constructs the
// [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec := b.codec
	if codec == nil && b.protectionKey != nil {
		hc, err := ticket.NewHMACCodec(b.protectionKey)
		if err != nil {
			return nil, err
		}
		codec = hc
	}
	if codec == nil {
		return nil, ErrCodecRequired
	}

	store := b.store
	if store == nil && b.redis != nil {
		store = session.NewRedisStore(b.redis, b.redisPrefix, cfg.Expiration.TicketLifetime)
	}

	transport := b.transport
	if transport == nil {
		transport = HTTPTransport{}
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	logger := b.logger
	if !b.loggerSet {
		logger = logr.Discard()
	}

	engine := &Engine{
		config:    cfg,
		codec:     codec,
		store:     store,
		transport: transport,
		now:       clock,
		events:    b.events,
		logger:    logger,
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
