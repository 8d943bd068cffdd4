package mcpconfig

import (
	"log/slog"
	"time"

	"github.com/mcpcore/client-go/definitioncache"
	"github.com/mcpcore/client-go/events"
	"github.com/mcpcore/client-go/jsonrpc"
)

// Identity is the client's own name/version, sent as clientInfo during the
// handshake (spec §6).
type Identity struct {
	Name    string
	Version string
}

// Capabilities is the client capability descriptor sent during the
// handshake. Roots is the only capability the core client plumbs through
// today; Experimental carries anything else verbatim.
type Capabilities struct {
	Roots        *RootCapabilities
	Experimental map[string]any
}

// RootCapabilities describes the client's support for the roots/list
// feature (listing is itself out of the core's scope; only the capability
// flag is plumbed through the handshake).
type RootCapabilities struct {
	ListChanged bool
}

// ClientConfig carries everything a Manager needs that is not specific to
// one server: client identity, capability descriptor, logger, definition
// cache, event sink, id-prefix, and codec selection (spec §3).
type ClientConfig struct {
	Identity     Identity
	Capabilities Capabilities

	Logger *slog.Logger
	Sink   events.Sink
	Cache  *definitioncache.Cache

	// IDPrefix is passed to idgen.New for every connection this config's
	// Manager creates.
	IDPrefix string

	// Codec selects the wire codec; nil defaults to encoding/json
	// (jsonrpc.FastCodec opts into the segmentio/encoding fast path).
	Codec jsonrpc.Codec

	// CacheTTL is a TTL value for callers to pass to definitioncache.New.
	// Nothing in this module reads it; it does not change the TTL of a
	// Cache set via WithDefinitionCache.
	CacheTTL time.Duration

	// ConnectRate throttles how often the Manager is willing to *attempt*
	// a new connection per server, independent of any retry policy (which
	// remains out of the core's scope). Zero disables throttling.
	ConnectRate time.Duration
}

// ClientConfigBuilder fluently assembles a ClientConfig.
type ClientConfigBuilder struct {
	cfg ClientConfig
}

// NewClient starts a builder for the given client identity.
func NewClient(name, version string) *ClientConfigBuilder {
	return &ClientConfigBuilder{cfg: ClientConfig{
		Identity: Identity{Name: name, Version: version},
		CacheTTL: 5 * time.Minute,
	}}
}

// WithLogger sets the structured logger; nil means slog.Default().
func (b *ClientConfigBuilder) WithLogger(l *slog.Logger) *ClientConfigBuilder {
	b.cfg.Logger = l
	return b
}

// WithSink sets the event sink that receives dispatched notifications.
func (b *ClientConfigBuilder) WithSink(s events.Sink) *ClientConfigBuilder {
	b.cfg.Sink = s
	return b
}

// WithDefinitionCache sets the tool/resource/prompt definition cache.
func (b *ClientConfigBuilder) WithDefinitionCache(c *definitioncache.Cache) *ClientConfigBuilder {
	b.cfg.Cache = c
	return b
}

// WithRoots advertises roots-list-changed support in the handshake.
func (b *ClientConfigBuilder) WithRoots(listChanged bool) *ClientConfigBuilder {
	b.cfg.Capabilities.Roots = &RootCapabilities{ListChanged: listChanged}
	return b
}

// WithIDPrefix sets the request-id prefix used for log correlation.
func (b *ClientConfigBuilder) WithIDPrefix(prefix string) *ClientConfigBuilder {
	b.cfg.IDPrefix = prefix
	return b
}

// WithFastCodec opts into the segmentio/encoding-backed codec.
func (b *ClientConfigBuilder) WithFastCodec() *ClientConfigBuilder {
	b.cfg.Codec = jsonrpc.FastCodec
	return b
}

// WithCacheTTL sets ClientConfig.CacheTTL (default 5m). It does not change
// the TTL of a Cache passed to WithDefinitionCache.
func (b *ClientConfigBuilder) WithCacheTTL(d time.Duration) *ClientConfigBuilder {
	b.cfg.CacheTTL = d
	return b
}

// WithConnectRate throttles connection attempts per server to at most one
// per d.
func (b *ClientConfigBuilder) WithConnectRate(d time.Duration) *ClientConfigBuilder {
	b.cfg.ConnectRate = d
	return b
}

// Build returns the assembled ClientConfig.
func (b *ClientConfigBuilder) Build() *ClientConfig {
	out := b.cfg
	return &out
}
