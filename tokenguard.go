package tokenguard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gov-dx-sandbox/tokenguard/config"
	"github.com/gov-dx-sandbox/tokenguard/internal/cache"
	"github.com/gov-dx-sandbox/tokenguard/internal/discovery"
	"github.com/gov-dx-sandbox/tokenguard/internal/httpx"
	"github.com/gov-dx-sandbox/tokenguard/internal/jsonmodel"
	"github.com/gov-dx-sandbox/tokenguard/internal/keys"
	"github.com/gov-dx-sandbox/tokenguard/internal/keystore"
	"github.com/gov-dx-sandbox/tokenguard/internal/loader"
	"github.com/gov-dx-sandbox/tokenguard/internal/logging"
	"github.com/gov-dx-sandbox/tokenguard/internal/pipeline"
	"github.com/gov-dx-sandbox/tokenguard/internal/registry"
	"github.com/gov-dx-sandbox/tokenguard/internal/security"
)

// Validator is the facade spec §1 describes: one configured instance
// validates access tokens, ID tokens, and refresh tokens against every
// enabled issuer. Discovery and the initial JWKS load run once in
// BuildValidator; later key refreshes run on demand inside a lookup that
// misses a kid; the access-token cache sweep is the only background task.
// Grounded on the teacher's server.RunServer's call-once orchestration of
// sub-components, and configs.LoadConfig's (*T, error) construction shape.
type Validator struct {
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	cache    *cache.Cache
	counter  *security.Counter
	logger   *slog.Logger
}

// IssuerHealth reports one issuer's key material and discovery health,
// as surfaced by Validator.Health.
type IssuerHealth struct {
	Identifier      string
	KeyStoreStatus  string
	DiscoveryHealth string // "" when the issuer does not use well-known discovery.
}

// BuildValidator wires a Validator from cfg: for every enabled issuer it
// builds the key store its source kind calls for (direct JWKS URL,
// well-known discovery, or an offline static document), performs the
// same fail-fast initial load the teacher's NewTokenValidator does, and
// only then assembles the registry, pipeline, and cache around them.
func BuildValidator(cfg *config.Config) (*Validator, error) {
	logger := logging.Default()
	counter := security.NewCounter()
	ctx := context.Background()

	retryStrategy := httpx.RetryStrategy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
		Multiplier:   cfg.Retry.Multiplier,
		MaxDelay:     time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		Jitter:       cfg.Retry.Jitter,
	}
	connectTimeout := time.Duration(cfg.HTTP.ConnectTimeoutMs) * time.Millisecond
	requestTimeout := time.Duration(cfg.HTTP.RequestTimeoutMs) * time.Millisecond
	jwksRefreshRateLimit := time.Duration(cfg.JwksRefreshRateLimitSeconds) * time.Second

	jsonLimits := jsonmodel.Limits{
		MaxPayloadBytes: cfg.JSONLimits.MaxPayloadBytes,
		MaxStringLength: cfg.JSONLimits.MaxStringLength,
		MaxArrayLength:  cfg.JSONLimits.MaxArrayLength,
		MaxDepth:        cfg.JSONLimits.MaxDepth,
	}

	entries := make([]*registry.Entry, 0, len(cfg.Issuers))
	for _, ic := range cfg.Issuers {
		if !ic.Enabled {
			continue
		}

		allowList := ic.AlgAllowList
		if len(allowList) == 0 {
			allowList = keys.DefaultAllowList
		}

		entry := &registry.Entry{
			Identifier:      ic.Identifier,
			Audience:        ic.Audience,
			ClientID:        ic.ClientID,
			AllowJWTRefresh: ic.AllowJWTRefresh,
			ScopesClaim:     ic.ClaimMapping.ScopesClaim,
			RolesClaim:      ic.ClaimMapping.RolesClaim,
			GroupsClaim:     ic.ClaimMapping.GroupsClaim,
			EmailClaim:      ic.ClaimMapping.EmailClaim,
		}

		keyStoreOpts := []loader.Option[[]keys.KeyEntry]{
			loader.WithConnectTimeout[[]keys.KeyEntry](connectTimeout),
			loader.WithRequestTimeout[[]keys.KeyEntry](requestTimeout),
			loader.WithRetryStrategy[[]keys.KeyEntry](retryStrategy),
			loader.WithLogger[[]keys.KeyEntry](logger),
		}

		switch ic.Source.Kind {
		case config.SourceJwksURL:
			entry.KeyStore = keystore.New(ic.Source.JwksURL, allowList, keyStoreOpts...).WithRefreshRateLimit(jwksRefreshRateLimit)
			if status := entry.KeyStore.Refresh(ctx); status == keystore.StatusError {
				return nil, fmt.Errorf("tokenguard: issuer %q: initial JWKS load failed", ic.Identifier)
			}

		case config.SourceWellKnown:
			resolver := discovery.New(ic.Source.WellKnownURL,
				loader.WithConnectTimeout[discovery.Document](connectTimeout),
				loader.WithRequestTimeout[discovery.Document](requestTimeout),
				loader.WithRetryStrategy[discovery.Document](retryStrategy),
				loader.WithLogger[discovery.Document](logger),
			)
			if res := resolver.Resolve(ctx); !res.IsSuccess() {
				return nil, fmt.Errorf("tokenguard: issuer %q: well-known discovery failed: %s", ic.Identifier, res.Detail)
			}
			jwksURI, ok := resolver.JwksURI()
			if !ok {
				return nil, fmt.Errorf("tokenguard: issuer %q: discovery document missing jwks_uri", ic.Identifier)
			}
			entry.Discovery = resolver
			entry.KeyStore = keystore.New(jwksURI, allowList, keyStoreOpts...).WithRefreshRateLimit(jwksRefreshRateLimit)
			if status := entry.KeyStore.Refresh(ctx); status == keystore.StatusError {
				return nil, fmt.Errorf("tokenguard: issuer %q: initial JWKS load failed", ic.Identifier)
			}

		case config.SourceStaticJWKS:
			doc, err := jsonmodel.Decode(ic.Source.StaticJWKSDoc, jsonLimits)
			if err != nil {
				return nil, fmt.Errorf("tokenguard: issuer %q: invalid static JWKS document: %w", ic.Identifier, err)
			}
			keyStore, err := keystore.NewStatic(doc, allowList)
			if err != nil {
				return nil, fmt.Errorf("tokenguard: issuer %q: %w", ic.Identifier, err)
			}
			entry.KeyStore = keyStore

		default:
			return nil, fmt.Errorf("tokenguard: issuer %q: unknown source kind %q", ic.Identifier, ic.Source.Kind)
		}

		entries = append(entries, entry)
	}

	reg, err := registry.New(ctx, entries)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(reg, counter,
		pipeline.WithClockSkewSeconds(int64(cfg.ClockSkewSeconds)),
		pipeline.WithMaxTokenBytes(cfg.MaxTokenBytes),
		pipeline.WithJSONLimits(jsonLimits),
		pipeline.WithLogger(logger),
	)

	c := cache.New(
		cache.WithMaxSize(cfg.Cache.MaxSize),
		cache.WithEvictionInterval(time.Duration(cfg.Cache.EvictionIntervalSeconds)*time.Second),
		cache.WithEarlyEvictSkew(time.Duration(cfg.Cache.EarlyEvictSkewSeconds)*time.Second),
		cache.WithLogger(logger),
	)

	return &Validator{registry: reg, pipeline: p, cache: c, counter: counter, logger: logger}, nil
}

// CreateAccessToken validates raw as an access token, serving a cached
// result when one is available and not yet near expiry, and collapsing
// concurrent callers for the same token onto a single validation.
func (v *Validator) CreateAccessToken(ctx context.Context, raw string) (*pipeline.AccessTokenContent, error) {
	content, err := v.cache.GetOrValidate(ctx, raw, func(ctx context.Context) (pipeline.AccessTokenContent, time.Time, error) {
		c, err := v.pipeline.CreateAccessToken(ctx, raw)
		if err != nil {
			return pipeline.AccessTokenContent{}, time.Time{}, err
		}
		return *c, time.Unix(c.ExpiresAt, 0), nil
	})
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// CreateIdToken validates raw as an ID token. ID tokens are not cached;
// spec §4.9 scopes the AccessTokenCache to access tokens only.
func (v *Validator) CreateIdToken(ctx context.Context, raw string) (*pipeline.IdTokenContent, error) {
	return v.pipeline.CreateIdToken(ctx, raw)
}

// CreateRefreshToken validates raw as a refresh token: opaque by
// default, or run through the full pipeline when its issuer has opted
// into JWT-formatted refresh tokens.
func (v *Validator) CreateRefreshToken(ctx context.Context, raw string) (*pipeline.RefreshTokenContent, error) {
	return v.pipeline.CreateRefreshToken(ctx, raw)
}

// SecurityEventSnapshot returns a point-in-time copy of every EventType's
// count, for a host's own observability layer to expose.
func (v *Validator) SecurityEventSnapshot() map[security.EventType]uint64 {
	return v.counter.Snapshot()
}

// Health reports every enabled issuer's key-store and (if applicable)
// discovery health. Disabled issuers are not registered and not reported.
func (v *Validator) Health() []IssuerHealth {
	entries := v.registry.All()
	out := make([]IssuerHealth, 0, len(entries))
	for _, e := range entries {
		h := IssuerHealth{
			Identifier:     e.Identifier,
			KeyStoreStatus: e.KeyStore.Status().String(),
		}
		if e.Discovery != nil {
			h.DiscoveryHealth = e.Discovery.Health().String()
		}
		out = append(out, h)
	}
	return out
}

// Shutdown cancels the cache's scheduled sweep task and joins it
// deterministically. Safe to call once; the Validator must not be used
// afterward.
func (v *Validator) Shutdown() {
	v.cache.Shutdown()
}
