// Package config implements tokenguard's configuration shape: the same
// json-tag-struct-plus-encoding/json pattern as the teacher's
// configs/config.go (LoadConfigFromBytes/LoadConfigFile/LoadConfig),
// generalized from orchestration-engine's provider/PDP/CE fields to
// spec §6's enumerated validator options.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gov-dx-sandbox/tokenguard/internal/keys"
)

// SourceKind selects how an IssuerConfig obtains its signing keys.
type SourceKind string

const (
	// SourceJwksURL fetches JWKS directly from a fixed URL via the
	// ETagAwareHttpLoader.
	SourceJwksURL SourceKind = "jwksUrl"
	// SourceWellKnown resolves the issuer's discovery document first,
	// then fetches JWKS from the document's jwks_uri.
	SourceWellKnown SourceKind = "wellKnown"
	// SourceStaticJWKS loads an in-memory JWKS document once at startup
	// (SPEC_FULL §12 item 6's offline mode) — no network calls ever.
	SourceStaticJWKS SourceKind = "staticJwks"
)

// IssuerSource configures where an issuer's keys come from.
type IssuerSource struct {
	Kind          SourceKind      `json:"kind"`
	JwksURL       string          `json:"jwksUrl,omitempty"`
	WellKnownURL  string          `json:"wellKnownUrl,omitempty"`
	StaticJWKSDoc json.RawMessage `json:"staticJwks,omitempty"`
}

// IssuerConfig is one entry in the issuers list, per spec §6.
type IssuerConfig struct {
	Identifier        string       `json:"identifier"`
	Source            IssuerSource `json:"source"`
	Audience          []string     `json:"audience,omitempty"`
	ClientID          string       `json:"clientId,omitempty"`
	AlgAllowList      []string     `json:"algAllowList,omitempty"`
	Enabled           bool         `json:"enabled"`
	AllowJWTRefresh   bool         `json:"allowJwtRefresh,omitempty"`
	ClaimMapping      ClaimMapping `json:"claimMapping,omitempty"`
}

// ClaimMapping configures how an issuer's raw claims are mapped to
// tokenguard's typed scopes/roles/groups/email (spec §4.8 step 8, §9).
type ClaimMapping struct {
	ScopesClaim string `json:"scopesClaim,omitempty"`
	RolesClaim  string `json:"rolesClaim,omitempty"`
	GroupsClaim string `json:"groupsClaim,omitempty"`
	EmailClaim  string `json:"emailClaim,omitempty"`
}

// CacheConfig configures the AccessTokenCache, spec §6.
type CacheConfig struct {
	MaxSize                int `json:"maxSize,omitempty"`
	EvictionIntervalSeconds int `json:"evictionIntervalSeconds,omitempty"`
	EarlyEvictSkewSeconds   int `json:"earlyEvictSkewSeconds,omitempty"`
}

// HTTPConfig configures the ETagAwareHttpLoader's transport, spec §6.
// The two timeouts are applied; VerifyTLS is parsed but not applied, and
// the loader's transport always verifies TLS certificates.
type HTTPConfig struct {
	ConnectTimeoutMs int  `json:"connectTimeoutMs,omitempty"`
	RequestTimeoutMs int  `json:"requestTimeoutMs,omitempty"`
	VerifyTLS        bool `json:"verifyTls"`
}

// RetryConfig configures RetryStrategy, spec §6.
type RetryConfig struct {
	MaxAttempts  int     `json:"maxAttempts,omitempty"`
	InitialDelayMs int   `json:"initialDelayMs,omitempty"`
	Multiplier   float64 `json:"multiplier,omitempty"`
	MaxDelayMs   int     `json:"maxDelayMs,omitempty"`
	Jitter       float64 `json:"jitter,omitempty"`
}

// JSONLimitsConfig configures the bounded JSON decoder, spec §6.
type JSONLimitsConfig struct {
	MaxPayloadBytes int `json:"maxPayloadBytes,omitempty"`
	MaxStringLength int `json:"maxStringLength,omitempty"`
	MaxArrayLength  int `json:"maxArrayLength,omitempty"`
	MaxDepth        int `json:"maxDepth,omitempty"`
}

// LogConfig mirrors the teacher's LogConfig shape (SPEC_FULL §10.1).
type LogConfig struct {
	Level string `json:"level,omitempty"`
}

// Config is tokenguard's top-level configuration document.
type Config struct {
	Issuers                     []*IssuerConfig  `json:"issuers"`
	ClockSkewSeconds            int              `json:"clockSkewSeconds,omitempty"`
	MaxTokenBytes               int              `json:"maxTokenBytes,omitempty"`
	JwksRefreshRateLimitSeconds int              `json:"jwksRefreshRateLimitSeconds,omitempty"`
	Cache                       CacheConfig      `json:"cache,omitempty"`
	HTTP                        HTTPConfig       `json:"http,omitempty"`
	Retry                       RetryConfig      `json:"retry,omitempty"`
	JSONLimits                  JSONLimitsConfig `json:"jsonLimits,omitempty"`
	Log                         LogConfig        `json:"log,omitempty"`
}

// Defaults per spec §6.
const (
	DefaultClockSkewSeconds            = 60
	DefaultMaxTokenBytes                = 8192
	DefaultJwksRefreshRateLimitSeconds = 10
	DefaultCacheMaxSize                 = 1000
	DefaultCacheEvictionIntervalSeconds = 60
	DefaultCacheEarlyEvictSkewSeconds   = 5
	DefaultConnectTimeoutMs             = 5000
	DefaultRequestTimeoutMs             = 10000
	DefaultRetryMaxAttempts             = 5
	DefaultRetryInitialDelayMs          = 1000
	DefaultRetryMultiplier              = 2.0
	DefaultRetryMaxDelayMs              = 60000
	DefaultRetryJitter                  = 0.1
	DefaultMaxPayloadBytes              = 8192
	DefaultMaxStringLength              = 4096
	DefaultMaxArrayLength               = 1024
	DefaultMaxDepth                     = 10
)

// applyDefaults fills every zero-valued option with spec §6's default,
// the same derived-config-logic shape as the teacher's
// LoadConfigFromBytes.
func (c *Config) applyDefaults() {
	if c.ClockSkewSeconds == 0 {
		c.ClockSkewSeconds = DefaultClockSkewSeconds
	}
	if c.MaxTokenBytes == 0 {
		c.MaxTokenBytes = DefaultMaxTokenBytes
	}
	if c.JwksRefreshRateLimitSeconds == 0 {
		c.JwksRefreshRateLimitSeconds = DefaultJwksRefreshRateLimitSeconds
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = DefaultCacheMaxSize
	}
	if c.Cache.EvictionIntervalSeconds == 0 {
		c.Cache.EvictionIntervalSeconds = DefaultCacheEvictionIntervalSeconds
	}
	if c.Cache.EarlyEvictSkewSeconds == 0 {
		c.Cache.EarlyEvictSkewSeconds = DefaultCacheEarlyEvictSkewSeconds
	}
	if c.HTTP.ConnectTimeoutMs == 0 {
		c.HTTP.ConnectTimeoutMs = DefaultConnectTimeoutMs
	}
	if c.HTTP.RequestTimeoutMs == 0 {
		c.HTTP.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if c.Retry.InitialDelayMs == 0 {
		c.Retry.InitialDelayMs = DefaultRetryInitialDelayMs
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = DefaultRetryMultiplier
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = DefaultRetryMaxDelayMs
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = DefaultRetryJitter
	}
	if c.JSONLimits.MaxPayloadBytes == 0 {
		c.JSONLimits.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.JSONLimits.MaxStringLength == 0 {
		c.JSONLimits.MaxStringLength = DefaultMaxStringLength
	}
	if c.JSONLimits.MaxArrayLength == 0 {
		c.JSONLimits.MaxArrayLength = DefaultMaxArrayLength
	}
	if c.JSONLimits.MaxDepth == 0 {
		c.JSONLimits.MaxDepth = DefaultMaxDepth
	}
}

// Validate enforces the configuration-error invariants spec §7 requires
// to fail-fast at construction: duplicate issuer identifiers, a
// misconfigured source, or an algAllowList containing anything outside
// the algorithms KeyMaterial can verify.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Issuers))
	for _, issuer := range c.Issuers {
		if issuer.Identifier == "" {
			return fmt.Errorf("config: issuer with empty identifier")
		}
		if _, dup := seen[issuer.Identifier]; dup {
			return fmt.Errorf("config: duplicate issuer identifier %q", issuer.Identifier)
		}
		seen[issuer.Identifier] = struct{}{}

		switch issuer.Source.Kind {
		case SourceJwksURL:
			if issuer.Source.JwksURL == "" {
				return fmt.Errorf("config: issuer %q source kind jwksUrl requires jwksUrl", issuer.Identifier)
			}
		case SourceWellKnown:
			if issuer.Source.WellKnownURL == "" {
				return fmt.Errorf("config: issuer %q source kind wellKnown requires wellKnownUrl", issuer.Identifier)
			}
		case SourceStaticJWKS:
			if len(issuer.Source.StaticJWKSDoc) == 0 {
				return fmt.Errorf("config: issuer %q source kind staticJwks requires staticJwks", issuer.Identifier)
			}
		default:
			return fmt.Errorf("config: issuer %q has unknown source kind %q", issuer.Identifier, issuer.Source.Kind)
		}

		for _, alg := range issuer.AlgAllowList {
			if !keys.IsAsymmetric(alg) {
				return fmt.Errorf("config: issuer %q algAllowList contains unsupported algorithm %q", issuer.Identifier, alg)
			}
		}
	}
	return nil
}

// LoadConfigFromBytes unmarshals JSON into a Config, applies defaults,
// and validates it — a pure, testable function per the teacher's own
// LoadConfigFromBytes.
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: error unmarshaling config JSON: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFile reads path and parses it as a Config.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: error reading config file %s: %w", path, err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfig reads the path named by CONFIG_PATH (default
// "./config.json"), mirroring the teacher's LoadConfig.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config.json"
	}
	return LoadConfigFile(path)
}
