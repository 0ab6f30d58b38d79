// Package keystore implements the IssuerKeyStore from spec §4.6: the
// owner of one issuer's KeySet, refreshed over HTTP via internal/loader
// (or loaded once from an in-memory JWKS document for offline mode), with
// rate-limited refresh-and-retry-once lookup semantics. Grounded on the
// teacher's auth/token.go NewTokenValidator/validateSignature (fail-fast
// initial fetch, (kid, alg)-keyed verification) and on
// other_examples/4be9f11c_malston-diego-capacity-analyzer__backend-
// services-jwks.go's JWKSClient.GetKey refresh-on-miss pattern.
package keystore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gov-dx-sandbox/tokenguard/internal/httpx"
	"github.com/gov-dx-sandbox/tokenguard/internal/jsonmodel"
	"github.com/gov-dx-sandbox/tokenguard/internal/keys"
	"github.com/gov-dx-sandbox/tokenguard/internal/loader"
	"github.com/gov-dx-sandbox/tokenguard/internal/logging"
)

// DefaultRefreshRateLimit is the minimum interval between
// refresh-on-miss attempts triggered by Lookup, per spec §4.6.
const DefaultRefreshRateLimit = 10 * time.Second

// Status is the KeyStore's coarse health, per spec §4.6's
// UNDEFINED→LOADING→(OK|ERROR) transition sequence.
type Status int

const (
	StatusUndefined Status = iota
	StatusLoading
	StatusOK
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "LOADING"
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return "UNDEFINED"
	}
}

// Outcome classifies a Lookup result for the pipeline's EventType mapping.
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeKeyNotFound
	OutcomeAlgorithmNotAllowed
)

func decodeJWKS(allowList []string, logger *slog.Logger) loader.Decode[[]keys.KeyEntry] {
	return func(body []byte) ([]keys.KeyEntry, error) {
		m, err := jsonmodel.Decode(body, jsonmodel.DefaultLimits())
		if err != nil {
			return nil, err
		}
		entries, skipped, err := keys.ParseJWKS(m, allowList)
		if err != nil {
			return nil, err
		}
		for _, s := range skipped {
			logger.Warn("keystore: skipped malformed JWK entry", "kid", s.Kid, "error", s.Err)
		}
		return entries, nil
	}
}

// KeyStore is the IssuerKeyStore.
type KeyStore struct {
	allowList   []string
	refreshRate time.Duration
	logger      *slog.Logger

	loader *loader.Loader[[]keys.KeyEntry] // nil in offline/static mode

	mu                   sync.RWMutex
	status               Status
	entries              []keys.KeyEntry
	lastTriggeredRefresh time.Time
}

// New builds a KeyStore that refreshes from jwksURL over HTTP.
func New(jwksURL string, allowList []string, opts ...loader.Option[[]keys.KeyEntry]) *KeyStore {
	logger := logging.Default()
	l := loader.New(jwksURL, decodeJWKS(allowList, logger), opts...)
	return &KeyStore{
		allowList:   allowList,
		refreshRate: DefaultRefreshRateLimit,
		logger:      logger,
		loader:      l,
	}
}

// NewStatic builds an offline KeyStore from an already-decoded JWKS
// document, per SPEC_FULL's static-JWKS offline mode. The store starts
// OK immediately; Refresh is a no-op since there is no remote source.
func NewStatic(doc jsonmodel.Map, allowList []string) (*KeyStore, error) {
	entries, skipped, err := keys.ParseJWKS(doc, allowList)
	if err != nil {
		return nil, err
	}
	logger := logging.Default()
	for _, s := range skipped {
		logger.Warn("keystore: skipped malformed JWK entry in static JWKS", "kid", s.Kid, "error", s.Err)
	}
	return &KeyStore{
		allowList: allowList,
		logger:    logger,
		status:    StatusOK,
		entries:   entries,
	}, nil
}

// WithRefreshRateLimit overrides the default 10s refresh-on-miss rate
// limit; intended for tests.
func (k *KeyStore) WithRefreshRateLimit(d time.Duration) *KeyStore {
	k.refreshRate = d
	return k
}

// Refresh forces a load (a no-op for a static KeyStore), transitioning
// status UNDEFINED/OK/ERROR → LOADING → OK|ERROR. A retryable failure
// that still yields a usable (possibly stale) keyset from the loader
// keeps the store's externally-visible status at OK, retaining the
// previous keyset — the STALE semantics spec §4.6 calls for.
func (k *KeyStore) Refresh(ctx context.Context) Status {
	if k.loader == nil {
		return k.Status()
	}

	k.mu.Lock()
	k.status = StatusLoading
	k.mu.Unlock()

	res := k.loader.Load(ctx)

	k.mu.Lock()
	defer k.mu.Unlock()
	if res.State == httpx.StateError {
		k.status = StatusError
		k.logger.Error("keystore: refresh failed with no usable keyset", "category", res.Category.String(), "detail", res.Detail)
		return k.status
	}
	k.status = StatusOK
	k.entries = res.Payload
	return k.status
}

// Status returns the store's non-blocking cached status.
func (k *KeyStore) Status() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.status
}

// Lookup resolves a KeyEntry for (kid, alg) per spec §4.6's rules.
func (k *KeyStore) Lookup(ctx context.Context, kid, alg string) (keys.KeyEntry, Outcome) {
	if !keys.AllowListContains(k.allowList, alg) {
		return keys.KeyEntry{}, OutcomeAlgorithmNotAllowed
	}

	if kid != "" {
		if entry, ok := k.findByKidAlg(kid, alg); ok {
			return entry, OutcomeFound
		}
		if k.triggerRateLimitedRefresh(ctx) {
			if entry, ok := k.findByKidAlg(kid, alg); ok {
				return entry, OutcomeFound
			}
		}
		return keys.KeyEntry{}, OutcomeKeyNotFound
	}

	if entry, ok := k.findSoleByAlg(alg); ok {
		return entry, OutcomeFound
	}
	return keys.KeyEntry{}, OutcomeKeyNotFound
}

func (k *KeyStore) findByKidAlg(kid, alg string) (keys.KeyEntry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, e := range k.entries {
		if e.Kid == kid && e.Alg == alg {
			return e, true
		}
	}
	return keys.KeyEntry{}, false
}

func (k *KeyStore) findSoleByAlg(alg string) (keys.KeyEntry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var match keys.KeyEntry
	count := 0
	for _, e := range k.entries {
		if e.Alg == alg {
			match = e
			count++
		}
	}
	if count == 1 {
		return match, true
	}
	return keys.KeyEntry{}, false
}

// triggerRateLimitedRefresh attempts a refresh-on-miss, returning true
// iff a refresh was actually performed (i.e. the rate limit allowed it).
func (k *KeyStore) triggerRateLimitedRefresh(ctx context.Context) bool {
	if k.loader == nil {
		return false
	}
	k.mu.Lock()
	if time.Since(k.lastTriggeredRefresh) < k.refreshRate {
		k.mu.Unlock()
		return false
	}
	k.lastTriggeredRefresh = time.Now()
	k.mu.Unlock()

	k.Refresh(ctx)
	return true
}
