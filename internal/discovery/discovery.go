// Package discovery implements the WellKnownResolver from spec §4.5: an
// OIDC discovery document loader built on internal/loader, exposing the
// handful of fields the rest of tokenguard needs (issuer, jwks_uri,
// authorization_endpoint, token_endpoint) without ever judging whether
// the issuer string itself is acceptable — that policy decision belongs
// to internal/registry. Grounded on
// other_examples/01a2be8f_vyrodovalexey-restapi-example__internal-auth-
// oidc_verifier.go's fetchDiscoveryDocument/oidcDiscoveryDocument shape.
package discovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gov-dx-sandbox/tokenguard/internal/httpx"
	"github.com/gov-dx-sandbox/tokenguard/internal/jsonmodel"
	"github.com/gov-dx-sandbox/tokenguard/internal/loader"
	"github.com/gov-dx-sandbox/tokenguard/internal/logging"
)

// Health mirrors the loader's status, collapsed to the binary view spec
// §4.5 defines for this component.
type Health int

const (
	HealthUnknown Health = iota
	HealthOK
	HealthError
)

func (h Health) String() string {
	switch h {
	case HealthOK:
		return "OK"
	case HealthError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Document is the subset of an OIDC discovery document tokenguard reads.
type Document struct {
	Issuer                string
	JwksURI               string
	AuthorizationEndpoint string
	TokenEndpoint         string
}

func decodeDocument(body []byte) (Document, error) {
	m, err := jsonmodel.Decode(body, jsonmodel.DefaultLimits())
	if err != nil {
		return Document{}, err
	}
	doc := Document{}
	doc.Issuer, _ = m.String("issuer")
	doc.JwksURI, _ = m.String("jwks_uri")
	doc.AuthorizationEndpoint, _ = m.String("authorization_endpoint")
	doc.TokenEndpoint, _ = m.String("token_endpoint")
	return doc, nil
}

// Resolver is the WellKnownResolver: fetches and caches one issuer's
// discovery document, and remembers enough about the last load to answer
// Health() and the field accessors without blocking.
type Resolver struct {
	loader *loader.Loader[Document]
	logger *slog.Logger

	mu     sync.RWMutex
	health Health
	doc    Document
}

// New builds a Resolver for the given well-known URL.
func New(wellKnownURL string, opts ...loader.Option[Document]) *Resolver {
	l := loader.New(wellKnownURL, decodeDocument, opts...)
	return &Resolver{loader: l, logger: logging.Default()}
}

// Resolve fetches (or reuses the cached) discovery document and updates
// the resolver's health/accessor state from the outcome.
func (r *Resolver) Resolve(ctx context.Context) httpx.Result[Document] {
	res := r.loader.Load(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch res.State {
	case httpx.StateFresh, httpx.StateCached:
		if res.Payload.Issuer == "" || res.Payload.JwksURI == "" {
			r.health = HealthError
			r.doc = Document{}
		} else {
			r.health = HealthOK
			r.doc = res.Payload
		}
	default:
		// STALE or ERROR: spec §4.5 says a missing document after retry
		// exhaustion makes health ERROR and accessors return absent. A
		// STALE result still carries a previously-good document, but we
		// treat it the same as ERROR here since the loader already
		// classifies STALE under MustBeHandled() for the caller.
		r.health = HealthError
		r.doc = Document{}
	}
	return res
}

// Health reports the resolver's health as of the last Resolve call.
func (r *Resolver) Health() Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health
}

// Issuer returns the discovered issuer, or ("", false) if health is not OK.
func (r *Resolver) Issuer() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.health != HealthOK {
		return "", false
	}
	return r.doc.Issuer, true
}

// JwksURI returns the discovered jwks_uri, or ("", false) if health is not OK.
func (r *Resolver) JwksURI() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.health != HealthOK {
		return "", false
	}
	return r.doc.JwksURI, true
}

// AuthorizationEndpoint returns the discovered authorization_endpoint, if any.
func (r *Resolver) AuthorizationEndpoint() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.health != HealthOK || r.doc.AuthorizationEndpoint == "" {
		return "", false
	}
	return r.doc.AuthorizationEndpoint, true
}

// TokenEndpoint returns the discovered token_endpoint, if any.
func (r *Resolver) TokenEndpoint() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.health != HealthOK || r.doc.TokenEndpoint == "" {
		return "", false
	}
	return r.doc.TokenEndpoint, true
}
