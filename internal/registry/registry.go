// Package registry implements the IssuerRegistry from spec §4.7: the
// startup-time, read-mostly map from issuer identifier to its resolved
// configuration and key material. Grounded on the teacher's
// configs/config.go GetProviders' slice-with-uniqueness-by-key shape,
// applied here to issuer identifiers instead of provider keys.
package registry

import (
	"context"
	"fmt"

	"github.com/gov-dx-sandbox/tokenguard/internal/discovery"
	"github.com/gov-dx-sandbox/tokenguard/internal/keystore"
)

// Entry bundles one issuer's static configuration with the running
// components that serve its keys.
type Entry struct {
	Identifier   string
	Audience     []string
	ClientID     string
	AllowJWTRefresh bool
	ScopesClaim, RolesClaim, GroupsClaim, EmailClaim string
	KeyStore     *keystore.KeyStore
	Discovery    *discovery.Resolver // nil unless the issuer uses well-known discovery
}

// Registry is the IssuerRegistry: an immutable-after-construction map
// keyed by issuer identifier.
type Registry struct {
	byIdentifier map[string]*Entry
}

// ErrDuplicateIdentifier is returned by New when two entries share an
// issuerIdentifier.
type ErrDuplicateIdentifier struct{ Identifier string }

func (e *ErrDuplicateIdentifier) Error() string {
	return fmt.Sprintf("registry: duplicate issuer identifier %q", e.Identifier)
}

// ErrUnknownIssuer is returned by Resolve when no entry matches.
var ErrUnknownIssuer = fmt.Errorf("registry: issuer unknown")

// ErrDiscoveryMismatch is returned by New when a well-known-discovery
// issuer's document disagrees with its configured identifier.
type ErrDiscoveryMismatch struct {
	Configured, Discovered string
}

func (e *ErrDiscoveryMismatch) Error() string {
	return fmt.Sprintf("registry: configured issuer %q does not match discovered issuer %q", e.Configured, e.Discovered)
}

// New builds a Registry from entries, enforcing identifier uniqueness.
// For any entry carrying a non-nil Discovery resolver, New resolves the
// discovery document synchronously and asserts that its issuer field
// equals entry.Identifier, per spec §4.7 — a mismatch is a
// CONFIGURATION_ERROR raised here at startup, never accepted silently
// at runtime.
func New(ctx context.Context, entries []*Entry) (*Registry, error) {
	byIdentifier := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		if _, dup := byIdentifier[e.Identifier]; dup {
			return nil, &ErrDuplicateIdentifier{Identifier: e.Identifier}
		}
		byIdentifier[e.Identifier] = e

		if e.Discovery == nil {
			continue
		}
		res := e.Discovery.Resolve(ctx)
		if !res.IsSuccess() {
			return nil, fmt.Errorf("registry: issuer %q: well-known discovery failed: %s", e.Identifier, res.Detail)
		}
		discoveredIssuer, ok := e.Discovery.Issuer()
		if !ok {
			return nil, fmt.Errorf("registry: issuer %q: discovery document missing issuer field", e.Identifier)
		}
		if discoveredIssuer != e.Identifier {
			return nil, &ErrDiscoveryMismatch{Configured: e.Identifier, Discovered: discoveredIssuer}
		}
	}
	return &Registry{byIdentifier: byIdentifier}, nil
}

// Resolve performs an exact-string-match lookup of an issuer claim. No
// substring or suffix logic is ever applied.
func (r *Registry) Resolve(issuerClaim string) (*Entry, error) {
	entry, ok := r.byIdentifier[issuerClaim]
	if !ok {
		return nil, ErrUnknownIssuer
	}
	return entry, nil
}

// All returns every registered entry, in no particular order. Used by
// the Validator facade to aggregate per-issuer health.
func (r *Registry) All() []*Entry {
	out := make([]*Entry, 0, len(r.byIdentifier))
	for _, e := range r.byIdentifier {
		out = append(out, e)
	}
	return out
}
