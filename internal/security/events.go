// Package security defines the EventType taxonomy (spec §7) and a
// lock-free, process-wide counter over it. Grounded on the teacher's
// internals/errors/codes.go (a flat table of string error codes), filled
// in with the spec's own rejection reasons instead of the teacher's
// PDP/CE-specific codes.
package security

// EventType is one distinct, exhaustive rejection (or recoverable fetch
// failure) reason tracked by the counter. Every validation-path failure
// maps to exactly one EventType.
type EventType string

// Parse / size.
const (
	TokenSizeExceeded EventType = "TOKEN_SIZE_EXCEEDED"
	TokenParseFailed  EventType = "TOKEN_PARSE_FAILED"
	HeaderInvalid     EventType = "HEADER_INVALID"
)

// Algorithm / key.
const (
	AlgorithmNotAllowed    EventType = "ALGORITHM_NOT_ALLOWED"
	KeyAlgorithmNotAllowed EventType = "KEY_ALGORITHM_NOT_ALLOWED"
	KeyNotFound            EventType = "KEY_NOT_FOUND"
)

// Issuer.
const (
	IssuerMissing EventType = "ISSUER_MISSING"
	IssuerUnknown EventType = "ISSUER_UNKNOWN"
)

// Signature.
const (
	SignatureInvalid EventType = "SIGNATURE_INVALID"
)

// Time.
const (
	TokenExpired   EventType = "TOKEN_EXPIRED"
	TokenNbfFuture EventType = "TOKEN_NBF_FUTURE"
	TokenIatFuture EventType = "TOKEN_IAT_FUTURE"
)

// Audience / subject.
const (
	AudienceMismatch EventType = "AUDIENCE_MISMATCH"
	SubjectMissing   EventType = "SUBJECT_MISSING"
)

// Material fetch.
const (
	JwksFetchFailed      EventType = "JWKS_FETCH_FAILED"
	JwksJSONParseFailed  EventType = "JWKS_JSON_PARSE_FAILED"
	WellKnownFetchFailed EventType = "WELL_KNOWN_FETCH_FAILED"
)

// AllEventTypes lists every EventType the counter can record, in the
// order spec §7 enumerates them. Used to seed a zeroed snapshot so
// Snapshot() always reports every key, even ones never incremented.
var AllEventTypes = []EventType{
	TokenSizeExceeded, TokenParseFailed, HeaderInvalid,
	AlgorithmNotAllowed, KeyAlgorithmNotAllowed, KeyNotFound,
	IssuerMissing, IssuerUnknown,
	SignatureInvalid,
	TokenExpired, TokenNbfFuture, TokenIatFuture,
	AudienceMismatch, SubjectMissing,
	JwksFetchFailed, JwksJSONParseFailed, WellKnownFetchFailed,
}
