// Package httpx implements the HttpResult sum type and the retry
// strategy spec §4.4/§9 describe: "a result value carrying state +
// payload + ETag + HTTP status; exponential-backoff retry with jitter
// that consumes/produces these results." Grounded on the teacher's
// shared *http.Client (auth/token.go) for transport defaults, generalized
// into spec §9's explicit sum-type variants instead of a single struct
// with an ad-hoc error field.
package httpx

// State is one of the explicit HttpResult variants spec §9 requires.
type State int

const (
	StateFresh State = iota
	StateCached
	StateStale
	StateRecovered
	StateError
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "FRESH"
	case StateCached:
		return "CACHED"
	case StateStale:
		return "STALE"
	case StateRecovered:
		return "RECOVERED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ErrorCategory classifies why a load failed, and whether it's worth
// retrying.
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryNetwork
	ErrorCategoryServer
	ErrorCategoryClient
	ErrorCategoryInvalidContent
	ErrorCategoryConfiguration
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryNetwork:
		return "NETWORK_ERROR"
	case ErrorCategoryServer:
		return "SERVER_ERROR"
	case ErrorCategoryClient:
		return "CLIENT_ERROR"
	case ErrorCategoryInvalidContent:
		return "INVALID_CONTENT"
	case ErrorCategoryConfiguration:
		return "CONFIGURATION_ERROR"
	default:
		return "NONE"
	}
}

// IsRetryable reports whether this category is worth retrying, per spec
// §3: "isRetryable ⇔ errorCategory ∈ {NETWORK_ERROR, SERVER_ERROR}".
func (c ErrorCategory) IsRetryable() bool {
	return c == ErrorCategoryNetwork || c == ErrorCategoryServer
}

// Result is the generic HttpResult<T> from spec §3.
type Result[T any] struct {
	State      State
	Payload    T
	ETag       string
	HTTPStatus int
	Category   ErrorCategory
	Detail     string
}

// IsSuccess reports whether State is one of spec §3's SUCCESS_STATES
// (FRESH, CACHED, RECOVERED).
func (r Result[T]) IsSuccess() bool {
	return r.State == StateFresh || r.State == StateCached || r.State == StateRecovered
}

// MustBeHandled reports whether State is one of spec §3's
// MUST_BE_HANDLED set (ERROR, STALE) — the caller cannot treat the
// payload as fully trustworthy without checking this.
func (r Result[T]) MustBeHandled() bool {
	return r.State == StateError || r.State == StateStale
}

// IsRetryable reports whether the failure that produced this result is
// worth retrying.
func (r Result[T]) IsRetryable() bool {
	return r.Category.IsRetryable()
}
