package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gov-dx-sandbox/tokenguard/internal/httpx"
	"github.com/gov-dx-sandbox/tokenguard/internal/loader"
)

func fastRetry() loader.Option[Document] {
	return loader.WithRetryStrategy[Document](httpx.RetryStrategy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		Multiplier:   1,
		MaxDelay:     5 * time.Millisecond,
		Jitter:       0,
	})
}

func TestResolve_HealthyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"issuer":"https://idp.example.com","jwks_uri":"https://idp.example.com/jwks","authorization_endpoint":"https://idp.example.com/authorize","token_endpoint":"https://idp.example.com/token"}`))
	}))
	defer srv.Close()

	r := New(srv.URL, fastRetry())
	res := r.Resolve(context.Background())
	require.True(t, res.IsSuccess())
	assert.Equal(t, HealthOK, r.Health())

	iss, ok := r.Issuer()
	require.True(t, ok)
	assert.Equal(t, "https://idp.example.com", iss)

	jwksURI, ok := r.JwksURI()
	require.True(t, ok)
	assert.Equal(t, "https://idp.example.com/jwks", jwksURI)

	authEP, ok := r.AuthorizationEndpoint()
	require.True(t, ok)
	assert.Equal(t, "https://idp.example.com/authorize", authEP)
}

func TestResolve_MissingRequiredFieldIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"issuer":"https://idp.example.com"}`))
	}))
	defer srv.Close()

	r := New(srv.URL, fastRetry())
	r.Resolve(context.Background())
	assert.Equal(t, HealthError, r.Health())

	_, ok := r.JwksURI()
	assert.False(t, ok)
}

func TestResolve_ErrorAfterRetryExhaustionIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New(srv.URL, fastRetry())
	res := r.Resolve(context.Background())
	assert.Equal(t, httpx.StateError, res.State)
	assert.Equal(t, HealthError, r.Health())

	_, ok := r.Issuer()
	assert.False(t, ok)
}
