package keystore

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gov-dx-sandbox/tokenguard/internal/httpx"
	"github.com/gov-dx-sandbox/tokenguard/internal/jsonmodel"
	"github.com/gov-dx-sandbox/tokenguard/internal/keys"
	"github.com/gov-dx-sandbox/tokenguard/internal/loader"
)

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func rsaJWKJSON(pub *rsa.PublicKey, kid, alg string) string {
	n := b64(pub.N.Bytes())
	e := b64(big.NewInt(int64(pub.E)).Bytes())
	return fmt.Sprintf(`{"kty":"RSA","kid":%q,"alg":%q,"n":%q,"e":%q}`, kid, alg, n, e)
}

func jwksDoc(keysJSON ...string) string {
	body := ""
	for i, k := range keysJSON {
		if i > 0 {
			body += ","
		}
		body += k
	}
	return fmt.Sprintf(`{"keys":[%s]}`, body)
}

func fastRetry() loader.Option[[]keys.KeyEntry] {
	return loader.WithRetryStrategy[[]keys.KeyEntry](httpx.RetryStrategy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		Multiplier:   1,
		MaxDelay:     5 * time.Millisecond,
		Jitter:       0,
	})
}

func TestLookup_FindsByKidAndAlg(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	doc := jwksDoc(rsaJWKJSON(&priv.PublicKey, "k1", keys.RS256))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	ks := New(srv.URL, []string{keys.RS256}, fastRetry())
	require.Equal(t, StatusOK, ks.Refresh(context.Background()))

	entry, outcome := ks.Lookup(context.Background(), "k1", keys.RS256)
	require.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, "k1", entry.Kid)
}

func TestLookup_AlgorithmNotOnAllowList(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	doc := jwksDoc(rsaJWKJSON(&priv.PublicKey, "k1", keys.RS256))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	ks := New(srv.URL, []string{keys.RS256}, fastRetry())
	ks.Refresh(context.Background())

	_, outcome := ks.Lookup(context.Background(), "k1", keys.ES256)
	assert.Equal(t, OutcomeAlgorithmNotAllowed, outcome)
}

func TestLookup_KidAbsent_SingleMatchingAlgSucceeds(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	doc := jwksDoc(rsaJWKJSON(&priv.PublicKey, "only", keys.RS256))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	ks := New(srv.URL, []string{keys.RS256}, fastRetry())
	ks.Refresh(context.Background())

	entry, outcome := ks.Lookup(context.Background(), "", keys.RS256)
	require.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, "only", entry.Kid)
}

func TestLookup_KidAbsent_MultipleMatchingAlgFails(t *testing.T) {
	priv1, _ := rsa.GenerateKey(rand.Reader, 2048)
	priv2, _ := rsa.GenerateKey(rand.Reader, 2048)
	doc := jwksDoc(
		rsaJWKJSON(&priv1.PublicKey, "k1", keys.RS256),
		rsaJWKJSON(&priv2.PublicKey, "k2", keys.RS256),
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	ks := New(srv.URL, []string{keys.RS256}, fastRetry())
	ks.Refresh(context.Background())

	_, outcome := ks.Lookup(context.Background(), "", keys.RS256)
	assert.Equal(t, OutcomeKeyNotFound, outcome)
}

func TestLookup_UnknownKidTriggersRateLimitedRefresh(t *testing.T) {
	priv1, _ := rsa.GenerateKey(rand.Reader, 2048)
	priv2, _ := rsa.GenerateKey(rand.Reader, 2048)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			_, _ = w.Write([]byte(jwksDoc(rsaJWKJSON(&priv1.PublicKey, "k1", keys.RS256))))
			return
		}
		_, _ = w.Write([]byte(jwksDoc(
			rsaJWKJSON(&priv1.PublicKey, "k1", keys.RS256),
			rsaJWKJSON(&priv2.PublicKey, "k2", keys.RS256),
		)))
	}))
	defer srv.Close()

	ks := New(srv.URL, []string{keys.RS256}, fastRetry()).WithRefreshRateLimit(time.Millisecond)
	ks.Refresh(context.Background())

	// k2 is unknown on the first keyset; Lookup should trigger a refresh
	// and retry once, since the rate limit window has already elapsed.
	time.Sleep(2 * time.Millisecond)
	entry, outcome := ks.Lookup(context.Background(), "k2", keys.RS256)
	require.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, "k2", entry.Kid)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestLookup_UnknownKidWithinRateLimitWindowFailsFast(t *testing.T) {
	priv1, _ := rsa.GenerateKey(rand.Reader, 2048)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(jwksDoc(rsaJWKJSON(&priv1.PublicKey, "k1", keys.RS256))))
	}))
	defer srv.Close()

	ks := New(srv.URL, []string{keys.RS256}, fastRetry()).WithRefreshRateLimit(time.Hour)
	ks.Refresh(context.Background())
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, outcome := ks.Lookup(context.Background(), "missing", keys.RS256)
	assert.Equal(t, OutcomeKeyNotFound, outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "rate limit should prevent a second refresh")
}

func TestRefresh_RetainsPreviousKeysetOnTransientFailure(t *testing.T) {
	priv1, _ := rsa.GenerateKey(rand.Reader, 2048)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			_, _ = w.Write([]byte(jwksDoc(rsaJWKJSON(&priv1.PublicKey, "k1", keys.RS256))))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ks := New(srv.URL, []string{keys.RS256}, fastRetry())
	require.Equal(t, StatusOK, ks.Refresh(context.Background()))
	require.Equal(t, StatusOK, ks.Refresh(context.Background()))

	entry, outcome := ks.Lookup(context.Background(), "k1", keys.RS256)
	require.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, "k1", entry.Kid)
}

func TestNewStatic_ParsesOfflineJWKS(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	doc, err := jsonmodel.Decode([]byte(jwksDoc(rsaJWKJSON(&priv.PublicKey, "static1", keys.RS256))), jsonmodel.DefaultLimits())
	require.NoError(t, err)

	ks, err := NewStatic(doc, []string{keys.RS256})
	require.NoError(t, err)
	require.Equal(t, StatusOK, ks.Status())

	entry, outcome := ks.Lookup(context.Background(), "static1", keys.RS256)
	require.Equal(t, OutcomeFound, outcome)
	assert.Equal(t, "static1", entry.Kid)
}
