package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func jwksHandler(t *testing.T, key *rsa.PublicKey, kid string, hits *atomic.Int64) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		doc := jwksDocument{Keys: []jwkKey{{
			Kty: "RSA",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}

func TestJWKSKeyProvider_GetKey(t *testing.T) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	var hits atomic.Int64
	server := httptest.NewServer(jwksHandler(t, &private.PublicKey, "key-1", &hits))
	defer server.Close()

	provider := NewJWKSKeyProvider(JWKSConfig{URL: server.URL})

	got, err := provider.GetKey(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("GetKey() error = %v", err)
	}
	pub, ok := got.(*rsa.PublicKey)
	if !ok || pub.N.Cmp(private.PublicKey.N) != 0 {
		t.Error("GetKey() returned wrong key")
	}

	// Second lookup must come from cache.
	if _, err := provider.GetKey(context.Background(), "key-1"); err != nil {
		t.Fatalf("GetKey() cached error = %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("JWKS endpoint hit %d times, want 1", hits.Load())
	}
}

func TestJWKSKeyProvider_EmptyKeyID(t *testing.T) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	server := httptest.NewServer(jwksHandler(t, &private.PublicKey, "only-key", nil))
	defer server.Close()

	provider := NewJWKSKeyProvider(JWKSConfig{URL: server.URL})

	// Empty kid matches when exactly one key is published.
	if _, err := provider.GetKey(context.Background(), ""); err != nil {
		t.Errorf("GetKey(\"\") error = %v", err)
	}
}

func TestJWKSKeyProvider_UnknownKeyID(t *testing.T) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	server := httptest.NewServer(jwksHandler(t, &private.PublicKey, "key-1", nil))
	defer server.Close()

	provider := NewJWKSKeyProvider(JWKSConfig{URL: server.URL})

	if _, err := provider.GetKey(context.Background(), "no-such-key"); err == nil {
		t.Error("GetKey() with unknown kid should error")
	}
}

func TestJWKSKeyProvider_StaleFallback(t *testing.T) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	var failing atomic.Bool
	inner := jwksHandler(t, &private.PublicKey, "key-1", nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		inner(w, r)
	}))
	defer server.Close()

	provider := NewJWKSKeyProvider(JWKSConfig{
		URL:      server.URL,
		CacheTTL: time.Nanosecond, // force refresh on every lookup
	})

	if _, err := provider.GetKey(context.Background(), "key-1"); err != nil {
		t.Fatalf("GetKey() error = %v", err)
	}

	// Endpoint goes down; the last good key set keeps validation alive.
	failing.Store(true)
	if _, err := provider.GetKey(context.Background(), "key-1"); err != nil {
		t.Errorf("GetKey() after endpoint failure = %v, want stale fallback", err)
	}
}

func TestStaticKeyProvider(t *testing.T) {
	provider := NewStaticKeyProvider([]byte("k"))
	got, err := provider.GetKey(context.Background(), "any-kid")
	if err != nil {
		t.Fatalf("GetKey() error = %v", err)
	}
	if string(got.([]byte)) != "k" {
		t.Errorf("GetKey() = %v, want k", got)
	}
}
