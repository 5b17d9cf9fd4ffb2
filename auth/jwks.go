package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// KeyProvider retrieves signing keys for token validation.
type KeyProvider interface {
	// GetKey returns the verification key for the given key ID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider provides a fixed verification key. Useful for HMAC
// signing in tests and for issuers with a single pinned key.
type StaticKeyProvider struct {
	key any
}

// NewStaticKeyProvider creates a static key provider.
func NewStaticKeyProvider(key any) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key regardless of key ID.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	return p.key, nil
}

// JWKSConfig configures a JWKS key provider.
type JWKSConfig struct {
	// URL is the issuer's JWKS endpoint.
	URL string

	// CacheTTL is how long fetched keys stay fresh before a refresh.
	// Default: 1 hour
	CacheTTL time.Duration

	// FetchTimeout bounds a single JWKS fetch.
	// Default: 10 seconds
	FetchTimeout time.Duration

	// HTTPClient is the client used for fetches. If nil, a default
	// client bounded by FetchTimeout is used.
	HTTPClient *http.Client
}

// JWKSKeyProvider retrieves RSA signing keys from a JWKS endpoint,
// caching them and deduplicating concurrent refreshes.
type JWKSKeyProvider struct {
	config JWKSConfig

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	stale     map[string]*rsa.PublicKey // last good keys, for degraded operation
	group     singleflight.Group
}

// NewJWKSKeyProvider creates a JWKS key provider.
func NewJWKSKeyProvider(config JWKSConfig) *JWKSKeyProvider {
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Hour
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 10 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.FetchTimeout}
	}

	return &JWKSKeyProvider{
		config: config,
		keys:   make(map[string]*rsa.PublicKey),
		stale:  make(map[string]*rsa.PublicKey),
	}
}

// GetKey returns the key for the given key ID. An empty key ID matches
// when the endpoint publishes exactly one key.
func (p *JWKSKeyProvider) GetKey(ctx context.Context, keyID string) (any, error) {
	p.mu.RLock()
	fresh := time.Since(p.fetchedAt) < p.config.CacheTTL
	key := p.lookupLocked(p.keys, keyID)
	p.mu.RUnlock()

	if fresh && key != nil {
		return key, nil
	}

	// Single refresh per provider regardless of concurrent callers.
	_, err, _ := p.group.Do("refresh", func() (any, error) {
		return nil, p.refresh(ctx)
	})
	if err != nil {
		// Fall back to the last good key set.
		p.mu.RLock()
		key = p.lookupLocked(p.keys, keyID)
		if key == nil {
			key = p.lookupLocked(p.stale, keyID)
		}
		p.mu.RUnlock()
		if key != nil {
			return key, nil
		}
		return nil, err
	}

	p.mu.RLock()
	key = p.lookupLocked(p.keys, keyID)
	p.mu.RUnlock()
	if key == nil {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// lookupLocked finds a key by ID. Caller must hold at least RLock.
func (p *JWKSKeyProvider) lookupLocked(keys map[string]*rsa.PublicKey, keyID string) *rsa.PublicKey {
	if keyID == "" {
		if len(keys) == 1 {
			for _, key := range keys {
				return key
			}
		}
		return nil
	}
	return keys[keyID]
}

func (p *JWKSKeyProvider) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: unexpected status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(jwk)
		if err != nil {
			continue // skip unparseable keys
		}
		keys[jwk.Kid] = pub
	}

	p.mu.Lock()
	p.keys = keys
	p.fetchedAt = time.Now()
	for kid, key := range keys {
		p.stale[kid] = key
	}
	p.mu.Unlock()

	return nil
}

type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func parseRSAPublicKey(jwk jwkKey) (*rsa.PublicKey, error) {
	if jwk.N == "" || jwk.E == "" {
		return nil, fmt.Errorf("incomplete RSA key parameters")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("decode n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("decode e: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}

// Ensure providers implement KeyProvider
var (
	_ KeyProvider = (*StaticKeyProvider)(nil)
	_ KeyProvider = (*JWKSKeyProvider)(nil)
)
