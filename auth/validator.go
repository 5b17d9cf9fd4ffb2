package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssuerConfig describes one trusted token issuer.
type IssuerConfig struct {
	// Issuer is the expected iss claim value.
	Issuer string

	// Audience is the expected aud claim value. Empty disables the check.
	Audience string

	// Algorithms lists allowed signing algorithms.
	// Default: ["RS256"]
	Algorithms []string

	// ClockSkew is the tolerance applied to time-bound claims.
	// Default: 30 seconds
	ClockSkew time.Duration

	// KeyProvider resolves verification keys for this issuer. If nil,
	// a JWKS provider is constructed from JWKSURL.
	KeyProvider KeyProvider

	// JWKSURL is the issuer's JWKS endpoint, used when KeyProvider is nil.
	JWKSURL string
}

// Claims is the validated snapshot of a bearer token.
type Claims struct {
	Issuer    string
	Subject   string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time

	// RawToken is the original compact serialization, carried so the
	// session can present it as subject_token during token exchange.
	RawToken string

	// Raw holds every claim as decoded.
	Raw map[string]any
}

// Validator verifies bearer tokens against a set of trusted issuers,
// selecting the issuer configuration by the token's iss claim.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Side effects: none; callers own audit logging of failures.
type Validator struct {
	issuers map[string]IssuerConfig
}

// NewValidator creates a validator over the given trusted issuers.
func NewValidator(issuers ...IssuerConfig) (*Validator, error) {
	if len(issuers) == 0 {
		return nil, errors.New("auth: at least one trusted issuer is required")
	}

	set := make(map[string]IssuerConfig, len(issuers))
	for _, cfg := range issuers {
		if cfg.Issuer == "" {
			return nil, errors.New("auth: issuer name is required")
		}
		if len(cfg.Algorithms) == 0 {
			cfg.Algorithms = []string{"RS256"}
		}
		if cfg.ClockSkew <= 0 {
			cfg.ClockSkew = 30 * time.Second
		}
		if cfg.KeyProvider == nil {
			if cfg.JWKSURL == "" {
				return nil, fmt.Errorf("auth: issuer %q needs a key provider or JWKS URL", cfg.Issuer)
			}
			cfg.KeyProvider = NewJWKSKeyProvider(JWKSConfig{URL: cfg.JWKSURL})
		}
		if _, dup := set[cfg.Issuer]; dup {
			return nil, fmt.Errorf("auth: issuer %q configured twice", cfg.Issuer)
		}
		set[cfg.Issuer] = cfg
	}

	return &Validator{issuers: set}, nil
}

// Validate verifies the token's signature, issuer, audience and time
// bounds and returns the extracted claims.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}

	// Peek at the unverified iss claim to select the issuer config.
	var peek jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &peek); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	iss, _ := peek["iss"].(string)
	cfg, ok := v.issuers[iss]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUntrustedIssuer, iss)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(cfg.Algorithms),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.Parse(tokenString, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return cfg.KeyProvider.GetKey(ctx, kid)
	})
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !token.Valid {
		return nil, ErrSignatureInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	// Re-check the verified issuer claim against the selected config.
	if verifiedIss, _ := claims["iss"].(string); verifiedIss != cfg.Issuer {
		return nil, fmt.Errorf("%w: %q", ErrUntrustedIssuer, verifiedIss)
	}

	audiences := audienceValues(claims)
	if cfg.Audience != "" && !containsAudience(audiences, cfg.Audience) {
		return nil, fmt.Errorf("%w: want %q", ErrAudienceMismatch, cfg.Audience)
	}

	return buildClaims(tokenString, claims, audiences), nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, ErrKeyNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
}

func buildClaims(rawToken string, claims jwt.MapClaims, audiences []string) *Claims {
	out := &Claims{
		RawToken: rawToken,
		Audience: audiences,
		Raw:      make(map[string]any, len(claims)),
	}
	for k, v := range claims {
		out.Raw[k] = v
	}

	out.Issuer, _ = claims["iss"].(string)
	out.Subject, _ = claims["sub"].(string)
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if iat, ok := claims["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iat), 0)
	}
	return out
}

func audienceValues(claims jwt.MapClaims) []string {
	switch v := claims["aud"].(type) {
	case string:
		return []string{v}
	case []any:
		result := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

func containsAudience(audiences []string, target string) bool {
	for _, aud := range audiences {
		if aud == target {
			return true
		}
	}
	return false
}

// ExtractBearerToken extracts the token from a Bearer authorization
// header value. The prefix match is case-insensitive.
func ExtractBearerToken(header string) (string, bool) {
	if len(header) < 7 {
		return "", false
	}
	if !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	if token == "" {
		return "", false
	}
	return token, true
}
